package cryptoutils

import (
	"bytes"
	"crypto/rand"
	mathrand "math/rand/v2"
	"strings"
	"testing"

	"github.com/ruteri/wp-provisioner/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededReader(seed byte) *mathrand.ChaCha8 {
	var s [32]byte
	s[0] = seed
	return mathrand.NewChaCha8(s)
}

func TestSaltAlphabet(t *testing.T) {
	require.Len(t, SaltAlphabet, 92)
	assert.Contains(t, SaltAlphabet, " ")
	assert.NotContains(t, SaltAlphabet, "'")
	assert.NotContains(t, SaltAlphabet, `\`)

	seen := map[rune]bool{}
	for _, c := range SaltAlphabet {
		require.False(t, seen[c], "duplicate character %q", c)
		seen[c] = true
	}
}

func TestGenerateSecretSet(t *testing.T) {
	for i := 0; i < 20; i++ {
		set, err := GenerateSecretSet(rand.Reader)
		require.NoError(t, err)

		require.Equal(t, len(interfaces.SecretNames), set.Len())
		assert.Equal(t, interfaces.SourceLocal, set.Source)
		for j, secret := range set.Secrets {
			assert.Equal(t, interfaces.SecretNames[j], secret.Name)
			assert.Len(t, secret.Value, interfaces.SecretValueLength)
			for _, c := range secret.Value {
				assert.True(t, strings.ContainsRune(SaltAlphabet, c), "unexpected character %q", c)
			}
		}
		require.NoError(t, ValidateSecretSet(set))
	}
}

func TestGenerateSecretSet_Deterministic(t *testing.T) {
	first, err := GenerateSecretSet(seededReader(7))
	require.NoError(t, err)
	second, err := GenerateSecretSet(seededReader(7))
	require.NoError(t, err)
	other, err := GenerateSecretSet(seededReader(8))
	require.NoError(t, err)

	assert.Equal(t, first.PHP(), second.PHP())
	assert.NotEqual(t, first.PHP(), other.PHP())
}

func TestGenerateSecretSet_ReaderFailure(t *testing.T) {
	_, err := GenerateSecretSet(bytes.NewReader(make([]byte, 10)))
	require.Error(t, err)
}

func TestRandomSaltValue_RejectsBiasedBytes(t *testing.T) {
	// Only bytes >= rejectionLimit followed by zeros: the result must consist of
	// the first alphabet character only.
	data := append(bytes.Repeat([]byte{255}, 16), make([]byte, 64)...)
	value, err := RandomSaltValue(bytes.NewReader(data), 8)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat(SaltAlphabet[:1], 8), value)
}

func TestParseSecretSet(t *testing.T) {
	generated, err := GenerateSecretSet(seededReader(1))
	require.NoError(t, err)

	t.Run("api format", func(t *testing.T) {
		parsed, err := ParseSecretSet(FormatSaltDocument(generated))
		require.NoError(t, err)
		assert.Equal(t, generated.Secrets, parsed.Secrets)
	})

	t.Run("php format", func(t *testing.T) {
		parsed, err := ParseSecretSet(generated.PHP())
		require.NoError(t, err)
		assert.Equal(t, generated.Secrets, parsed.Secrets)
	})

	t.Run("reordered", func(t *testing.T) {
		lines := strings.Split(generated.PHP(), "\n")
		for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
			lines[i], lines[j] = lines[j], lines[i]
		}
		parsed, err := ParseSecretSet(strings.Join(lines, "\n"))
		require.NoError(t, err)
		assert.Equal(t, generated.Secrets, parsed.Secrets)
	})

	malformed := []struct {
		name     string
		document string
	}{
		{"empty", ""},
		{"html error page", "<html><body>502 Bad Gateway</body></html>"},
		{"missing statement", strings.Join(strings.Split(generated.PHP(), "\n")[:7], "\n")},
		{"duplicate statement", strings.Replace(generated.PHP(), "NONCE_SALT", "NONCE_KEY", 1)},
		{"short value", strings.Replace(generated.PHP(), generated.Secrets[0].Value, "short", 1)},
		{"unknown name", strings.Replace(generated.PHP(), "NONCE_SALT", "OTHER_SALT", 1)},
	}
	for _, tc := range malformed {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSecretSet(tc.document)
			require.ErrorIs(t, err, interfaces.ErrMalformedSecrets)
		})
	}
}

func TestFormatSaltDocument(t *testing.T) {
	set, err := GenerateSecretSet(seededReader(3))
	require.NoError(t, err)

	doc := FormatSaltDocument(set)
	lines := strings.Split(strings.TrimSuffix(doc, "\n"), "\n")
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "define('AUTH_KEY',         '"))
	assert.True(t, strings.HasPrefix(lines[5], "define('SECURE_AUTH_SALT', '"))
}
