package cryptoutils

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/ruteri/wp-provisioner/interfaces"
)

// Character classes of the salt alphabet. The symbol sets are the ones used by
// WordPress itself for generated keys; neither contains a quote or a backslash,
// so every value can be embedded in a single-quoted PHP literal as-is.
const (
	LowerChars        = "abcdefghijklmnopqrstuvwxyz"
	UpperChars        = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DigitChars        = "0123456789"
	SpecialChars      = "!@#$%^&*()"
	ExtraSpecialChars = "-_ []{}<>~`+=,.;:/?|"

	SaltAlphabet = LowerChars + UpperChars + DigitChars + SpecialChars + ExtraSpecialChars
)

// rejectionLimit is the largest multiple of len(SaltAlphabet) that fits in a byte.
// Random bytes at or above it are discarded so that every character is equally likely.
var rejectionLimit = 256 - 256%len(SaltAlphabet)

var defineStatement = regexp.MustCompile(`define\(\s*'([A-Z_]+)'\s*,\s*'([^'\\]*)'\s*\)\s*;`)

// RandomSaltValue draws a value of the given length uniformly from SaltAlphabet.
func RandomSaltValue(r io.Reader, length int) (string, error) {
	var sb strings.Builder
	sb.Grow(length)

	buf := make([]byte, length)
	for sb.Len() < length {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectionLimit {
				continue
			}
			sb.WriteByte(SaltAlphabet[int(b)%len(SaltAlphabet)])
			if sb.Len() == length {
				break
			}
		}
	}

	return sb.String(), nil
}

// GenerateSecretSet synthesizes the eight WordPress keys and salts locally.
// Each value is an independent draw of SecretValueLength characters from r.
func GenerateSecretSet(r io.Reader) (interfaces.SecretSet, error) {
	secrets := make([]interfaces.Secret, 0, len(interfaces.SecretNames))
	for _, name := range interfaces.SecretNames {
		value, err := RandomSaltValue(r, interfaces.SecretValueLength)
		if err != nil {
			return interfaces.SecretSet{}, fmt.Errorf("could not generate %s: %w", name, err)
		}
		secrets = append(secrets, interfaces.Secret{Name: name, Value: value})
	}

	return interfaces.SecretSet{
		Secrets: secrets,
		Source:  interfaces.SourceLocal,
	}, nil
}

// MustGenerateSecretSet generates a SecretSet from crypto/rand and panics on failure.
func MustGenerateSecretSet() interfaces.SecretSet {
	set, err := GenerateSecretSet(rand.Reader)
	if err != nil {
		panic(err)
	}
	return set
}

// ParseSecretSet extracts the eight define() statements from a salt document
// such as the one served by the WordPress secret-key API.
// The document must define every expected name exactly once, each with a value
// of SecretValueLength characters from SaltAlphabet.
func ParseSecretSet(document string) (interfaces.SecretSet, error) {
	matches := defineStatement.FindAllStringSubmatch(document, -1)
	if len(matches) != len(interfaces.SecretNames) {
		return interfaces.SecretSet{}, fmt.Errorf("%w: expected %d define statements, found %d", interfaces.ErrMalformedSecrets, len(interfaces.SecretNames), len(matches))
	}

	values := make(map[interfaces.SecretName]string, len(matches))
	for _, match := range matches {
		name := interfaces.SecretName(match[1])
		if _, dup := values[name]; dup {
			return interfaces.SecretSet{}, fmt.Errorf("%w: duplicate %s", interfaces.ErrMalformedSecrets, name)
		}
		if err := ValidateSaltValue(match[2]); err != nil {
			return interfaces.SecretSet{}, fmt.Errorf("%w: %s: %v", interfaces.ErrMalformedSecrets, name, err)
		}
		values[name] = match[2]
	}

	secrets := make([]interfaces.Secret, 0, len(interfaces.SecretNames))
	for _, name := range interfaces.SecretNames {
		value, ok := values[name]
		if !ok {
			return interfaces.SecretSet{}, fmt.Errorf("%w: missing %s", interfaces.ErrMalformedSecrets, name)
		}
		secrets = append(secrets, interfaces.Secret{Name: name, Value: value})
	}

	return interfaces.SecretSet{Secrets: secrets}, nil
}

// ValidateSaltValue checks the length and alphabet of a single value.
func ValidateSaltValue(value string) error {
	if len(value) != interfaces.SecretValueLength {
		return fmt.Errorf("value length %d, expected %d", len(value), interfaces.SecretValueLength)
	}
	for _, c := range value {
		if !strings.ContainsRune(SaltAlphabet, c) {
			return errors.New("value contains a character outside the salt alphabet")
		}
	}
	return nil
}

// ValidateSecretSet checks that set holds exactly the expected names, in order,
// with well-formed values.
func ValidateSecretSet(set interfaces.SecretSet) error {
	if set.Len() != len(interfaces.SecretNames) {
		return fmt.Errorf("%w: expected %d secrets, found %d", interfaces.ErrMalformedSecrets, len(interfaces.SecretNames), set.Len())
	}
	for i, name := range interfaces.SecretNames {
		if set.Secrets[i].Name != name {
			return fmt.Errorf("%w: expected %s at position %d, found %s", interfaces.ErrMalformedSecrets, name, i, set.Secrets[i].Name)
		}
		if err := ValidateSaltValue(set.Secrets[i].Value); err != nil {
			return fmt.Errorf("%w: %s: %v", interfaces.ErrMalformedSecrets, name, err)
		}
	}
	return nil
}

// FormatSaltDocument renders a set the way the WordPress secret-key API does,
// with the values aligned in a single column.
func FormatSaltDocument(set interfaces.SecretSet) string {
	width := 0
	for _, secret := range set.Secrets {
		width = max(width, len(secret.Name))
	}

	var sb strings.Builder
	for _, secret := range set.Secrets {
		padding := strings.Repeat(" ", width-len(secret.Name)+1)
		fmt.Fprintf(&sb, "define('%s',%s'%s');\n", secret.Name, padding, secret.Value)
	}
	return sb.String()
}
