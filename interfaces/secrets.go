package interfaces

import (
	"context"
	"fmt"
	"strings"
)

// SecretName names one of the WordPress authentication keys or salts.
type SecretName string

const (
	AuthKey        SecretName = "AUTH_KEY"
	SecureAuthKey  SecretName = "SECURE_AUTH_KEY"
	LoggedInKey    SecretName = "LOGGED_IN_KEY"
	NonceKey       SecretName = "NONCE_KEY"
	AuthSalt       SecretName = "AUTH_SALT"
	SecureAuthSalt SecretName = "SECURE_AUTH_SALT"
	LoggedInSalt   SecretName = "LOGGED_IN_SALT"
	NonceSalt      SecretName = "NONCE_SALT"
)

// SecretNames lists the eight secret names in the order used by the
// WordPress secret-key API: the four base names with the _KEY suffix,
// then the same base names with the _SALT suffix.
var SecretNames = []SecretName{
	AuthKey, SecureAuthKey, LoggedInKey, NonceKey,
	AuthSalt, SecureAuthSalt, LoggedInSalt, NonceSalt,
}

// SecretValueLength is the length of every generated secret value.
const SecretValueLength = 64

// SecretSource records where a SecretSet came from.
type SecretSource string

const (
	SourceRemote SecretSource = "remote"
	SourceLocal  SecretSource = "local"
	SourceStore  SecretSource = "store"
)

// Secret is a single named key or salt.
type Secret struct {
	Name  SecretName
	Value string
}

// SecretSet is the ordered set of WordPress keys and salts.
type SecretSet struct {
	Secrets []Secret
	Source  SecretSource

	// Raw is the verbatim remote document when it was trusted without parsing.
	// When set, PHP returns it unchanged.
	Raw string
}

// Get returns the value stored for name.
func (s SecretSet) Get(name SecretName) (string, bool) {
	for _, secret := range s.Secrets {
		if secret.Name == name {
			return secret.Value, true
		}
	}
	return "", false
}

// Len returns the number of secrets in the set.
func (s SecretSet) Len() int {
	return len(s.Secrets)
}

// PHP renders the set as define() statements, one per line.
func (s SecretSet) PHP() string {
	if s.Raw != "" {
		return strings.TrimRight(s.Raw, "\n")
	}

	lines := make([]string, 0, len(s.Secrets))
	for _, secret := range s.Secrets {
		lines = append(lines, fmt.Sprintf("define('%s', '%s');", secret.Name, secret.Value))
	}
	return strings.Join(lines, "\n")
}

// SaltFetcher downloads a salt document from a remote endpoint.
type SaltFetcher interface {
	// Name identifies the transport for logging.
	Name() string

	// Available reports whether the transport can be used on this host.
	Available() bool

	// Fetch performs a single request and returns the response body.
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SecretProvider always produces a usable SecretSet.
type SecretProvider interface {
	FetchSecrets(ctx context.Context) SecretSet
}
