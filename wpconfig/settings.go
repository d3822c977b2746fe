package wpconfig

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	DefaultCacheHost   = "redis"
	DefaultCachePort   = "6379"
	DefaultTablePrefix = "wp_"
)

// Settings holds every externally supplied value rendered into wp-config.php.
type Settings struct {
	DBName     string
	DBUser     string
	DBPassword string
	DBHost     string

	// TablePrefix defaults to "wp_".
	TablePrefix string

	// Hostname is the public hostname of the site, without scheme.
	Hostname string

	// CacheHost and CachePort locate the Redis object cache.
	// They default to "redis" and "6379".
	CacheHost string
	CachePort string

	// TLS enables the admin-over-SSL and forwarded-protocol directives.
	TLS bool
}

// WithDefaults returns a copy of s with unset optional values defaulted.
func (s Settings) WithDefaults() Settings {
	if s.TablePrefix == "" {
		s.TablePrefix = DefaultTablePrefix
	}
	if s.CacheHost == "" {
		s.CacheHost = DefaultCacheHost
	}
	if s.CachePort == "" {
		s.CachePort = DefaultCachePort
	}
	return s
}

// Validate checks presence of the required values. Values are not validated
// beyond presence, except for the cache port which is rendered as a number.
func (s Settings) Validate() error {
	var errs []error
	required := []struct {
		name, value string
	}{
		{"database name", s.DBName},
		{"database user", s.DBUser},
		{"database host", s.DBHost},
		{"hostname", s.Hostname},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required", r.name))
		}
	}

	if s.CachePort != "" {
		if _, err := strconv.ParseUint(s.CachePort, 10, 16); err != nil {
			errs = append(errs, fmt.Errorf("invalid cache port %q", s.CachePort))
		}
	}

	return errors.Join(errs...)
}
