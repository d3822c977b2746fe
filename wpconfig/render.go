package wpconfig

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/ruteri/wp-provisioner/interfaces"
)

const (
	// FileName is the configuration document, and the marker of a provisioned docroot.
	FileName = "wp-config.php"

	// StopEditingAnchor precedes the bootstrap section of wp-config.php.
	StopEditingAnchor = "/* That's all, stop editing! Happy publishing. */"

	fileMode = 0o644
)

var phpEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// PHPQuote escapes s for use inside a single-quoted PHP string literal.
func PHPQuote(s string) string {
	return phpEscaper.Replace(s)
}

var configTemplate = template.Must(template.New(FileName).Funcs(template.FuncMap{
	"q": PHPQuote,
}).Parse(`<?php
/**
 * WordPress configuration, generated at provisioning time.
 */

// ** Database settings ** //
define( 'DB_NAME', '{{ q .DBName }}' );
define( 'DB_USER', '{{ q .DBUser }}' );
define( 'DB_PASSWORD', '{{ q .DBPassword }}' );
define( 'DB_HOST', '{{ q .DBHost }}' );
define( 'DB_CHARSET', 'utf8mb4' );
define( 'DB_COLLATE', '' );

$table_prefix = '{{ q .TablePrefix }}';

// ** Performance ** //
define( 'WP_MEMORY_LIMIT', '256M' );
define( 'WP_MAX_MEMORY_LIMIT', '512M' );
define( 'WP_POST_REVISIONS', 5 );
define( 'AUTOSAVE_INTERVAL', 300 );

// ** Authentication unique keys and salts ** //
{{ .Secrets }}

// ** Scheme detection ** //
if ( isset( $_SERVER['HTTP_X_FORWARDED_PROTO'] ) && 'https' === strtolower( $_SERVER['HTTP_X_FORWARDED_PROTO'] ) ) {
	$wp_scheme = 'https';
} elseif ( ! empty( $_SERVER['HTTPS'] ) && 'off' !== strtolower( $_SERVER['HTTPS'] ) ) {
	$wp_scheme = 'https';
} else {
	$wp_scheme = 'http';
}
define( 'WP_HOME', $wp_scheme . '://{{ q .Hostname }}' );
define( 'WP_SITEURL', $wp_scheme . '://{{ q .Hostname }}' );

// ** Redis object cache ** //
define( 'WP_REDIS_HOST', '{{ q .CacheHost }}' );
define( 'WP_REDIS_PORT', {{ .CachePort }} );
define( 'WP_CACHE_KEY_SALT', '{{ q .Hostname }}' );
define( 'WP_CACHE', true );

define( 'WP_DEBUG', false );
{{ if .TLS }}
// ** TLS termination at the reverse proxy ** //
define( 'FORCE_SSL_ADMIN', true );
if ( isset( $_SERVER['HTTP_X_FORWARDED_PROTO'] ) && strpos( $_SERVER['HTTP_X_FORWARDED_PROTO'], 'https' ) !== false ) {
	$_SERVER['HTTPS'] = 'on';
}
{{ end }}
{{ .Anchor }}

/** Absolute path to the WordPress directory. */
if ( ! defined( 'ABSPATH' ) ) {
	define( 'ABSPATH', __DIR__ . '/' );
}

/** Sets up WordPress vars and included files. */
require_once ABSPATH . 'wp-settings.php';
`))

type templateData struct {
	Settings
	Secrets string
	Anchor  string
}

// Render produces the wp-config.php document for the given settings and secrets.
func Render(settings Settings, secrets interfaces.SecretSet) ([]byte, error) {
	settings = settings.WithDefaults()
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	statements := secrets.PHP()
	if statements == "" {
		return nil, fmt.Errorf("%w: empty secret set", interfaces.ErrMalformedSecrets)
	}

	var buf bytes.Buffer
	err := configTemplate.Execute(&buf, templateData{
		Settings: settings,
		Secrets:  statements,
		Anchor:   StopEditingAnchor,
	})
	if err != nil {
		return nil, fmt.Errorf("could not render %s: %w", FileName, err)
	}

	return buf.Bytes(), nil
}

// Write renders the document and writes it to <docroot>/wp-config.php,
// overwriting any existing file. It returns the written path.
func Write(docroot string, settings Settings, secrets interfaces.SecretSet) (string, error) {
	content, err := Render(settings, secrets)
	if err != nil {
		return "", err
	}

	path := filepath.Join(docroot, FileName)
	if err := os.WriteFile(path, content, fileMode); err != nil {
		return "", fmt.Errorf("%w: could not write %s: %w", interfaces.ErrFileSystem, path, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, fileMode); err != nil {
		return "", fmt.Errorf("%w: could not chmod %s: %w", interfaces.ErrFileSystem, path, err)
	}

	return path, nil
}
