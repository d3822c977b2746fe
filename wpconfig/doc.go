// Package wpconfig renders the WordPress configuration document (wp-config.php).
//
// The document embeds the database settings, fixed performance constants, the
// site's keys and salts, runtime HTTPS detection and the Redis object-cache
// settings. When TLS is enabled the admin-over-SSL and forwarded-protocol
// directives are part of the same render pass, placed right before the
// "stop editing" anchor comment.
//
// Basic usage:
//
//	settings := wpconfig.Settings{DBName: "wordpress", DBUser: "wp", DBPassword: pw, DBHost: "db", Hostname: "blog.example.com", TLS: true}
//	path, err := wpconfig.Write("/var/www/html", settings, secretSet)
package wpconfig
