// Command provision turns an empty document root into a configured
// WordPress site. It is meant to run as the first step of the container
// entrypoint and exits immediately when wp-config.php already exists.
package main
