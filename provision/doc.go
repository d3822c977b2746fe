// Package provision sequences the one-time installation of a WordPress site
// into a container's document root.
//
// The Orchestrator moves through UNPROVISIONED → CORE_DOWNLOADED → CONFIGURED
// → SECURED → DONE. The presence of <docroot>/wp-config.php is the only
// persisted state: a run that finds it does nothing, and a run that fails
// before writing it starts over from the beginning next time.
//
//   - CORE_DOWNLOADED: WP-CLI acquired, core files downloaded, baseline ownership
//   - CONFIGURED: secrets acquired, wp-config.php rendered, site installed and customized
//   - SECURED: one HTTPS warm-up request through the reverse proxy
//   - DONE: ownership and permissions normalized, cache directory emptied
package provision
