// Package secrets obtains the WordPress authentication keys and salts for a site.
//
// A Provider prefers a remote salt endpoint (by default the WordPress secret-key
// API) and falls back to local generation, so FetchSecrets never fails:
//
//   - the first available transport (Go HTTP client, curl or wget) is selected;
//     with none available the provider generates locally right away
//   - up to MaxRetries requests are made, RetryDelay apart, each bounded by
//     AttemptTimeout; an attempt succeeds when the transport succeeds and the
//     body is non-empty once surrounding whitespace is trimmed (and parses as a
//     valid salt document unless TrustRemote is set)
//   - after the last failed attempt the eight values are generated locally from
//     the configured random source
//
// When an escrow backend is configured, a set stored for the site is reused
// before any request is made, so that replicas of the same site render
// identical salts. A newly acquired set is stored back only when the store
// confirmed it held no usable set; if the store could not be read, the existing
// escrow is left untouched.
package secrets
