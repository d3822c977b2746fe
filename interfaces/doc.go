// Package interfaces defines the types and interfaces shared by the provisioning
// components, separating interface definitions from implementations.
//
// # Secrets
//
// SecretSet holds the eight WordPress authentication keys and salts. SaltFetcher
// abstracts a transport able to download a salt document from a remote endpoint,
// and SecretProvider is the contract of the component that always produces a
// usable SecretSet.
//
// # Installer
//
// Installer is the WP-CLI collaborator driven by the orchestrator. CommandRunner
// abstracts process execution so that both can be exercised without a real
// WordPress installation.
//
// # Storage
//
// StorageBackend provides keyed storage used to escrow a site's SecretSet so that
// several replicas of one site render identical salts. Backends are created from
// location URIs (file://, s3://, vault://).
package interfaces
