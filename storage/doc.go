// Package storage provides keyed storage backends used to escrow a site's
// WordPress keys and salts, so that every replica of a site renders the same
// secrets.
//
//   - File system storage for single hosts and development
//   - S3-compatible object storage, private and server-side encrypted
//   - HashiCorp Vault KV v2 secrets engine
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/wp-provisioner/escrow/
//   - s3://bucket-name/prefix/?region=us-west-2
//   - s3://ACCESS_KEY:SECRET_KEY@bucket-name/?endpoint=http://minio:9000&path_style=true
//   - vault://vault.example.com:8200/secret/wordpress
//
// Vault authenticates with the token in VAULT_TOKEN; S3 without embedded
// credentials uses the default AWS credential chain.
//
// # Redundancy
//
// StorageBackendFactory.CreateMultiBackend combines several locations into a
// MultiStorageBackend that stores to every available backend and fetches from
// the first one holding the key.
package storage
