package interfaces

import "errors"

var (
	// ErrTransportUnavailable is reported when none of the configured salt
	// transports can be used on this host. It only triggers local generation.
	ErrTransportUnavailable = errors.New("no salt transport available")

	// ErrTransportFailure is reported when a salt request fails at the transport level.
	ErrTransportFailure = errors.New("salt transport failure")

	// ErrEmptyResponse is reported when the salt endpoint answers with an empty body.
	ErrEmptyResponse = errors.New("empty salt response")

	// ErrMalformedSecrets is reported when a salt document does not hold exactly
	// the eight expected define() statements with well-formed values.
	ErrMalformedSecrets = errors.New("malformed secret set")

	// ErrExternalCommand wraps any failure of an external provisioning command.
	ErrExternalCommand = errors.New("external command failed")

	// ErrFileSystem wraps any failure of a directory or file operation.
	ErrFileSystem = errors.New("filesystem operation failed")
)
