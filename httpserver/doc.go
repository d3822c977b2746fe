/*
Package httpserver implements a local salt server, a drop-in replacement for
the WordPress secret-key API for builds without internet access.

	GET /secret-key/1.1/salt/

returns eight freshly generated define() statements in the API's format, which
the provisioner parses and validates like the upstream response.

# Operations

  - /livez and /readyz for liveness and readiness checks
  - /drain and /undrain to take the instance out of rotation
  - Prometheus metrics on a separate listener, including
    <namespace>_salt_sets_served_total
  - Optional pprof endpoints under /debug
*/
package httpserver
