// Package installer drives WP-CLI, the external tool that installs and
// configures WordPress inside the document root.
//
// Commands are executed through an interfaces.CommandRunner; ExecRunner is the
// os/exec implementation. Only exit statuses are interpreted: a zero exit is
// success, and a non-zero exit of "is-installed" checks means "absent".
// MockInstaller and MockCommandRunner are testify mocks for dependent packages.
package installer
