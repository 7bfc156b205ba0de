// Package util provides common utility functions and constants used across the
// alias-tunnel application. This package is intentionally kept dependency-free
// (no imports from other internal/* packages) so every layer can share it.
package util

const (
	// AppName names the config directory and the binary.
	AppName = "alias-tunnel"

	// DefaultSSHBinary is the client invoked for the tunnel session when
	// config.yaml does not override ssh.binary.
	DefaultSSHBinary = "ssh"

	// SudoBinary prefixes alias commands when the process is not root.
	SudoBinary = "sudo"

	// PrivilegedPortLimit is the first port an unprivileged user may bind.
	// Forwards below it make ssh fail to bind the aliased local address
	// unless the session runs as root.
	// Used by: internal/doctor (privileged-port check).
	PrivilegedPortLimit = 1024

	// LogLevelEnv overrides log_level from config.yaml.
	LogLevelEnv = "ALIAS_TUNNEL_LOG_LEVEL"
)
