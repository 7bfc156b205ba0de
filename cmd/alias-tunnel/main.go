// Package main is the entry point for the alias-tunnel binary.
//
// alias-tunnel reaches many remote instances through one jump host without
// remapping their ports. It aliases each instance IP onto the local loopback
// interface, then runs a single ssh session that forwards ip:port to the same
// ip:port on the far side, so clients connect to the real addresses.
//
// Usage:
//
//	alias-tunnel bastion instances.json         # run a session
//	alias-tunnel plan bastion instances.json    # show the commands only
//	alias-tunnel doctor instances.json          # preflight checks
//
// The instances file is a JSON list such as:
//
//	[{"ip": "10.0.0.5", "ports": [443]}, {"ips": ["10.0.0.6", "10.0.0.7"], "ports": [22]}]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/treykane/alias-tunnel/internal/cli"
	"github.com/treykane/alias-tunnel/internal/session"
)

func main() {
	cmd := cli.NewRootCommand()

	// The process exits with ssh's own status so callers can tell an auth
	// failure (255) from a remote command's exit code.
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var tunnelErr *session.TunnelError
		if errors.As(err, &tunnelErr) && tunnelErr.ExitCode > 0 {
			os.Exit(tunnelErr.ExitCode)
		}
		os.Exit(1)
	}
}
