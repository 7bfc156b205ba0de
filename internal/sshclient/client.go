// Package sshclient builds the tunnel command for the system ssh binary.
//
// The tunnel is a single ssh connection to the jump host carrying one -L local
// forward per (ip, port) pair. Each forward binds the loopback alias for ip on
// the local side and targets the same ip:port as seen from the jump host:
//
//	ssh -L 10.0.0.5:443:10.0.0.5:443 -L 10.0.0.6:22:10.0.0.6:22 bastion
//
// This package does NOT implement the SSH protocol. It shells out to ssh so the
// user's keys, agent and ~/.ssh/config apply unchanged.
package sshclient

import "github.com/treykane/alias-tunnel/internal/model"

// Forwards returns one spec per (ip, port): instance order, then IP order,
// then port order.
func Forwards(instances []model.Instance) []model.ForwardSpec {
	var out []model.ForwardSpec
	for _, inst := range instances {
		for _, ip := range inst.IPs {
			for _, port := range inst.Ports {
				out = append(out, model.ForwardSpec{
					LocalAddr:  ip,
					LocalPort:  port,
					RemoteAddr: ip,
					RemotePort: port,
				})
			}
		}
	}
	return out
}

// ForwardSpecs is Forwards rendered as ip:port:ip:port strings.
func ForwardSpecs(instances []model.Instance) []string {
	fwds := Forwards(instances)
	out := make([]string, 0, len(fwds))
	for _, f := range fwds {
		out = append(out, f.String())
	}
	return out
}

// BuildTunnelArgs constructs the full tunnel argv without starting anything:
//
//	[sshBinary, extraArgs..., -L, spec, -L, spec, ..., jumpHost]
//
// Useful for dry runs and for testing argument composition on its own.
func BuildTunnelArgs(sshBinary string, extraArgs []string, jumpHost string, instances []model.Instance) []string {
	specs := ForwardSpecs(instances)
	argv := make([]string, 0, 2+len(extraArgs)+2*len(specs))
	argv = append(argv, sshBinary)
	argv = append(argv, extraArgs...)
	for _, spec := range specs {
		argv = append(argv, "-L", spec)
	}
	return append(argv, jumpHost)
}
