// Package iface provisions and removes loopback address aliases.
//
// The commands differ per OS family. A Provider produces the argv for one
// alias mutation; the Manager runs those commands for every (instance, ip)
// pair and records an outcome for each one.
package iface

import "runtime"

// Provider builds alias add/remove commands for one OS family.
type Provider interface {
	// Name identifies the provider in logs and doctor output.
	Name() string
	// Tool is the executable the commands invoke.
	Tool() string
	AddCommand(ip string) []string
	RemoveCommand(ip string) []string
}

// BSDLoopback aliases addresses with ifconfig, as on macOS and the BSDs.
type BSDLoopback struct {
	Interface string
}

func (BSDLoopback) Name() string { return "bsd-loopback" }
func (BSDLoopback) Tool() string { return "ifconfig" }

func (p BSDLoopback) AddCommand(ip string) []string {
	return []string{"ifconfig", p.iface(), "alias", ip}
}

func (p BSDLoopback) RemoveCommand(ip string) []string {
	return []string{"ifconfig", p.iface(), "-alias", ip}
}

func (p BSDLoopback) iface() string {
	if p.Interface == "" {
		return "lo0"
	}
	return p.Interface
}

// LinuxIPRoute adds addresses to the loopback device with iproute2.
type LinuxIPRoute struct {
	Interface string
}

func (LinuxIPRoute) Name() string { return "linux-iproute" }
func (LinuxIPRoute) Tool() string { return "ip" }

func (p LinuxIPRoute) AddCommand(ip string) []string {
	return []string{"ip", "addr", "add", ip, "dev", p.iface()}
}

func (p LinuxIPRoute) RemoveCommand(ip string) []string {
	return []string{"ip", "addr", "del", ip, "dev", p.iface()}
}

func (p LinuxIPRoute) iface() string {
	if p.Interface == "" {
		return "lo"
	}
	return p.Interface
}

// ProviderFor returns the provider for a GOOS value. Darwin and the BSDs share
// ifconfig alias semantics; everything else is treated as Linux.
func ProviderFor(goos string) Provider {
	switch goos {
	case "darwin", "freebsd", "netbsd", "openbsd", "dragonfly":
		return BSDLoopback{}
	default:
		return LinuxIPRoute{}
	}
}

// DetectProvider returns the provider for the host OS.
func DetectProvider() Provider {
	return ProviderFor(runtime.GOOS)
}
