package model

import (
	"fmt"
	"slices"
)

// Instance is one remote target: a set of addresses sharing a port list.
// Every IP gets the same forwards, and IPs are unique once normalized.
type Instance struct {
	IPs   []string `json:"ips"`
	Ports []int    `json:"ports"`
}

func (i Instance) String() string {
	return fmt.Sprintf("%v:%v", i.IPs, i.Ports)
}

// Equal reports whether two instances carry the same IPs and ports in the same order.
func (i Instance) Equal(o Instance) bool {
	return slices.Equal(i.IPs, o.IPs) && slices.Equal(i.Ports, o.Ports)
}

// ForwardSpec defines one local->remote SSH tunnel mapping.
type ForwardSpec struct {
	LocalAddr  string `json:"local_addr"`
	LocalPort  int    `json:"local_port"`
	RemoteAddr string `json:"remote_addr"`
	RemotePort int    `json:"remote_port"`
}

// String renders the spec in ssh -L form: localAddr:localPort:remoteAddr:remotePort.
func (f ForwardSpec) String() string {
	return fmt.Sprintf("%s:%d:%s:%d", f.LocalAddr, f.LocalPort, f.RemoteAddr, f.RemotePort)
}

// Local returns the bind address ssh listens on.
func (f ForwardSpec) Local() string {
	return fmt.Sprintf("%s:%d", f.LocalAddr, f.LocalPort)
}

// AliasOp is the direction of a loopback alias mutation.
type AliasOp string

const (
	AliasAdd    AliasOp = "add"
	AliasRemove AliasOp = "remove"
)

// AliasOutcome records one attempted alias command. ExitCode is -1 when the
// command could not be started at all; Err is non-nil for any failure.
type AliasOutcome struct {
	Op       AliasOp  `json:"op"`
	IP       string   `json:"ip"`
	Argv     []string `json:"argv"`
	ExitCode int      `json:"exit_code"`
	Err      error    `json:"-"`
}

func (o AliasOutcome) OK() bool {
	return o.Err == nil
}

type SessionState string

const (
	SessionIdle             SessionState = "idle"
	SessionAliasesAdding    SessionState = "aliases-adding"
	SessionTunnelConnecting SessionState = "tunnel-connecting"
	SessionAliasesRemoving  SessionState = "aliases-removing"
	SessionDone             SessionState = "done"
)

// SessionResult is what one provision/connect/deprovision cycle leaves behind.
type SessionResult struct {
	State      SessionState   `json:"state"`
	Added      []AliasOutcome `json:"added"`
	Removed    []AliasOutcome `json:"removed"`
	TunnelArgv []string       `json:"tunnel_argv"`
	ExitCode   int            `json:"exit_code"`
	TunnelErr  error          `json:"-"`
}

// FailedAliases counts add and remove commands that did not succeed.
func (r SessionResult) FailedAliases() int {
	n := 0
	for _, o := range r.Added {
		if !o.OK() {
			n++
		}
	}
	for _, o := range r.Removed {
		if !o.OK() {
			n++
		}
	}
	return n
}
