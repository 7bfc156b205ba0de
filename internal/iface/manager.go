package iface

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/treykane/alias-tunnel/internal/appconfig"
	"github.com/treykane/alias-tunnel/internal/model"
	"github.com/treykane/alias-tunnel/internal/runner"
	"github.com/treykane/alias-tunnel/internal/util"
	"golang.org/x/sys/unix"
)

// CommandError is a failed alias command. Failures are recorded, never retried,
// and never stop the remaining commands.
type CommandError struct {
	Op       model.AliasOp
	IP       string
	Argv     []string
	ExitCode int
	Err      error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s alias %s: %v", e.Op, e.IP, e.Err)
	}
	return fmt.Sprintf("%s alias %s: exit status %d", e.Op, e.IP, e.ExitCode)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Manager runs alias commands through a Runner, one process per alias.
type Manager struct {
	provider Provider
	runner   runner.Runner
	logger   *slog.Logger
	sudo     bool
}

// NewManager creates a manager. With appconfig.PrivilegeAuto, commands are
// prefixed with sudo unless the effective uid is 0.
func NewManager(p Provider, r runner.Runner, priv appconfig.Privilege, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: p,
		runner:   r,
		logger:   logger,
		sudo:     needsSudo(priv, unix.Geteuid()),
	}
}

func needsSudo(priv appconfig.Privilege, euid int) bool {
	switch priv {
	case appconfig.PrivilegeSudo:
		return true
	case appconfig.PrivilegeNone:
		return false
	default:
		return euid != 0
	}
}

// Provider returns the provider the manager was built with.
func (m *Manager) Provider() Provider { return m.provider }

// UsesSudo reports whether commands are prefixed with sudo.
func (m *Manager) UsesSudo() bool { return m.sudo }

// Command returns the full argv for one alias operation, including any
// privilege prefix.
func (m *Manager) Command(op model.AliasOp, ip string) []string {
	var argv []string
	if op == model.AliasAdd {
		argv = m.provider.AddCommand(ip)
	} else {
		argv = m.provider.RemoveCommand(ip)
	}
	if m.sudo {
		argv = append([]string{util.SudoBinary}, argv...)
	}
	return argv
}

// AddAliases attempts to add an alias for every ip of every instance, in order.
func (m *Manager) AddAliases(ctx context.Context, instances []model.Instance) []model.AliasOutcome {
	m.announce("adding loopback aliases")
	return m.runAll(ctx, model.AliasAdd, ipsOf(instances))
}

// RemoveAliases attempts to remove the alias for every ip of every instance,
// regardless of whether its add succeeded.
func (m *Manager) RemoveAliases(ctx context.Context, instances []model.Instance) []model.AliasOutcome {
	m.announce("removing loopback aliases")
	return m.runAll(ctx, model.AliasRemove, ipsOf(instances))
}

// RemoveAdded removes only the aliases whose add outcome succeeded, in the
// order they were added.
func (m *Manager) RemoveAdded(ctx context.Context, added []model.AliasOutcome) []model.AliasOutcome {
	ips := make([]string, 0, len(added))
	for _, o := range added {
		if o.Op != model.AliasAdd {
			continue
		}
		if !o.OK() {
			m.logger.Info("skipping removal of alias that was never added", "ip", o.IP)
			continue
		}
		ips = append(ips, o.IP)
	}
	m.announce("removing loopback aliases")
	return m.runAll(ctx, model.AliasRemove, ips)
}

func (m *Manager) announce(msg string) {
	if m.sudo {
		m.logger.Info(msg+", a sudo password may be requested", "provider", m.provider.Name())
		return
	}
	m.logger.Info(msg, "provider", m.provider.Name())
}

func (m *Manager) runAll(ctx context.Context, op model.AliasOp, ips []string) []model.AliasOutcome {
	out := make([]model.AliasOutcome, 0, len(ips))
	for _, ip := range ips {
		out = append(out, m.runOne(ctx, op, ip))
	}
	return out
}

func (m *Manager) runOne(ctx context.Context, op model.AliasOp, ip string) model.AliasOutcome {
	argv := m.Command(op, ip)
	m.logger.Info("alias command", "op", op, "ip", ip, "argv", argv)

	code, err := m.runner.Run(ctx, argv)
	outcome := model.AliasOutcome{Op: op, IP: ip, Argv: argv, ExitCode: code}
	if err != nil || code != 0 {
		outcome.Err = &CommandError{Op: op, IP: ip, Argv: argv, ExitCode: code, Err: err}
		m.logger.Warn("alias command failed", "op", op, "ip", ip, "exit_code", code, "error", outcome.Err)
	}
	return outcome
}

func ipsOf(instances []model.Instance) []string {
	var ips []string
	for _, inst := range instances {
		ips = append(ips, inst.IPs...)
	}
	return ips
}
