// Package session runs one provision/connect/deprovision cycle:
//
//	idle → aliases-adding → tunnel-connecting → aliases-removing → done
//
// Alias failures are logged and tolerated. The ssh process is the only
// blocking step and lasts as long as the interactive session. Once the add
// step has run, removal is always attempted, whatever happens to ssh.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/treykane/alias-tunnel/internal/appconfig"
	"github.com/treykane/alias-tunnel/internal/events"
	"github.com/treykane/alias-tunnel/internal/model"
	"github.com/treykane/alias-tunnel/internal/runner"
	"github.com/treykane/alias-tunnel/internal/sshclient"
)

// AliasManager provisions and removes loopback aliases. *iface.Manager
// implements it.
type AliasManager interface {
	AddAliases(ctx context.Context, instances []model.Instance) []model.AliasOutcome
	RemoveAliases(ctx context.Context, instances []model.Instance) []model.AliasOutcome
	RemoveAdded(ctx context.Context, added []model.AliasOutcome) []model.AliasOutcome
}

// Journal receives lifecycle events. *events.Store implements it.
type Journal interface {
	Append(evt events.Event) error
}

// TunnelError reports an ssh session that exited non-zero or never started.
type TunnelError struct {
	JumpHost string
	ExitCode int
	Err      error
}

func (e *TunnelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tunnel to %s failed: %v", e.JumpHost, e.Err)
	}
	return fmt.Sprintf("tunnel to %s exited with status %d", e.JumpHost, e.ExitCode)
}

func (e *TunnelError) Unwrap() error { return e.Err }

// Options configures an Orchestrator. Journal is optional.
type Options struct {
	Aliases      AliasManager
	Tunnel       runner.Runner
	Logger       *slog.Logger
	Journal      Journal
	SSHBinary    string
	ExtraArgs    []string
	RemovePolicy appconfig.RemovePolicy
}

// Orchestrator sequences a single session. It is not reusable: each Run is
// a fresh cycle with its own session ID.
type Orchestrator struct {
	opts      Options
	logger    *slog.Logger
	sessionID string
	jumpHost  string
}

func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SSHBinary == "" {
		opts.SSHBinary = "ssh"
	}
	if opts.RemovePolicy == "" {
		opts.RemovePolicy = appconfig.RemoveAll
	}
	return &Orchestrator{opts: opts, logger: opts.Logger}
}

// Run executes the cycle and blocks until the ssh session ends and cleanup
// has been attempted. The returned error is a *TunnelError when ssh exited
// non-zero or could not be started; alias failures are only reported in the
// result.
func (o *Orchestrator) Run(ctx context.Context, jumpHost string, instances []model.Instance) (res model.SessionResult, err error) {
	o.sessionID = uuid.NewString()
	o.jumpHost = jumpHost
	o.logger = o.opts.Logger.With("session", o.sessionID)
	res.State = model.SessionIdle
	res.TunnelArgv = sshclient.BuildTunnelArgs(o.opts.SSHBinary, o.opts.ExtraArgs, jumpHost, instances)

	o.record(events.Event{EventType: events.SessionStarted, Message: fmt.Sprintf("%d instances", len(instances))})
	o.logInstances(instances)

	o.transition(&res, model.SessionAliasesAdding)
	res.Added = o.opts.Aliases.AddAliases(ctx, instances)
	o.recordOutcomes(res.Added)

	o.transition(&res, model.SessionTunnelConnecting)
	defer func() {
		// Cleanup must not inherit cancellation; a cancelled context would
		// stop the remove commands from starting.
		cleanupCtx := context.WithoutCancel(ctx)
		o.transition(&res, model.SessionAliasesRemoving)
		res.Removed = o.removeAliases(cleanupCtx, instances, res.Added)
		o.recordOutcomes(res.Removed)
		o.transition(&res, model.SessionDone)
		if failed := res.FailedAliases(); failed > 0 {
			o.logger.Warn("session finished with alias failures", "failed", failed)
		}
	}()

	o.logger.Info("connecting to jump host", "jump_host", jumpHost, "forwards", len(sshclient.Forwards(instances)))
	o.logger.Info("tunnel command", "argv", res.TunnelArgv)
	o.record(events.Event{EventType: events.TunnelStarted, Message: fmt.Sprint(res.TunnelArgv)})

	code, runErr := o.opts.Tunnel.Run(ctx, res.TunnelArgv)
	res.ExitCode = code
	exitCode := code
	evt := events.Event{EventType: events.TunnelExited, ExitCode: &exitCode}
	switch {
	case runErr != nil:
		res.TunnelErr = &TunnelError{JumpHost: jumpHost, ExitCode: code, Err: runErr}
		evt.Message = runErr.Error()
		o.logger.Error("tunnel process failed", "jump_host", jumpHost, "error", runErr)
	case code != 0:
		res.TunnelErr = &TunnelError{JumpHost: jumpHost, ExitCode: code}
		o.logger.Warn("tunnel exited with non-zero status", "jump_host", jumpHost, "exit_code", code)
	default:
		o.logger.Info("tunnel closed", "jump_host", jumpHost)
	}
	o.record(evt)
	return res, res.TunnelErr
}

func (o *Orchestrator) removeAliases(ctx context.Context, instances []model.Instance, added []model.AliasOutcome) []model.AliasOutcome {
	if o.opts.RemovePolicy == appconfig.RemoveAddedOnly {
		return o.opts.Aliases.RemoveAdded(ctx, added)
	}
	return o.opts.Aliases.RemoveAliases(ctx, instances)
}

func (o *Orchestrator) logInstances(instances []model.Instance) {
	o.logger.Info("instance list", "count", len(instances))
	for i, inst := range instances {
		o.logger.Info("instance", "index", i, "ips", inst.IPs, "ports", inst.Ports)
	}
}

func (o *Orchestrator) transition(res *model.SessionResult, to model.SessionState) {
	from := res.State
	res.State = to
	o.logger.Debug("session state", "from", from, "to", to)
	o.record(events.Event{EventType: events.StateChanged, State: to, Message: fmt.Sprintf("%s -> %s", from, to)})
}

func (o *Orchestrator) recordOutcomes(outcomes []model.AliasOutcome) {
	for _, oc := range outcomes {
		code := oc.ExitCode
		evt := events.Event{IP: oc.IP, ExitCode: &code}
		switch {
		case oc.Op == model.AliasAdd && oc.OK():
			evt.EventType = events.AliasAdded
		case oc.Op == model.AliasAdd:
			evt.EventType = events.AliasAddFailed
		case oc.OK():
			evt.EventType = events.AliasRemoved
		default:
			evt.EventType = events.AliasRemoveFailed
		}
		if oc.Err != nil {
			evt.Message = oc.Err.Error()
		}
		o.record(evt)
	}
}

func (o *Orchestrator) record(evt events.Event) {
	if o.opts.Journal == nil {
		return
	}
	evt.SessionID = o.sessionID
	evt.JumpHost = o.jumpHost
	if err := o.opts.Journal.Append(evt); err != nil {
		o.logger.Warn("failed to append session event", "event", evt.EventType, "error", err)
	}
}
