package runner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/muesli/cancelreader"
	"golang.org/x/term"
)

// outputDrainTimeout bounds how long Run waits for the last pty output after
// the child exits.
const outputDrainTimeout = 200 * time.Millisecond

var forwardedSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// relayedSignals returns the caught signals Run passes on to the child. A
// child without its own pty sits in the terminal's foreground process group
// and already gets SIGINT from the terminal.
func relayedSignals(ownPTY bool) []os.Signal {
	if ownPTY {
		return forwardedSignals
	}
	return []os.Signal{syscall.SIGTERM, syscall.SIGHUP}
}

// Interactive runs a long-lived interactive program such as ssh.
//
// When Stdin is a terminal the child gets its own pseudo-terminal and Stdin is
// switched to raw mode, so keystrokes like Ctrl-C reach the child as bytes
// instead of signalling this process. Signals that do arrive (SIGINT, SIGTERM,
// SIGHUP) are forwarded to the child, and Run returns once it exits. That
// keeps the caller alive long enough to clean up after the session. Run stops
// reading Stdin before it returns, so a later prompt (sudo during teardown)
// gets the keystrokes.
type Interactive struct {
	Stdin  *os.File
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

// NewInteractive returns an Interactive wired to the process stdio.
func NewInteractive(logger *slog.Logger) *Interactive {
	return &Interactive{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr, Logger: logger}
}

func (r *Interactive) Run(ctx context.Context, argv []string) (int, error) {
	cmd, err := command(ctx, argv)
	if err != nil {
		return -1, err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, forwardedSignals...)
	defer signal.Stop(sigs)

	if r.Stdin == nil || !term.IsTerminal(int(r.Stdin.Fd())) {
		if r.Stdin != nil {
			cmd.Stdin = r.Stdin
		}
		cmd.Stdout = r.Stdout
		cmd.Stderr = r.Stderr
		if err := cmd.Start(); err != nil {
			return -1, err
		}
		stop := r.forwardSignals(cmd.Process, sigs, relayedSignals(false))
		defer stop()
		return waitStatus(cmd.Wait())
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return -1, err
	}
	defer ptmx.Close()

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			if err := pty.InheritSize(r.Stdin, ptmx); err != nil {
				r.logger().Debug("resize pty", "error", err)
			}
		}
	}()
	winch <- syscall.SIGWINCH
	defer func() {
		signal.Stop(winch)
		close(winch)
	}()

	fd := int(r.Stdin.Fd())
	if oldState, err := term.MakeRaw(fd); err != nil {
		r.logger().Debug("raw mode unavailable", "error", err)
	} else {
		defer func() { _ = term.Restore(fd, oldState) }()
	}

	input := startInputPump(ptmx, r.Stdin, r.logger())
	drained := make(chan struct{})
	go func() {
		_, _ = io.Copy(r.Stdout, ptmx)
		close(drained)
	}()

	stop := r.forwardSignals(cmd.Process, sigs, relayedSignals(true))
	code, waitErr := waitStatus(cmd.Wait())
	stop()
	input.Stop()

	select {
	case <-drained:
	case <-time.After(outputDrainTimeout):
	}
	return code, waitErr
}

func (r *Interactive) forwardSignals(proc *os.Process, sigs <-chan os.Signal, relay []os.Signal) func() {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigs:
				if !slices.Contains(relay, sig) {
					r.logger().Debug("signal left to the terminal", "signal", sig.String())
					continue
				}
				r.logger().Info("forwarding signal to session", "signal", sig.String())
				_ = proc.Signal(sig)
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }
}

// inputPump copies keystrokes from the terminal into the child's pty until
// stopped.
type inputPump struct {
	cr   cancelreader.CancelReader
	done chan struct{}
}

func startInputPump(dst io.Writer, src io.Reader, logger *slog.Logger) *inputPump {
	p := &inputPump{done: make(chan struct{})}
	cr, err := cancelreader.NewReader(src)
	if err != nil {
		logger.Warn("stdin is not cancellable, input may be read after the session ends", "error", err)
		go func() {
			_, _ = io.Copy(dst, src)
		}()
		close(p.done)
		return p
	}
	p.cr = cr
	go func() {
		defer close(p.done)
		_, _ = io.Copy(dst, cr)
	}()
	return p
}

// Stop cancels the pending read and waits for the copier to exit. It reports
// whether the copier is known to have stopped; a reader that cannot be
// cancelled is waited on for at most outputDrainTimeout.
func (p *inputPump) Stop() bool {
	if p.cr == nil {
		return false
	}
	defer func() { _ = p.cr.Close() }()
	if p.cr.Cancel() {
		<-p.done
		return true
	}
	select {
	case <-p.done:
		return true
	case <-time.After(outputDrainTimeout):
		return false
	}
}

func (r *Interactive) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// HoldSignals keeps SIGINT, SIGTERM and SIGHUP from terminating the process
// until the returned release func is called. Children still receive their
// default dispositions because the signals are caught, not ignored.
func HoldSignals(logger *slog.Logger) (release func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, forwardedSignals...)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigs:
				logger.Warn("signal received, finishing session before exit", "signal", sig.String())
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
