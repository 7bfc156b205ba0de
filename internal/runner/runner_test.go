package runner

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available in test environment")
	}
}

func TestExecReportsExitCode(t *testing.T) {
	requireShell(t)
	var out bytes.Buffer
	r := &Exec{Stdout: &out, Stderr: &out}

	code, err := r.Run(context.Background(), []string{"sh", "-c", "echo hi; exit 3"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
	if strings.TrimSpace(out.String()) != "hi" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestExecStartFailure(t *testing.T) {
	r := &Exec{}
	code, err := r.Run(context.Background(), []string{"/nonexistent/alias-tunnel-test-binary"})
	if err == nil {
		t.Fatal("expected start error")
	}
	if code != -1 {
		t.Fatalf("expected -1 exit code, got %d", code)
	}
}

func TestExecEmptyCommand(t *testing.T) {
	r := &Exec{}
	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestInteractiveWithoutTerminal(t *testing.T) {
	requireShell(t)
	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatal(err)
	}
	defer devNull.Close()

	var out bytes.Buffer
	r := &Interactive{Stdin: devNull, Stdout: &out, Stderr: &out, Logger: slog.Default()}
	code, err := r.Run(context.Background(), []string{"sh", "-c", "echo session; exit 255"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 255 {
		t.Fatalf("expected exit code 255, got %d", code)
	}
	if !strings.Contains(out.String(), "session") {
		t.Fatalf("expected child output, got %q", out.String())
	}
}

func TestRelayedSignals(t *testing.T) {
	if slices.Contains(relayedSignals(false), os.Signal(syscall.SIGINT)) {
		t.Fatal("SIGINT must not be relayed to a child sharing the terminal")
	}
	for _, sig := range []os.Signal{syscall.SIGTERM, syscall.SIGHUP} {
		if !slices.Contains(relayedSignals(false), sig) {
			t.Fatalf("expected %v to be relayed", sig)
		}
	}
	if !slices.Contains(relayedSignals(true), os.Signal(syscall.SIGINT)) {
		t.Fatal("SIGINT must be relayed to a child on its own pty")
	}
}

// signalOnReady sends the listed signals to this process once the child
// prints "ready".
type signalOnReady struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	once sync.Once
	sigs []syscall.Signal
}

func (w *signalOnReady) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf.Write(p)
	ready := strings.Contains(w.buf.String(), "ready")
	w.mu.Unlock()
	if ready {
		w.once.Do(func() {
			for _, sig := range w.sigs {
				_ = syscall.Kill(os.Getpid(), sig)
				time.Sleep(100 * time.Millisecond)
			}
		})
	}
	return len(p), nil
}

func (w *signalOnReady) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestInteractiveWithoutTerminalLeavesSIGINTToTerminal(t *testing.T) {
	requireShell(t)
	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatal(err)
	}
	defer devNull.Close()

	out := &signalOnReady{sigs: []syscall.Signal{syscall.SIGINT, syscall.SIGTERM}}
	r := &Interactive{Stdin: devNull, Stdout: out, Stderr: out, Logger: slog.Default()}
	script := `trap 'echo got-int' INT; trap 'exit 7' TERM; echo ready; while :; do sleep 0.05; done`
	code, err := r.Run(context.Background(), []string{"sh", "-c", script})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if code != 7 {
		t.Fatalf("expected SIGTERM to be forwarded (exit 7), got %d", code)
	}
	if strings.Contains(out.String(), "got-int") {
		t.Fatalf("SIGINT was forwarded a second time: %q", out.String())
	}
}

type chanWriter chan []byte

func (w chanWriter) Write(p []byte) (int, error) {
	w <- append([]byte(nil), p...)
	return len(p), nil
}

func TestInputPumpReleasesStdinOnStop(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer pr.Close()
	defer pw.Close()

	got := make(chanWriter, 8)
	p := startInputPump(got, pr, slog.Default())

	if _, err := pw.Write([]byte("exit\n")); err != nil {
		t.Fatal(err)
	}
	select {
	case b := <-got:
		if string(b) != "exit\n" {
			t.Fatalf("unexpected forwarded input: %q", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("input was not forwarded")
	}

	if !p.Stop() {
		t.Skip("stdin cancellation not supported on this platform")
	}
	select {
	case <-p.done:
	default:
		t.Fatal("copier still running after Stop")
	}

	// The next line typed belongs to whoever reads the terminal next.
	if _, err := pw.Write([]byte("secret\n")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 32)
	n, err := pr.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "secret\n" {
		t.Fatalf("expected input to stay unread, got %q", buf[:n])
	}
	select {
	case b := <-got:
		t.Fatalf("input consumed after Stop: %q", b)
	default:
	}
}
