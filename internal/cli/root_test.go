package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/treykane/alias-tunnel/internal/appconfig"
	"github.com/treykane/alias-tunnel/internal/config"
	"github.com/treykane/alias-tunnel/internal/events"
	"github.com/treykane/alias-tunnel/internal/iface"
	"github.com/treykane/alias-tunnel/internal/runner"
	"github.com/treykane/alias-tunnel/internal/runner/runnertest"
	"github.com/treykane/alias-tunnel/internal/session"
)

const scenarioJSON = `[{"ip":"127.0.1.1","ports":[8080]}, {"ips":["127.0.1.2","127.0.1.3"],"ports":[22,9090]}]`

const scenarioTunnel = "ssh -L 127.0.1.1:8080:127.0.1.1:8080 -L 127.0.1.2:22:127.0.1.2:22 -L 127.0.1.2:9090:127.0.1.2:9090 -L 127.0.1.3:22:127.0.1.3:22 -L 127.0.1.3:9090:127.0.1.3:9090 bastion"

func setupCLI(t *testing.T, instances string) (string, *runnertest.Fake, deps) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("ALIAS_TUNNEL_LOG_LEVEL", "error")

	cfg := appconfig.Default()
	cfg.Aliases.Privilege = appconfig.PrivilegeNone
	if err := appconfig.Save(cfg); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "instances.json")
	if err := os.WriteFile(path, []byte(instances), 0o600); err != nil {
		t.Fatal(err)
	}

	fake := runnertest.New()
	d := deps{
		aliasRunner:  fake,
		tunnelRunner: func(*slog.Logger) runner.Runner { return fake },
		provider:     iface.LinuxIPRoute{},
		lookPath:     func(string) (string, error) { return "/usr/bin/true", nil },
	}
	return path, fake, d
}

func TestRootRunsFullSession(t *testing.T) {
	path, fake, d := setupCLI(t, scenarioJSON)

	cmd := newRootCommand(d)
	cmd.SetArgs([]string{"bastion", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	want := []string{
		"ip addr add 127.0.1.1 dev lo",
		"ip addr add 127.0.1.2 dev lo",
		"ip addr add 127.0.1.3 dev lo",
		scenarioTunnel,
		"ip addr del 127.0.1.1 dev lo",
		"ip addr del 127.0.1.2 dev lo",
		"ip addr del 127.0.1.3 dev lo",
	}
	got := fake.Commands()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("command sequence mismatch\nwant=%q\n got=%q", want, got)
	}

	store, err := events.NewStore()
	if err != nil {
		t.Fatal(err)
	}
	exited, err := store.Read(events.Query{EventType: events.TunnelExited})
	if err != nil {
		t.Fatal(err)
	}
	if len(exited) != 1 || exited[0].JumpHost != "bastion" {
		t.Fatalf("expected one tunnel_exited event, got %+v", exited)
	}
}

func TestRootPropagatesTunnelExitCode(t *testing.T) {
	path, fake, d := setupCLI(t, scenarioJSON)
	fake.Script(strings.Fields(scenarioTunnel), runnertest.Result{ExitCode: 255})

	cmd := newRootCommand(d)
	cmd.SetArgs([]string{"bastion", path})
	err := cmd.Execute()

	var tunnelErr *session.TunnelError
	if !errors.As(err, &tunnelErr) {
		t.Fatalf("expected tunnel error, got %v", err)
	}
	if tunnelErr.ExitCode != 255 {
		t.Fatalf("expected exit code 255, got %d", tunnelErr.ExitCode)
	}
	if n := len(fake.Calls); n != 7 {
		t.Fatalf("expected cleanup to run after failure, got %d commands", n)
	}
}

func TestRootConfigErrorsTouchNothing(t *testing.T) {
	tests := []struct {
		name      string
		instances string
		want      error
	}{
		{name: "missing ports", instances: `[{"ip":"127.0.1.1"}]`, want: config.ErrMissingPorts},
		{name: "no address", instances: `[{"ports":[22]}]`, want: config.ErrNoAddress},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path, fake, d := setupCLI(t, tc.instances)
			cmd := newRootCommand(d)
			cmd.SetArgs([]string{"bastion", path})
			err := cmd.Execute()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(fake.Calls) != 0 {
				t.Fatalf("expected no commands, got %v", fake.Commands())
			}
		})
	}
}

func TestRootMissingSSHBinary(t *testing.T) {
	path, fake, d := setupCLI(t, scenarioJSON)
	d.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	cmd := newRootCommand(d)
	cmd.SetArgs([]string{"bastion", path})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for missing ssh binary")
	}
	if len(fake.Calls) != 0 {
		t.Fatalf("expected no commands, got %v", fake.Commands())
	}
}

func TestRootRequiresTwoArgs(t *testing.T) {
	_, _, d := setupCLI(t, scenarioJSON)
	cmd := newRootCommand(d)
	cmd.SetArgs([]string{"bastion"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected argument error")
	}
}

func TestPlanOutput(t *testing.T) {
	path, fake, d := setupCLI(t, scenarioJSON)

	var out bytes.Buffer
	cmd := newRootCommand(d)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"plan", "bastion", path})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("plan: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"Session plan for bastion",
		"ip addr add 127.0.1.1 dev lo",
		"-L 127.0.1.2:9090:127.0.1.2:9090",
		"ip addr del 127.0.1.3 dev lo",
		"policy: all",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in plan output, got:\n%s", want, got)
		}
	}
	if len(fake.Calls) != 0 {
		t.Fatalf("plan must not run commands, got %v", fake.Commands())
	}
}

func TestDoctorJSONOutput(t *testing.T) {
	path, _, d := setupCLI(t, `[{"ip":"127.0.1.1","ports":[8080]}, {"ip":"127.0.1.1","ports":[9090]}]`)

	var out bytes.Buffer
	cmd := newRootCommand(d)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"doctor", path, "--json"})
	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for high severity duplicate ip")
	}

	var payload map[string]any
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("invalid doctor json: %v; output=%s", err, out.String())
	}
	issues, ok := payload["issues"].([]any)
	if !ok || len(issues) == 0 {
		t.Fatalf("expected issues in doctor output: %s", out.String())
	}
}

func TestEventsFiltersBySession(t *testing.T) {
	path, fake, d := setupCLI(t, scenarioJSON)
	fake.Script([]string{"ip", "addr", "add", "127.0.1.2", "dev", "lo"}, runnertest.Result{ExitCode: 2})

	for i := 0; i < 2; i++ {
		cmd := newRootCommand(d)
		cmd.SetArgs([]string{"bastion", path})
		if err := cmd.Execute(); err != nil {
			t.Fatalf("execute: %v", err)
		}
	}

	var out bytes.Buffer
	cmd := newRootCommand(d)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"events", "--type", events.SessionStarted, "--json"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("events: %v", err)
	}
	var started []events.Event
	if err := json.Unmarshal(out.Bytes(), &started); err != nil {
		t.Fatalf("invalid events json: %v; output=%s", err, out.String())
	}
	if len(started) != 2 || started[0].SessionID == started[1].SessionID {
		t.Fatalf("expected two distinct sessions, got %+v", started)
	}

	out.Reset()
	cmd = newRootCommand(d)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"events", "--session", started[1].SessionID, "--ip", "127.0.1.2"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("events: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "alias_add_failed") || !strings.Contains(got, "alias_removed") {
		t.Fatalf("expected add failure and removal for 127.0.1.2, got:\n%s", got)
	}
	if strings.Contains(got, started[0].SessionID) {
		t.Fatalf("events from another session leaked into output:\n%s", got)
	}
	if strings.Contains(got, "127.0.1.1") {
		t.Fatalf("events for another ip leaked into output:\n%s", got)
	}
}
