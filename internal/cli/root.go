// Package cli provides the command-line interface for alias-tunnel.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/treykane/alias-tunnel/internal/appconfig"
	"github.com/treykane/alias-tunnel/internal/config"
	"github.com/treykane/alias-tunnel/internal/doctor"
	"github.com/treykane/alias-tunnel/internal/events"
	"github.com/treykane/alias-tunnel/internal/iface"
	"github.com/treykane/alias-tunnel/internal/logging"
	"github.com/treykane/alias-tunnel/internal/model"
	"github.com/treykane/alias-tunnel/internal/runner"
	"github.com/treykane/alias-tunnel/internal/session"
	"github.com/treykane/alias-tunnel/internal/sshclient"
	"github.com/treykane/alias-tunnel/internal/util"
)

// deps are the host collaborators, swapped out in tests.
type deps struct {
	aliasRunner  runner.Runner
	tunnelRunner func(logger *slog.Logger) runner.Runner
	provider     iface.Provider
	lookPath     func(file string) (string, error)
}

func defaultDeps() deps {
	return deps{
		aliasRunner:  runner.NewExec(),
		tunnelRunner: func(logger *slog.Logger) runner.Runner { return runner.NewInteractive(logger) },
		provider:     iface.DetectProvider(),
		lookPath:     exec.LookPath,
	}
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDeps())
}

func newRootCommand(d deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "alias-tunnel <jump-host> <config-file>",
		Short: "Forward remote instance ports through one ssh session using loopback aliases",
		Long: strings.Join([]string{
			"Adds a loopback alias for every instance IP, opens one ssh connection to the",
			"jump host with an ip:port:ip:port local forward per (ip, port), and removes the",
			"aliases when the session ends. The exit code is the ssh exit code.",
		}, "\n"),
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, d, args[0], args[1])
		},
	}

	root.AddCommand(newPlanCmd(d))
	root.AddCommand(newDoctorCmd(d))
	root.AddCommand(newEventsCmd())
	return root
}

func runSession(cmd *cobra.Command, d deps, jumpHost, configPath string) error {
	cfg, err := appconfig.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel)

	// Everything that can fail on input happens before the first alias is added.
	instances, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}
	if _, err := d.lookPath(cfg.SSH.Binary); err != nil {
		return fmt.Errorf("ssh binary %q not found in PATH", cfg.SSH.Binary)
	}

	aliases := iface.NewManager(d.provider, d.aliasRunner, cfg.Aliases.Privilege, logger)
	opts := session.Options{
		Aliases:      aliases,
		Tunnel:       d.tunnelRunner(logger),
		Logger:       logger,
		SSHBinary:    cfg.SSH.Binary,
		ExtraArgs:    cfg.SSH.ExtraArgs,
		RemovePolicy: cfg.Aliases.RemovePolicy,
	}
	if cfg.Journal.Enabled {
		store, err := events.NewStore()
		if err != nil {
			logger.Warn("session journal disabled", "error", err)
		} else {
			opts.Journal = store
		}
	}

	release := runner.HoldSignals(logger)
	defer release()

	_, err = session.New(opts).Run(cmd.Context(), jumpHost, instances)
	return err
}

func newPlanCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <jump-host> <config-file>",
		Short: "Print the alias and ssh commands a session would run",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			instances, err := config.LoadFile(args[1])
			if err != nil {
				return err
			}
			aliases := iface.NewManager(d.provider, nil, cfg.Aliases.Privilege, slog.Default())
			p := buildPlan(aliases, cfg, args[0], instances)
			fmt.Fprintln(cmd.OutOrStdout(), renderPlan(p))
			return nil
		},
	}
}

func newDoctorCmd(d deps) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor <config-file>",
		Short: "Check the instance list and host tooling before a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			instances, err := config.LoadFile(args[0])
			if err != nil {
				return err
			}
			aliases := iface.NewManager(d.provider, nil, cfg.Aliases.Privilege, slog.Default())
			report := doctor.Run(doctor.Options{
				Instances: instances,
				Provider:  d.provider,
				SSHBinary: cfg.SSH.Binary,
				UsesSudo:  aliases.UsesSudo(),
				LookPath:  d.lookPath,
			})

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				if len(report.Issues) == 0 {
					fmt.Fprintln(out, "no issues found")
				}
				for _, issue := range report.Issues {
					fmt.Fprintf(out, "[%s] %s %s: %s\n", strings.ToUpper(string(issue.Severity)), issue.Check, issue.Target, issue.Message)
					fmt.Fprintf(out, "       %s\n", issue.Recommendation)
				}
			}
			if report.HasHigh() {
				return fmt.Errorf("doctor found high severity issues")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var (
		q       events.Query
		since   time.Duration
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the session journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := events.NewStore()
			if err != nil {
				return err
			}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			evts, err := store.Read(q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(evts)
			}
			fmt.Fprintf(out, "%-20s %-36s %-20s %-16s %-5s %s\n", "TIME", "SESSION", "EVENT", "IP", "EXIT", "MESSAGE")
			for _, e := range evts {
				exit := "-"
				if e.ExitCode != nil {
					exit = fmt.Sprint(*e.ExitCode)
				}
				fmt.Fprintf(out, "%-20s %-36s %-20s %-16s %-5s %s\n",
					e.Timestamp.Local().Format(time.DateTime), e.SessionID, e.EventType,
					util.DefaultString(e.IP, "-"), exit, e.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&q.SessionID, "session", "", "only events of this session id")
	cmd.Flags().StringVar(&q.IP, "ip", "", "only events for this alias ip")
	cmd.Flags().StringVar(&q.EventType, "type", "", "only events of this type, e.g. alias_add_failed")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this, e.g. 24h")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "keep at most the most recent n events (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

// plan is the dry-run view of a session.
type plan struct {
	JumpHost string
	Provider string
	Add      [][]string
	Tunnel   []string
	Remove   [][]string
	Policy   appconfig.RemovePolicy
}

func buildPlan(aliases *iface.Manager, cfg appconfig.Config, jumpHost string, instances []model.Instance) plan {
	p := plan{
		JumpHost: jumpHost,
		Provider: aliases.Provider().Name(),
		Tunnel:   sshclient.BuildTunnelArgs(cfg.SSH.Binary, cfg.SSH.ExtraArgs, jumpHost, instances),
		Policy:   cfg.Aliases.RemovePolicy,
	}
	for _, inst := range instances {
		for _, ip := range inst.IPs {
			p.Add = append(p.Add, aliases.Command(model.AliasAdd, ip))
			p.Remove = append(p.Remove, aliases.Command(model.AliasRemove, ip))
		}
	}
	return p
}
