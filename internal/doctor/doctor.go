// Package doctor runs preflight diagnostics for a session without touching
// host network state.
package doctor

import (
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strings"

	"github.com/treykane/alias-tunnel/internal/iface"
	"github.com/treykane/alias-tunnel/internal/model"
	"github.com/treykane/alias-tunnel/internal/sshclient"
	"github.com/treykane/alias-tunnel/internal/util"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	Issues []Issue `json:"issues"`
}

// HasHigh reports whether any issue would likely break the session.
func (r Report) HasHigh() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// Options carries what the checks inspect. LookPath and LocalAddrs default to
// exec.LookPath and the host's interface addresses.
type Options struct {
	Instances  []model.Instance
	Provider   iface.Provider
	SSHBinary  string
	UsesSudo   bool
	LookPath   func(file string) (string, error)
	LocalAddrs func() ([]string, error)
}

// Run executes local diagnostics for the given instance list.
func Run(opts Options) Report {
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.LocalAddrs == nil {
		opts.LocalAddrs = localAddrs
	}
	if opts.Provider == nil {
		opts.Provider = iface.DetectProvider()
	}

	var issues []Issue
	issues = append(issues, binaryIssues(opts)...)
	issues = append(issues, duplicateIssues(opts.Instances)...)
	issues = append(issues, addressIssues(opts)...)

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	return Report{Issues: issues}
}

func binaryIssues(opts Options) []Issue {
	var issues []Issue
	sshBinary := util.DefaultString(opts.SSHBinary, util.DefaultSSHBinary)
	if _, err := opts.LookPath(sshBinary); err != nil {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "ssh-binary",
			Target:         "PATH",
			Message:        fmt.Sprintf("ssh binary %q not found", sshBinary),
			Recommendation: "install the OpenSSH client or set ssh.binary in config.yaml",
		})
	}
	if tool := opts.Provider.Tool(); tool != "" {
		if _, err := opts.LookPath(tool); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "alias-tool",
				Target:         "PATH",
				Message:        fmt.Sprintf("%s not found (needed by %s)", tool, opts.Provider.Name()),
				Recommendation: fmt.Sprintf("install %s so loopback aliases can be managed", tool),
			})
		}
	}
	if opts.UsesSudo {
		if _, err := opts.LookPath(util.SudoBinary); err != nil {
			issues = append(issues, Issue{
				Severity:       SeverityHigh,
				Check:          "sudo-binary",
				Target:         "PATH",
				Message:        "sudo not found but alias commands require it",
				Recommendation: "install sudo, run as root, or set aliases.privilege to none",
			})
		}
	}
	return issues
}

func duplicateIssues(instances []model.Instance) []Issue {
	var issues []Issue
	ipOwners := map[string][]int{}
	for idx, inst := range instances {
		for _, ip := range inst.IPs {
			ipOwners[ip] = append(ipOwners[ip], idx)
		}
	}
	for ip, owners := range ipOwners {
		if len(owners) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "duplicate-ip",
			Target:         ip,
			Message:        fmt.Sprintf("ip is configured by %d instances %v", len(owners), owners),
			Recommendation: "merge the instances so each ip is aliased once",
		})
	}

	binds := map[string]int{}
	for _, fwd := range sshclient.Forwards(instances) {
		binds[fwd.Local()]++
	}
	for bind, n := range binds {
		if n < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "duplicate-bind",
			Target:         bind,
			Message:        fmt.Sprintf("local bind is forwarded %d times", n),
			Recommendation: "remove repeated ports so ssh does not fail to bind",
		})
	}
	return issues
}

func addressIssues(opts Options) []Issue {
	var issues []Issue
	existing := map[string]struct{}{}
	if addrs, err := opts.LocalAddrs(); err == nil {
		for _, a := range addrs {
			existing[a] = struct{}{}
		}
	} else {
		issues = append(issues, Issue{
			Severity:       SeverityLow,
			Check:          "local-addresses",
			Target:         "host",
			Message:        fmt.Sprintf("unable to list local addresses: %v", err),
			Recommendation: "verify manually that configured ips are not already assigned",
		})
	}

	seenIP := map[string]struct{}{}
	seenPort := map[int]struct{}{}
	for _, inst := range opts.Instances {
		for _, ip := range inst.IPs {
			if _, ok := seenIP[ip]; ok {
				continue
			}
			seenIP[ip] = struct{}{}
			if net.ParseIP(ip) == nil {
				issues = append(issues, Issue{
					Severity:       SeverityMedium,
					Check:          "invalid-ip",
					Target:         ip,
					Message:        "not an IP literal; it is passed to the alias command unchanged",
					Recommendation: "use a literal IPv4 address",
				})
			}
			if _, ok := existing[ip]; ok {
				issues = append(issues, Issue{
					Severity:       SeverityMedium,
					Check:          "alias-exists",
					Target:         ip,
					Message:        "address is already assigned to a local interface",
					Recommendation: "teardown would remove it; drop the ip from the list or remove the address first",
				})
			}
		}
		for _, port := range inst.Ports {
			if _, ok := seenPort[port]; ok {
				continue
			}
			seenPort[port] = struct{}{}
			if util.IsPrivilegedPort(port) {
				issues = append(issues, Issue{
					Severity:       SeverityMedium,
					Check:          "privileged-port",
					Target:         fmt.Sprintf("%d", port),
					Message:        fmt.Sprintf("binding port %d locally requires root", port),
					Recommendation: "run the session as root or expect ssh to report a bind failure for this forward",
				})
			}
		}
	}
	return issues
}

func localAddrs() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		s := a.String()
		if i := strings.IndexByte(s, '/'); i >= 0 {
			s = s[:i]
		}
		out = append(out, s)
	}
	return out, nil
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
