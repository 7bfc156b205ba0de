package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	planTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	planMuted = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func renderPlan(p plan) string {
	sections := []string{
		planTitle.Render(fmt.Sprintf("Session plan for %s", p.JumpHost)),
		renderSection("1. add aliases ("+p.Provider+")", joinCommands(p.Add), lipgloss.Color("69")),
		renderSection("2. tunnel (blocks until ssh exits)", tunnelLines(p.Tunnel), lipgloss.Color("63")),
		renderSection("3. remove aliases (policy: "+string(p.Policy)+")", joinCommands(p.Remove), lipgloss.Color("205")),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func renderSection(title, body string, accent lipgloss.Color) string {
	if strings.TrimSpace(body) == "" {
		body = planMuted.Render("(none)")
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(header + "\n" + body)
}

func joinCommands(cmds [][]string) string {
	lines := make([]string, 0, len(cmds))
	for _, c := range cmds {
		lines = append(lines, strings.Join(c, " "))
	}
	return strings.Join(lines, "\n")
}

// tunnelLines puts each -L forward on its own continuation line.
func tunnelLines(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(argv[0])
	for i := 1; i < len(argv); i++ {
		if argv[i] == "-L" && i+1 < len(argv) {
			fmt.Fprintf(&b, " \\\n  -L %s", argv[i+1])
			i++
			continue
		}
		b.WriteString(" " + argv[i])
	}
	return b.String()
}
