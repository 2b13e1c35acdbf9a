package doctor

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7ad97a")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#fada16")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff6b6b")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8771a6"))
)

func RenderJSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func RenderHuman(w io.Writer, cfg Config, configPath string, rep Report) {
	fmt.Fprintf(w, "gopamix doctor  server=%s  timeout=%dms\n", rep.Server, cfg.TimeoutMS)
	if configPath != "" {
		fmt.Fprintln(w, dimStyle.Render("config: "+configPath))
	}
	if rep.ServerVersion != "" {
		fmt.Fprintln(w, dimStyle.Render("server: "+rep.ServerVersion))
	}
	fmt.Fprintln(w)

	for _, c := range rep.Checks {
		mark := okStyle.Render("ok  ")
		switch {
		case !c.OK:
			mark = failStyle.Render("FAIL")
		case c.Warning:
			mark = warnStyle.Render("warn")
		}
		fmt.Fprintf(w, "  %s  %-14s %5dms  %s\n", mark, c.Name, c.Duration, c.Message)
	}

	fmt.Fprintln(w)
	result := okStyle.Render(rep.Result)
	if rep.ExitCode != ExitOK {
		result = failStyle.Render(rep.Result)
	}
	fmt.Fprintf(w, "result: %s (exit %d)\n", result, rep.ExitCode)
}
