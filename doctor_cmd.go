package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yhl9/chaptervox/internal/health"
	"github.com/yhl9/chaptervox/tts"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check engine availability and host resources",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := openConfig()
		if err != nil {
			return err
		}
		registry, err := buildEngineRegistry(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer registry.Close() //nolint:errcheck

		monitor := health.NewMonitor(registry, cfg.App().Files.DefaultOutputDir)
		snap := monitor.Sweep(cmd.Context())

		fmt.Println("Engines:")
		for _, id := range registry.IDs() {
			probe, ok := snap.Engines[id]
			if !ok {
				continue
			}
			mark := okMark
			detail := probe.Latency.Round(time.Millisecond).String()
			if probe.State != tts.EngineAvailable {
				mark = badMark
				detail = probe.Error
			}
			fmt.Printf("  %s %-14s %s\n", mark, id, detail)
		}

		fmt.Println("\nHost:")
		fmt.Printf("  cpu %.1f%%  memory %.1f%%  disk %.1f%%\n",
			snap.Host.CPUPercent, snap.Host.MemPercent, snap.Host.DiskPercent)

		findings := health.Diagnose(snap)
		if len(findings) == 0 {
			fmt.Println("\nNo problems found.")
			return nil
		}
		fmt.Println("\nFindings:")
		for _, f := range findings {
			fmt.Printf("  %s %s\n", severityBadge(f.Severity), f.Message)
			if f.Suggestion != "" {
				fmt.Printf("    %s\n", f.Suggestion)
			}
		}
		if health.WorstSeverity(findings) == health.SeverityCritical {
			return fmt.Errorf("critical problems found")
		}
		return nil
	},
}

var (
	okMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Render("✓")
	badMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#ED567A")).Render("✗")
)

func severityBadge(s health.Severity) string {
	var color string
	switch s {
	case health.SeverityCritical:
		color = "#FF0000"
	case health.SeverityHigh:
		color = "#ED567A"
	case health.SeverityMedium:
		color = "#FF8800"
	default:
		color = "#888888"
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(color)).
		Render("[" + string(s) + "]")
}
