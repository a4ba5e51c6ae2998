package health

import (
	"fmt"

	"github.com/yhl9/chaptervox/tts"
)

// Severity ranks a diagnostic finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Finding is one diagnostic result.
type Finding struct {
	Code       string   `json:"code"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// Diagnostic thresholds.
const (
	cpuThreshold    = 90.0
	memThreshold    = 85.0
	diskThreshold   = 90.0
	errorsThreshold = 10
)

// Diagnose derives findings from a monitor snapshot. An empty result means
// no problems were detected.
func Diagnose(s Snapshot) []Finding {
	var findings []Finding

	if s.Host.CPUPercent > cpuThreshold {
		findings = append(findings, Finding{
			Code:       "host_cpu_high",
			Severity:   SeverityHigh,
			Message:    fmt.Sprintf("CPU usage at %.1f%%", s.Host.CPUPercent),
			Suggestion: "reduce concurrent tasks or wait for other workloads to finish",
		})
	}
	if s.Host.MemPercent > memThreshold {
		findings = append(findings, Finding{
			Code:       "host_memory_high",
			Severity:   SeverityHigh,
			Message:    fmt.Sprintf("memory usage at %.1f%%", s.Host.MemPercent),
			Suggestion: "lower the memory limit or close other applications",
		})
	}
	if s.Host.DiskPercent > diskThreshold {
		findings = append(findings, Finding{
			Code:       "disk_nearly_full",
			Severity:   SeverityCritical,
			Message:    fmt.Sprintf("output disk at %.1f%% capacity", s.Host.DiskPercent),
			Suggestion: "free disk space before converting more chapters",
		})
	}

	total := len(s.Engines)
	available := 0
	for _, p := range s.Engines {
		if p.State == tts.EngineAvailable {
			available++
		}
	}
	switch {
	case total > 0 && available == 0:
		findings = append(findings, Finding{
			Code:       "no_engines_available",
			Severity:   SeverityCritical,
			Message:    "no synthesis engine is available",
			Suggestion: "check engine configuration and network connectivity",
		})
	case total > 0 && available*2 < total:
		findings = append(findings, Finding{
			Code:       "engines_degraded",
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("only %d of %d engines available", available, total),
			Suggestion: "failed engines fall back to the highest-priority healthy one",
		})
	}

	if s.ErrorCount > errorsThreshold {
		findings = append(findings, Finding{
			Code:       "error_rate_high",
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("%d errors recorded since startup", s.ErrorCount),
			Suggestion: "inspect the log for recurring failures",
		})
	}
	return findings
}

// WorstSeverity returns the highest severity among findings, or "" when
// there are none.
func WorstSeverity(findings []Finding) Severity {
	rank := map[Severity]int{SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3, SeverityCritical: 4}
	var worst Severity
	for _, f := range findings {
		if rank[f.Severity] > rank[worst] {
			worst = f.Severity
		}
	}
	return worst
}
