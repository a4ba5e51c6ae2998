// Package health periodically probes engine availability and host
// resources, and derives diagnostics from the collected state.
package health

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/yhl9/chaptervox/tts"
)

// ProbeInterval is the sweep cadence.
const ProbeInterval = 30 * time.Second

// EngineProbe is one engine's probe outcome.
type EngineProbe struct {
	EngineID  string        `json:"engine_id"`
	State     tts.EngineState `json:"state"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
}

// HostStats is a host resource snapshot.
type HostStats struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	DiskPercent float64 `json:"disk_percent"`
	SampledAt   time.Time `json:"sampled_at"`
}

// Snapshot is the monitor's full state at a point in time.
type Snapshot struct {
	Engines    map[string]EngineProbe `json:"engines"`
	Host       HostStats              `json:"host"`
	ErrorCount int                    `json:"error_count"`
	SweptAt    time.Time              `json:"swept_at"`
}

// Monitor sweeps the registered engines and the host on a fixed interval.
// Engine probes are expensive (they may hit remote services), so after the
// first fully healthy sweep they are skipped until explicitly re-armed.
type Monitor struct {
	registry *tts.Registry
	diskPath string

	mu             sync.Mutex
	snapshot       Snapshot
	enginesHealthy bool
	errorCount     int

	prevIdle  uint64
	prevTotal uint64
}

// NewMonitor creates a monitor for the engines in registry. diskPath is the
// filesystem whose usage is tracked, typically the output directory.
func NewMonitor(registry *tts.Registry, diskPath string) *Monitor {
	return &Monitor{
		registry: registry,
		diskPath: diskPath,
		snapshot: Snapshot{Engines: make(map[string]EngineProbe)},
	}
}

// Run sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()

	m.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep probes the host and, unless a previous sweep found every engine
// healthy, each registered engine.
func (m *Monitor) Sweep(ctx context.Context) Snapshot {
	host := m.sampleHost()

	m.mu.Lock()
	skipEngines := m.enginesHealthy
	m.mu.Unlock()

	probes := make(map[string]EngineProbe)
	if !skipEngines {
		probes = m.probeEngines(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot.Host = host
	m.snapshot.SweptAt = time.Now()
	if !skipEngines {
		allHealthy := len(probes) > 0
		for id, p := range probes {
			m.snapshot.Engines[id] = p
			if p.State != tts.EngineAvailable {
				allHealthy = false
				m.errorCount++
			}
		}
		if allHealthy {
			m.enginesHealthy = true
			log.Debug("all engines healthy, suspending engine probes")
		}
	}
	m.snapshot.ErrorCount = m.errorCount
	return m.snapshot
}

// probeEngines checks every registered engine concurrently.
func (m *Monitor) probeEngines(ctx context.Context) map[string]EngineProbe {
	ids := m.registry.IDs()
	probes := make([]EngineProbe, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			probes[i] = m.probeOne(ctx, id)
			return nil
		})
	}
	g.Wait()

	out := make(map[string]EngineProbe, len(probes))
	for _, p := range probes {
		out[p.EngineID] = p
	}
	return out
}

// probeOne checks a single engine. A dead engine gets an init retry so it
// can come back without a restart; a live one is probed via its voice list,
// the cheapest call that exercises the full backend path. The engine's own
// status tracker is what the registry consults for fallback decisions, so a
// successful retry restores its availability there too.
func (m *Monitor) probeOne(ctx context.Context, id string) EngineProbe {
	probe := EngineProbe{EngineID: id, CheckedAt: time.Now()}
	e, err := m.registry.Get(id)
	if err != nil {
		probe.State = tts.EngineUnavailable
		probe.Error = err.Error()
		return probe
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	start := time.Now()
	if e.Status().State == tts.EngineAvailable {
		_, err = e.ListVoices(ctx)
	} else {
		err = e.Init(ctx)
		if err == nil {
			log.Info("engine recovered", "engine", id)
		}
	}
	probe.Latency = time.Since(start)
	if err != nil {
		probe.State = tts.EngineError
		probe.Error = err.Error()
		log.Warn("engine probe failed", "engine", id, "err", err)
		return probe
	}
	probe.State = tts.EngineAvailable
	return probe
}

// ResetEngineHealthCheck re-arms engine probing after it was suspended by a
// fully healthy sweep.
func (m *Monitor) ResetEngineHealthCheck() {
	m.mu.Lock()
	m.enginesHealthy = false
	m.mu.Unlock()
	log.Debug("engine probes re-armed")
}

// RecordError counts an external failure (e.g. a failed task) toward the
// diagnostics error threshold.
func (m *Monitor) RecordError() {
	m.mu.Lock()
	m.errorCount++
	m.mu.Unlock()
}

// Current returns the latest snapshot.
func (m *Monitor) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.snapshot
	out.Engines = make(map[string]EngineProbe, len(m.snapshot.Engines))
	for k, v := range m.snapshot.Engines {
		out.Engines[k] = v
	}
	return out
}

// sampleHost reads CPU, memory and disk usage from the host.
func (m *Monitor) sampleHost() HostStats {
	stats := HostStats{SampledAt: time.Now()}

	if cpu, ok := m.sampleCPU(); ok {
		stats.CPUPercent = cpu
	}
	if mem, ok := sampleMemory(); ok {
		stats.MemPercent = mem
	}
	if disk, ok := sampleDisk(m.diskPath); ok {
		stats.DiskPercent = disk
	}
	return stats
}

// sampleCPU derives CPU utilization from consecutive /proc/stat reads.
// The first call only seeds the counters and reports no usage.
func (m *Monitor) sampleCPU() (float64, bool) {
	f, err := os.Open("/proc/stat")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return 0, false
	}
	fields := strings.Fields(sc.Text())
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, false
	}
	var total, idle uint64
	for i, field := range fields[1:] {
		v, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return 0, false
		}
		total += v
		if i == 3 { // idle column
			idle = v
		}
	}

	m.mu.Lock()
	prevIdle, prevTotal := m.prevIdle, m.prevTotal
	m.prevIdle, m.prevTotal = idle, total
	m.mu.Unlock()

	if prevTotal == 0 || total <= prevTotal {
		return 0, false
	}
	dTotal := float64(total - prevTotal)
	dIdle := float64(idle - prevIdle)
	return (dTotal - dIdle) / dTotal * 100, true
}

func sampleMemory() (float64, bool) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	var total, available uint64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = v
		case "MemAvailable:":
			available = v
		}
	}
	if total == 0 {
		return 0, false
	}
	return float64(total-available) / float64(total) * 100, true
}

func sampleDisk(path string) (float64, bool) {
	if path == "" {
		path = "."
	}
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, false
	}
	if st.Blocks == 0 {
		return 0, false
	}
	used := st.Blocks - st.Bavail
	return float64(used) / float64(st.Blocks) * 100, true
}

// String renders host stats for log output.
func (h HostStats) String() string {
	return fmt.Sprintf("cpu=%.1f%% mem=%.1f%% disk=%.1f%%", h.CPUPercent, h.MemPercent, h.DiskPercent)
}
