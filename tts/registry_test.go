package tts

import (
	"context"
	"errors"
	"testing"
)

// stubEngine is a minimal Engine for registry tests.
type stubEngine struct {
	id    string
	state EngineState
}

func (s *stubEngine) Init(ctx context.Context) error { return nil }
func (s *stubEngine) ListVoices(ctx context.Context) ([]VoiceInfo, error) {
	return []VoiceInfo{{ID: "v1", Language: "en-US"}}, nil
}
func (s *stubEngine) Validate(cfg VoiceConfig) (VoiceConfig, error) { return cfg, nil }
func (s *stubEngine) Synthesize(ctx context.Context, text string, cfg VoiceConfig) (*SynthesisResult, error) {
	return &SynthesisResult{Success: true}, nil
}
func (s *stubEngine) Describe() EngineDescriptor { return EngineDescriptor{ID: s.id} }
func (s *stubEngine) Status() EngineStatus       { return EngineStatus{State: s.state} }
func (s *stubEngine) Close() error               { return nil }

func TestRegistryResolveDirect(t *testing.T) {
	r := NewRegistry()
	e := &stubEngine{id: "a", state: EngineAvailable}
	r.Register(e, true, 50)
	got, err := r.Resolve("a")
	if err != nil {
		t.Fatal(err)
	}
	if got != Engine(e) {
		t.Error("resolved a different engine")
	}
}

func TestRegistryResolveFallsBack(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubEngine{id: "dead", state: EngineError}, true, 90)
	healthy := &stubEngine{id: "healthy", state: EngineAvailable}
	r.Register(healthy, true, 40)

	got, err := r.Resolve("dead")
	if err != nil {
		t.Fatal(err)
	}
	if got.Describe().ID != "healthy" {
		t.Errorf("fallback = %s, want healthy", got.Describe().ID)
	}
}

func TestRegistryResolveDisabledEngine(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubEngine{id: "off", state: EngineAvailable}, false, 50)
	backup := &stubEngine{id: "on", state: EngineAvailable}
	r.Register(backup, true, 10)

	got, err := r.Resolve("off")
	if err != nil {
		t.Fatal(err)
	}
	if got.Describe().ID != "on" {
		t.Errorf("resolved %s, want on", got.Describe().ID)
	}
}

func TestRegistryResolveNoCandidates(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubEngine{id: "dead", state: EngineError}, true, 50)
	_, err := r.Resolve("dead")
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("err = %v, want ErrEngineUnavailable", err)
	}
	_, err = r.Resolve("never-registered")
	if !errors.Is(err, ErrEngineNotFound) {
		t.Fatalf("err = %v, want ErrEngineNotFound", err)
	}
}

func TestRegistryCandidatesOrdering(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubEngine{id: "low", state: EngineAvailable}, true, 10)
	r.Register(&stubEngine{id: "high", state: EngineAvailable}, true, 90)
	r.Register(&stubEngine{id: "mid", state: EngineAvailable}, true, 50)
	r.Register(&stubEngine{id: "down", state: EngineUnavailable}, true, 99)

	got := r.Candidates()
	want := []string{"high", "mid", "low"}
	if len(got) != len(want) {
		t.Fatalf("candidates = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].Describe().ID != id {
			t.Errorf("candidate %d = %s, want %s", i, got[i].Describe().ID, id)
		}
	}
}

func TestRegistrySetPriorityBounds(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubEngine{id: "a", state: EngineAvailable}, true, 50)
	if err := r.SetPriority("a", 101); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
	if err := r.SetPriority("a", 80); err != nil {
		t.Fatal(err)
	}
	cfg, err := r.Config("a")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Priority != 80 {
		t.Errorf("priority = %d, want 80", cfg.Priority)
	}
}

func TestRegistryRegisterKeepsSettings(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubEngine{id: "a", state: EngineAvailable}, true, 50)
	if err := r.SetEnabled("a", false); err != nil {
		t.Fatal(err)
	}
	// Re-registering replaces the instance but keeps stored settings.
	r.Register(&stubEngine{id: "a", state: EngineAvailable}, true, 99)
	cfg, err := r.Config("a")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Enabled {
		t.Error("re-register overwrote the enabled flag")
	}
	if cfg.Priority != 50 {
		t.Errorf("priority = %d, want 50", cfg.Priority)
	}
}
