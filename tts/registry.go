package tts

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// EngineConfig couples a registered engine with its live parameters,
// runtime status and scheduling metadata.
type EngineConfig struct {
	Descriptor EngineDescriptor  `json:"info"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Status     EngineStatus      `json:"status"`
	Enabled    bool              `json:"enabled"`
	Priority   int               `json:"priority"` // 0..100, higher wins
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Registry resolves engine ids to engine instances and tracks per-engine
// availability. It owns the EngineConfig records; callers get value copies.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	configs map[string]*EngineConfig
}

// NewRegistry returns an empty engine registry.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
		configs: make(map[string]*EngineConfig),
	}
}

// Register adds an engine under its descriptor id. Registering an existing
// id replaces the instance but keeps the stored priority and enablement.
func (r *Registry) Register(e Engine, enabled bool, priority int) {
	desc := e.Describe()
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if existing, ok := r.configs[desc.ID]; ok {
		existing.Descriptor = desc
		existing.UpdatedAt = now
	} else {
		r.configs[desc.ID] = &EngineConfig{
			Descriptor: desc,
			Parameters: make(map[string]string),
			Enabled:    enabled,
			Priority:   priority,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	r.engines[desc.ID] = e
	log.Debug("engine registered", "engine", desc.ID, "priority", priority, "enabled", enabled)
}

// Get returns the engine registered under id.
func (r *Registry) Get(id string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrEngineNotFound, id)
	}
	return e, nil
}

// Resolve returns the engine for id when it is enabled and available.
// When it is not, the highest-priority available engine is returned
// instead, so a dead backend degrades to the next candidate rather than
// failing every task outright.
func (r *Registry) Resolve(id string) (Engine, error) {
	r.mu.RLock()
	e, ok := r.engines[id]
	cfg := r.configs[id]
	r.mu.RUnlock()

	if ok && cfg != nil && cfg.Enabled && e.Status().State == EngineAvailable {
		return e, nil
	}

	candidates := r.Candidates()
	if len(candidates) == 0 {
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrEngineNotFound, id)
		}
		return nil, fmt.Errorf("%w: %q (no fallback candidates)", ErrEngineUnavailable, id)
	}
	fallback := candidates[0]
	if fallback.Describe().ID != id {
		log.Warn("engine unavailable, falling back",
			"requested", id, "using", fallback.Describe().ID)
	}
	return fallback, nil
}

// Candidates returns the enabled, available engines ordered by descending
// priority.
func (r *Registry) Candidates() []Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	type cand struct {
		e        Engine
		priority int
	}
	var list []cand
	for id, cfg := range r.configs {
		e := r.engines[id]
		if e == nil || !cfg.Enabled {
			continue
		}
		if e.Status().State != EngineAvailable {
			continue
		}
		list = append(list, cand{e, cfg.Priority})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].priority > list[j].priority })
	out := make([]Engine, len(list))
	for i, c := range list {
		out[i] = c.e
	}
	return out
}

// IDs returns all registered engine ids in stable order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Config returns a copy of the EngineConfig for id.
func (r *Registry) Config(id string) (EngineConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	if !ok {
		return EngineConfig{}, fmt.Errorf("%w: %q", ErrEngineNotFound, id)
	}
	out := *cfg
	out.Status = r.engines[id].Status()
	return out, nil
}

// SetEnabled toggles an engine's participation in the candidate list.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrEngineNotFound, id)
	}
	cfg.Enabled = enabled
	cfg.UpdatedAt = time.Now()
	return nil
}

// SetPriority updates the ordering weight for id.
func (r *Registry) SetPriority(id string, priority int) error {
	if priority < 0 || priority > 100 {
		return fmt.Errorf("%w: priority %d outside 0..100", ErrInvalidConfig, priority)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrEngineNotFound, id)
	}
	cfg.Priority = priority
	cfg.UpdatedAt = time.Now()
	return nil
}

// Close shuts down every registered engine. The first error is returned
// but all engines get a close attempt.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for id, e := range r.engines {
		if err := e.Close(); err != nil && first == nil {
			first = fmt.Errorf("closing %s: %w", id, err)
		}
	}
	return first
}
