package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// EngineRecord is the persisted configuration of one engine.
type EngineRecord struct {
	ID         string            `json:"id"`
	Enabled    bool              `json:"enabled"`
	Priority   int               `json:"priority"`
	Parameters map[string]string `json:"parameters,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// engineIndex is the shape of configs/engines/registry.json: the list of
// known engine ids. Per-engine settings live in their own files so a
// corrupt write only loses one engine.
type engineIndex struct {
	Engines []string `json:"engines"`
}

func (r *Registry) engineFile(id string) string {
	return filepath.Join(r.enginesDir(), id+".json")
}

// loadEngines reads the engine index and each per-engine file.
func (r *Registry) loadEngines() error {
	data, err := os.ReadFile(filepath.Join(r.enginesDir(), "registry.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var idx engineIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("engine index malformed: %w", err)
	}
	for _, id := range idx.Engines {
		raw, err := os.ReadFile(r.engineFile(id))
		if err != nil {
			continue
		}
		var rec EngineRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		rec.ID = id
		r.engines[id] = rec
	}
	return nil
}

// saveEngineIndex persists the engine id list. Lock must be held.
func (r *Registry) saveEngineIndex() error {
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	data, err := json.MarshalIndent(engineIndex{Engines: ids}, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(r.enginesDir(), "registry.json"), data)
}

// Engine returns the persisted record for an engine id.
func (r *Registry) Engine(id string) (EngineRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.engines[id]
	return rec, ok
}

// EngineIDs returns the known engine ids in stable order.
func (r *Registry) EngineIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.engines))
	for id := range r.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetEngine validates and persists an engine record, then notifies change
// handlers.
func (r *Registry) SetEngine(rec EngineRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: engine id is empty", ErrValidation)
	}
	if rec.Priority < 0 || rec.Priority > 100 {
		return fmt.Errorf("%w: priority %d outside 0..100", ErrValidation, rec.Priority)
	}
	rec.UpdatedAt = time.Now()

	r.mu.Lock()
	r.engines[rec.ID] = rec
	data, err := json.MarshalIndent(rec, "", "  ")
	if err == nil {
		err = atomicWrite(r.engineFile(rec.ID), data)
	}
	if err == nil {
		err = r.saveEngineIndex()
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.notify("engines")
	return nil
}

// RemoveEngine deletes an engine record and its file.
func (r *Registry) RemoveEngine(id string) error {
	r.mu.Lock()
	_, ok := r.engines[id]
	if ok {
		delete(r.engines, id)
		os.Remove(r.engineFile(id))
		if err := r.saveEngineIndex(); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.mu.Unlock()
	if ok {
		r.notify("engines")
	}
	return nil
}

// Template is a named, reusable voice-and-output preset.
type Template struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Voice       json.RawMessage `json:"voice_config"`
	Output      json.RawMessage `json:"output_config,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SaveTemplate persists a preset under configs/templates.
func (r *Registry) SaveTemplate(t Template) error {
	if t.Name == "" {
		return fmt.Errorf("%w: template name is empty", ErrValidation)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(r.templatesDir(), t.Name+".json"), data)
}

// LoadTemplate reads a preset by name.
func (r *Registry) LoadTemplate(name string) (Template, error) {
	data, err := os.ReadFile(filepath.Join(r.templatesDir(), name+".json"))
	if err != nil {
		return Template{}, fmt.Errorf("loading template %q: %w", name, err)
	}
	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("template %q malformed: %w", name, err)
	}
	return t, nil
}

// ApplyTemplate copies a stored preset's voice and output sections onto the
// live preferences and files sections and persists them through the usual
// validated section saves. Zero-valued template fields keep the live value.
func (r *Registry) ApplyTemplate(name string) error {
	t, err := r.LoadTemplate(name)
	if err != nil {
		return err
	}
	var voice struct {
		Engine       string  `json:"engine"`
		VoiceName    string  `json:"voice_name"`
		Rate         float64 `json:"rate"`
		OutputFormat string  `json:"output_format"`
	}
	if len(t.Voice) > 0 {
		if err := json.Unmarshal(t.Voice, &voice); err != nil {
			return fmt.Errorf("template %q voice section malformed: %w", name, err)
		}
	}
	var output struct {
		OutputDir        string `json:"output_dir"`
		Format           string `json:"format"`
		GenerateSubtitle *bool  `json:"generate_subtitle"`
		SubtitleFormat   string `json:"subtitle_format"`
	}
	if len(t.Output) > 0 {
		if err := json.Unmarshal(t.Output, &output); err != nil {
			return fmt.Errorf("template %q output section malformed: %w", name, err)
		}
	}
	return r.Update(func(app *AppConfig) {
		if voice.Engine != "" {
			app.Preferences.DefaultEngine = voice.Engine
		}
		if voice.VoiceName != "" {
			app.Preferences.DefaultVoice = voice.VoiceName
		}
		if voice.Rate != 0 {
			app.Preferences.DefaultRate = voice.Rate
		}
		if voice.OutputFormat != "" {
			app.Preferences.DefaultFormat = voice.OutputFormat
		}
		if output.Format != "" {
			app.Preferences.DefaultFormat = output.Format
		}
		if output.SubtitleFormat != "" {
			app.Preferences.SubtitleFormat = output.SubtitleFormat
		}
		if output.GenerateSubtitle != nil {
			app.Preferences.GenerateSubtitle = *output.GenerateSubtitle
		}
		if output.OutputDir != "" {
			app.Files.DefaultOutputDir = output.OutputDir
		}
	})
}

// Templates lists the stored preset names in stable order.
func (r *Registry) Templates() ([]string, error) {
	entries, err := os.ReadDir(r.templatesDir())
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, e.Name()[:len(e.Name())-len(".json")])
	}
	sort.Strings(names)
	return names, nil
}
