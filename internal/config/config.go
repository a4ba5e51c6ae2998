// Package config owns the on-disk configuration tree:
//
//	configs/
//	  app/        main.json ui.json files.json performance.json preferences.json
//	  engines/    registry.json <engine-id>.json
//	  templates/  <name>.json
//	  backups/    <backup-id>/ ... index.json
//
// Every write is staged to a temp file and renamed into place, so a crash
// never leaves a half-written config. Malformed sections fall back to their
// defaults instead of failing startup.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
)

// ConfigVersion is the current schema version written to main.json.
const ConfigVersion = "2.0.0"

// MainConfig is the app-wide section.
type MainConfig struct {
	ConfigVersion string `json:"config_version"`
	Language      string `json:"language"`
	LogLevel      string `json:"log_level"`
	CheckUpdates  bool   `json:"check_updates"`
}

// UIConfig is the interface section.
type UIConfig struct {
	Theme        string `json:"theme"`
	ShowProgress bool   `json:"show_progress"`
	CompactMode  bool   `json:"compact_mode"`
}

// FilesConfig is the file-handling section.
type FilesConfig struct {
	DefaultOutputDir string   `json:"default_output_dir"`
	MaxFileSizeMB    int      `json:"max_file_size_mb"` // 1..1024
	RecentFiles      []string `json:"recent_files,omitempty"`
	MaxRecentFiles   int      `json:"max_recent_files"`
}

// PerformanceConfig is the resource-limits section.
type PerformanceConfig struct {
	MaxConcurrentTasks int `json:"max_concurrent_tasks"` // 1..16
	CacheTTLSeconds    int `json:"cache_ttl_seconds"`    // 60..86400
	MemoryLimitMB      int `json:"memory_limit_mb"`      // 256..8192
}

// PreferencesConfig is the user-defaults section.
type PreferencesConfig struct {
	DefaultEngine    string  `json:"default_engine"`
	DefaultVoice     string  `json:"default_voice"`
	DefaultRate      float64 `json:"default_rate"`
	DefaultFormat    string  `json:"default_format"`
	GenerateSubtitle bool    `json:"generate_subtitle"`
	SubtitleFormat   string  `json:"subtitle_format"`
}

// AppConfig aggregates every section.
type AppConfig struct {
	Main        MainConfig        `json:"main"`
	UI          UIConfig          `json:"ui"`
	Files       FilesConfig       `json:"files"`
	Performance PerformanceConfig `json:"performance"`
	Preferences PreferencesConfig `json:"preferences"`
}

// DefaultAppConfig returns the defaults for every section.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Main: MainConfig{
			ConfigVersion: ConfigVersion,
			Language:      "en-US",
			LogLevel:      "info",
			CheckUpdates:  true,
		},
		UI: UIConfig{
			Theme:        "auto",
			ShowProgress: true,
		},
		Files: FilesConfig{
			DefaultOutputDir: "output",
			MaxFileSizeMB:    64,
			MaxRecentFiles:   10,
		},
		Performance: PerformanceConfig{
			MaxConcurrentTasks: 1,
			CacheTTLSeconds:    3600,
			MemoryLimitMB:      1024,
		},
		Preferences: PreferencesConfig{
			DefaultEngine:  "piper",
			DefaultRate:    1.0,
			DefaultFormat:  "wav",
			SubtitleFormat: "srt",
		},
	}
}

// sectionFiles maps section names to their files under configs/app.
var sectionFiles = []string{"main", "ui", "files", "performance", "preferences"}

// ChangeHandler is notified after a config mutation is persisted.
type ChangeHandler func(section string)

// Registry loads, validates and persists the configuration tree.
type Registry struct {
	mu      sync.RWMutex
	baseDir string
	app     AppConfig
	engines map[string]EngineRecord

	handlerMu sync.Mutex
	handlers  []ChangeHandler
}

// NewRegistry opens the configuration tree rooted at baseDir, creating
// defaults for anything missing and falling back to defaults for anything
// malformed.
func NewRegistry(baseDir string) (*Registry, error) {
	r := &Registry{
		baseDir: baseDir,
		app:     DefaultAppConfig(),
		engines: make(map[string]EngineRecord),
	}
	for _, dir := range []string{r.appDir(), r.enginesDir(), r.templatesDir(), r.backupsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating config dir: %w", err)
		}
	}
	r.loadApp()
	if migrated, err := r.migrate(); err != nil {
		log.Warn("config migration failed, keeping defaults", "err", err)
	} else if migrated {
		log.Info("config migrated", "to", ConfigVersion)
	}
	if err := r.loadEngines(); err != nil {
		log.Warn("engine registry unreadable, starting empty", "err", err)
	}
	return r, nil
}

func (r *Registry) appDir() string       { return filepath.Join(r.baseDir, "app") }
func (r *Registry) enginesDir() string   { return filepath.Join(r.baseDir, "engines") }
func (r *Registry) templatesDir() string { return filepath.Join(r.baseDir, "templates") }
func (r *Registry) backupsDir() string   { return filepath.Join(r.baseDir, "backups") }

// loadApp reads each section file, keeping the defaults for missing or
// malformed sections.
func (r *Registry) loadApp() {
	for _, section := range sectionFiles {
		path := filepath.Join(r.appDir(), section+".json")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			log.Warn("config section unreadable, using defaults", "section", section, "err", err)
			continue
		}
		if err := r.unmarshalSection(section, data); err != nil {
			log.Warn("config section malformed, using defaults", "section", section, "err", err)
		}
	}
	if err := ValidateApp(&r.app); err != nil {
		log.Warn("config invalid, clamping to defaults", "err", err)
	}
}

func (r *Registry) unmarshalSection(section string, data []byte) error {
	switch section {
	case "main":
		return json.Unmarshal(data, &r.app.Main)
	case "ui":
		return json.Unmarshal(data, &r.app.UI)
	case "files":
		return json.Unmarshal(data, &r.app.Files)
	case "performance":
		return json.Unmarshal(data, &r.app.Performance)
	case "preferences":
		return json.Unmarshal(data, &r.app.Preferences)
	}
	return fmt.Errorf("unknown section %q", section)
}

func (r *Registry) marshalSection(section string) ([]byte, error) {
	var v any
	switch section {
	case "main":
		v = r.app.Main
	case "ui":
		v = r.app.UI
	case "files":
		v = r.app.Files
	case "performance":
		v = r.app.Performance
	case "preferences":
		v = r.app.Preferences
	default:
		return nil, fmt.Errorf("unknown section %q", section)
	}
	return json.MarshalIndent(v, "", "  ")
}

// App returns a copy of the aggregated configuration.
func (r *Registry) App() AppConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.app
}

// BaseDir returns the configuration root.
func (r *Registry) BaseDir() string { return r.baseDir }

// Update applies fn to the configuration, validates the result and persists
// every section. An invalid result is rejected and the old config kept.
func (r *Registry) Update(fn func(*AppConfig)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.app
	fn(&next)
	if err := ValidateApp(&next); err != nil {
		return err
	}
	r.app = next
	for _, section := range sectionFiles {
		if err := r.saveSection(section); err != nil {
			return err
		}
	}
	r.notify("app")
	return nil
}

// saveSection persists one section atomically. Lock must be held.
func (r *Registry) saveSection(section string) error {
	data, err := r.marshalSection(section)
	if err != nil {
		return err
	}
	return atomicWrite(filepath.Join(r.appDir(), section+".json"), data)
}

// SaveAll persists every section, creating missing files with defaults.
func (r *Registry) SaveAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, section := range sectionFiles {
		if err := r.saveSection(section); err != nil {
			return err
		}
	}
	return nil
}

// OnChange registers a handler notified after persisted mutations.
func (r *Registry) OnChange(h ChangeHandler) {
	r.handlerMu.Lock()
	r.handlers = append(r.handlers, h)
	r.handlerMu.Unlock()
}

// notify runs the change handlers outside the registry lock.
func (r *Registry) notify(section string) {
	r.handlerMu.Lock()
	handlers := make([]ChangeHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.handlerMu.Unlock()
	go func() {
		for _, h := range handlers {
			h(section)
		}
	}()
}

// atomicWrite stages data to a temp file and renames it into place.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("staging %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("committing %s: %w", filepath.Base(path), err)
	}
	return nil
}
