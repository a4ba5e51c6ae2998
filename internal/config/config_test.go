package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(filepath.Join(t.TempDir(), "configs"))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestDefaultsWhenEmpty(t *testing.T) {
	r := newTestRegistry(t)
	app := r.App()
	if app.Main.ConfigVersion != ConfigVersion {
		t.Errorf("version = %q", app.Main.ConfigVersion)
	}
	if app.Performance.MaxConcurrentTasks != 1 {
		t.Errorf("default concurrency = %d, want 1", app.Performance.MaxConcurrentTasks)
	}
}

func TestMalformedSectionFallsBackToDefaults(t *testing.T) {
	base := filepath.Join(t.TempDir(), "configs")
	os.MkdirAll(filepath.Join(base, "app"), 0o755)
	os.WriteFile(filepath.Join(base, "app", "performance.json"), []byte("{broken"), 0o644)

	r, err := NewRegistry(base)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.App().Performance.MaxConcurrentTasks; got != 1 {
		t.Errorf("malformed section should fall back to defaults, got %d", got)
	}
}

func TestUpdateValidatesAndPersists(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Update(func(c *AppConfig) {
		c.Performance.MaxConcurrentTasks = 99
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if r.App().Performance.MaxConcurrentTasks == 99 {
		t.Error("rejected update leaked into live config")
	}

	if err := r.Update(func(c *AppConfig) {
		c.Performance.MaxConcurrentTasks = 4
	}); err != nil {
		t.Fatal(err)
	}

	// A fresh registry over the same dir sees the persisted value.
	r2, err := NewRegistry(r.BaseDir())
	if err != nil {
		t.Fatal(err)
	}
	if got := r2.App().Performance.MaxConcurrentTasks; got != 4 {
		t.Errorf("persisted concurrency = %d, want 4", got)
	}
}

func TestValidateAppRanges(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{"file size too big", func(c *AppConfig) { c.Files.MaxFileSizeMB = 2048 }, true},
		{"concurrency too high", func(c *AppConfig) { c.Performance.MaxConcurrentTasks = 17 }, true},
		{"cache ttl too low", func(c *AppConfig) { c.Performance.CacheTTLSeconds = 30 }, true},
		{"memory too low", func(c *AppConfig) { c.Performance.MemoryLimitMB = 100 }, true},
		{"rate out of range", func(c *AppConfig) { c.Preferences.DefaultRate = 5 }, true},
		{"all in range", func(c *AppConfig) { c.Performance.MaxConcurrentTasks = 16 }, false},
		{"zero values clamp to defaults", func(c *AppConfig) { c.Performance.CacheTTLSeconds = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultAppConfig()
			tt.mutate(&c)
			err := ValidateApp(&c)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateApp() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBadVersionStampIsRepaired(t *testing.T) {
	c := DefaultAppConfig()
	c.Main.ConfigVersion = "two point oh"
	if err := ValidateApp(&c); err != nil {
		t.Fatal(err)
	}
	if c.Main.ConfigVersion != ConfigVersion {
		t.Errorf("version not repaired: %q", c.Main.ConfigVersion)
	}
}

func TestEngineRecords(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.SetEngine(EngineRecord{ID: "piper", Enabled: true, Priority: 50}); err != nil {
		t.Fatal(err)
	}
	if err := r.SetEngine(EngineRecord{ID: "bad", Priority: 200}); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for priority, got %v", err)
	}

	rec, ok := r.Engine("piper")
	if !ok || !rec.Enabled {
		t.Fatalf("engine record not stored: %+v", rec)
	}

	r2, err := NewRegistry(r.BaseDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r2.Engine("piper"); !ok {
		t.Error("engine record not persisted")
	}

	if err := r2.RemoveEngine("piper"); err != nil {
		t.Fatal(err)
	}
	if _, ok := r2.Engine("piper"); ok {
		t.Error("removed engine still present")
	}
}

func TestTemplates(t *testing.T) {
	r := newTestRegistry(t)
	voice, _ := json.Marshal(map[string]any{"engine": "mock", "voice_name": "mock-voice"})
	if err := r.SaveTemplate(Template{Name: "audiobook", Voice: voice}); err != nil {
		t.Fatal(err)
	}
	names, err := r.Templates()
	if err != nil || len(names) != 1 || names[0] != "audiobook" {
		t.Fatalf("Templates() = %v, %v", names, err)
	}
	tpl, err := r.LoadTemplate("audiobook")
	if err != nil || tpl.Name != "audiobook" {
		t.Fatalf("LoadTemplate: %+v, %v", tpl, err)
	}
}

func TestApplyTemplate(t *testing.T) {
	r := newTestRegistry(t)
	voice, _ := json.Marshal(map[string]any{
		"engine":     "sapi",
		"voice_name": "Microsoft Zira",
		"rate":       1.5,
	})
	output, _ := json.Marshal(map[string]any{
		"output_dir":        "/tmp/narration",
		"format":            "mp3",
		"generate_subtitle": true,
		"subtitle_format":   "vtt",
	})
	if err := r.SaveTemplate(Template{Name: "narration", Voice: voice, Output: output}); err != nil {
		t.Fatal(err)
	}

	if err := r.ApplyTemplate("narration"); err != nil {
		t.Fatal(err)
	}
	app := r.App()
	if app.Preferences.DefaultEngine != "sapi" || app.Preferences.DefaultVoice != "Microsoft Zira" {
		t.Errorf("voice section not applied: %+v", app.Preferences)
	}
	if app.Preferences.DefaultRate != 1.5 || app.Preferences.DefaultFormat != "mp3" {
		t.Errorf("rate/format not applied: %+v", app.Preferences)
	}
	if !app.Preferences.GenerateSubtitle || app.Preferences.SubtitleFormat != "vtt" {
		t.Errorf("subtitle settings not applied: %+v", app.Preferences)
	}
	if app.Files.DefaultOutputDir != "/tmp/narration" {
		t.Errorf("output dir not applied: %q", app.Files.DefaultOutputDir)
	}

	// Applied sections go through the usual saves, so a fresh registry
	// over the same dir sees them.
	r2, err := NewRegistry(r.BaseDir())
	if err != nil {
		t.Fatal(err)
	}
	if r2.App().Preferences.DefaultEngine != "sapi" {
		t.Error("applied template not persisted")
	}
	// Fields the template leaves out keep the live value.
	if r2.App().Preferences.DefaultRate != 1.5 {
		t.Errorf("persisted rate = %v", r2.App().Preferences.DefaultRate)
	}

	if err := r.ApplyTemplate("missing"); err == nil {
		t.Error("applying an unknown template should fail")
	}
}

func TestBackupCreateRestoreEvict(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.SaveAll(); err != nil {
		t.Fatal(err)
	}

	info, err := r.CreateBackup("before change")
	if err != nil {
		t.Fatal(err)
	}
	if info.Files == 0 {
		t.Error("backup captured no files")
	}

	if err := r.Update(func(c *AppConfig) { c.Performance.MaxConcurrentTasks = 8 }); err != nil {
		t.Fatal(err)
	}
	if err := r.RestoreBackup(info.ID); err != nil {
		t.Fatal(err)
	}
	if got := r.App().Performance.MaxConcurrentTasks; got != 1 {
		t.Errorf("restore did not revert config, concurrency = %d", got)
	}

	// Creating more than MaxBackups evicts the oldest.
	for i := 0; i < MaxBackups+2; i++ {
		if _, err := r.CreateBackup(""); err != nil {
			t.Fatal(err)
		}
	}
	backups, err := r.Backups()
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != MaxBackups {
		t.Errorf("backup count = %d, want %d", len(backups), MaxBackups)
	}
	for _, b := range backups {
		if b.ID == info.ID {
			t.Error("oldest backup survived eviction")
		}
	}
}

func TestBackupRecordFields(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.SaveAll(); err != nil {
		t.Fatal(err)
	}

	info, err := r.CreateBackup("manual")
	if err != nil {
		t.Fatal(err)
	}
	if info.ConfigType != BackupAll || info.Auto {
		t.Errorf("manual backup record = %+v", info)
	}

	scoped, err := r.CreateScopedBackup(BackupApp, "just app")
	if err != nil {
		t.Fatal(err)
	}
	if scoped.ConfigType != BackupApp {
		t.Errorf("scoped backup type = %q", scoped.ConfigType)
	}

	// The index lives under its well-known name.
	if _, err := os.Stat(filepath.Join(r.BaseDir(), "backups", "backup_index.json")); err != nil {
		t.Errorf("backup index missing: %v", err)
	}

	// Restoring takes an automatic snapshot of the pre-restore state.
	if err := r.RestoreBackup(info.ID); err != nil {
		t.Fatal(err)
	}
	backups, err := r.Backups()
	if err != nil {
		t.Fatal(err)
	}
	autoSeen := false
	for _, b := range backups {
		if b.Auto {
			autoSeen = true
		}
	}
	if !autoSeen {
		t.Error("restore left no automatic snapshot")
	}
}

func TestCleanupBackupsByAge(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.CreateBackup(""); err != nil {
		t.Fatal(err)
	}
	n, err := r.CleanupBackups(0)
	if err != nil || n != 1 {
		t.Fatalf("CleanupBackups = %d, %v; want 1", n, err)
	}
}

func TestMigrateLegacyConfig(t *testing.T) {
	base := filepath.Join(t.TempDir(), "configs")
	os.MkdirAll(base, 0o755)
	legacy := map[string]any{
		"language":      "zh-CN",
		"output_dir":    "/tmp/out",
		"max_threads":   4,
		"cache_seconds": 600,
		"memory_mb":     512,
		"engine":        "online_voice",
		"voice":         "zh-CN-XiaoxiaoNeural",
	}
	data, _ := json.Marshal(legacy)
	os.WriteFile(filepath.Join(base, "config.json"), data, 0o644)

	r, err := NewRegistry(base)
	if err != nil {
		t.Fatal(err)
	}
	app := r.App()
	if app.Main.ConfigVersion != ConfigVersion {
		t.Errorf("version not bumped: %q", app.Main.ConfigVersion)
	}
	if app.Performance.MaxConcurrentTasks != 4 || app.Preferences.DefaultVoice != "zh-CN-XiaoxiaoNeural" {
		t.Errorf("keys not remapped: %+v", app)
	}
	if _, err := os.Stat(filepath.Join(base, "config.json.v1.bak")); err != nil {
		t.Error("legacy config not archived")
	}
	if _, err := os.Stat(filepath.Join(base, "config.json")); !os.IsNotExist(err) {
		t.Error("legacy config still in place")
	}

	// Second open must not re-migrate.
	r2, err := NewRegistry(base)
	if err != nil {
		t.Fatal(err)
	}
	if r2.App().Performance.MaxConcurrentTasks != 4 {
		t.Error("migrated values lost on reopen")
	}
}

func TestOnChangeNotified(t *testing.T) {
	r := newTestRegistry(t)
	ch := make(chan string, 1)
	r.OnChange(func(section string) { ch <- section })
	if err := r.Update(func(c *AppConfig) { c.UI.CompactMode = true }); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-ch:
		if s != "app" {
			t.Errorf("section = %q", s)
		}
	case <-time.After(time.Second):
		t.Error("change handler not called")
	}
}
