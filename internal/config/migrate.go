package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// legacyConfigFile is the single flat file the v1 layout used.
const legacyConfigFile = "config.json"

// migrate upgrades a v1 configuration to the current sectioned layout.
// v1 kept everything in one flat configs/config.json; its keys are remapped
// onto the v2 sections and the old file is kept as a .v1.bak.
func (r *Registry) migrate() (bool, error) {
	legacyPath := filepath.Join(r.baseDir, legacyConfigFile)
	data, err := os.ReadFile(legacyPath)
	if os.IsNotExist(err) {
		if strings.HasPrefix(r.app.Main.ConfigVersion, "1.") {
			// Sectioned layout with a stale version stamp.
			r.app.Main.ConfigVersion = ConfigVersion
			return true, r.saveSection("main")
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var legacy map[string]json.RawMessage
	if err := json.Unmarshal(data, &legacy); err != nil {
		return false, err
	}

	// v1 key -> v2 destination
	getString := func(key string) (string, bool) {
		raw, ok := legacy[key]
		if !ok {
			return "", false
		}
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return "", false
		}
		return s, true
	}
	getInt := func(key string) (int, bool) {
		raw, ok := legacy[key]
		if !ok {
			return 0, false
		}
		var n int
		if json.Unmarshal(raw, &n) != nil {
			return 0, false
		}
		return n, true
	}

	if v, ok := getString("language"); ok {
		r.app.Main.Language = v
	}
	if v, ok := getString("output_dir"); ok {
		r.app.Files.DefaultOutputDir = v
	}
	if v, ok := getInt("max_file_size"); ok {
		r.app.Files.MaxFileSizeMB = v
	}
	if v, ok := getInt("max_threads"); ok {
		r.app.Performance.MaxConcurrentTasks = v
	}
	if v, ok := getInt("cache_seconds"); ok {
		r.app.Performance.CacheTTLSeconds = v
	}
	if v, ok := getInt("memory_mb"); ok {
		r.app.Performance.MemoryLimitMB = v
	}
	if v, ok := getString("engine"); ok {
		r.app.Preferences.DefaultEngine = v
	}
	if v, ok := getString("voice"); ok {
		r.app.Preferences.DefaultVoice = v
	}
	r.app.Main.ConfigVersion = ConfigVersion

	if err := ValidateApp(&r.app); err != nil {
		log.Warn("migrated config had invalid values, clamping", "err", err)
		r.app = DefaultAppConfig()
	}
	for _, section := range sectionFiles {
		if err := r.saveSection(section); err != nil {
			return false, err
		}
	}
	if err := os.Rename(legacyPath, legacyPath+".v1.bak"); err != nil {
		log.Warn("could not archive legacy config", "err", err)
	}
	return true, nil
}
