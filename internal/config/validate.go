package config

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrValidation marks a configuration value out of range.
var ErrValidation = errors.New("invalid configuration value")

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Validation bounds for the numeric settings.
const (
	MinFileSizeMB = 1
	MaxFileSizeMB = 1024

	MinConcurrentTasks = 1
	MaxConcurrentTasks = 16

	MinCacheTTLSeconds = 60
	MaxCacheTTLSeconds = 86400

	MinMemoryLimitMB = 256
	MaxMemoryLimitMB = 8192
)

// ValidateApp checks every section and clamps recoverable problems to their
// defaults, returning an error only for values that cannot be repaired.
func ValidateApp(c *AppConfig) error {
	def := DefaultAppConfig()

	if !versionPattern.MatchString(c.Main.ConfigVersion) {
		c.Main.ConfigVersion = def.Main.ConfigVersion
	}
	if c.Main.LogLevel == "" {
		c.Main.LogLevel = def.Main.LogLevel
	}

	if err := intRange("files.max_file_size_mb", &c.Files.MaxFileSizeMB,
		MinFileSizeMB, MaxFileSizeMB, def.Files.MaxFileSizeMB); err != nil {
		return err
	}
	if c.Files.MaxRecentFiles <= 0 {
		c.Files.MaxRecentFiles = def.Files.MaxRecentFiles
	}

	if err := intRange("performance.max_concurrent_tasks", &c.Performance.MaxConcurrentTasks,
		MinConcurrentTasks, MaxConcurrentTasks, def.Performance.MaxConcurrentTasks); err != nil {
		return err
	}
	if err := intRange("performance.cache_ttl_seconds", &c.Performance.CacheTTLSeconds,
		MinCacheTTLSeconds, MaxCacheTTLSeconds, def.Performance.CacheTTLSeconds); err != nil {
		return err
	}
	if err := intRange("performance.memory_limit_mb", &c.Performance.MemoryLimitMB,
		MinMemoryLimitMB, MaxMemoryLimitMB, def.Performance.MemoryLimitMB); err != nil {
		return err
	}

	if c.Preferences.DefaultRate < 0.1 || c.Preferences.DefaultRate > 3.0 {
		if c.Preferences.DefaultRate != 0 {
			return fmt.Errorf("%w: preferences.default_rate %.2f outside 0.1..3.0",
				ErrValidation, c.Preferences.DefaultRate)
		}
		c.Preferences.DefaultRate = def.Preferences.DefaultRate
	}
	return nil
}

// intRange resets the zero value to its default and rejects values outside
// the legal range.
func intRange(name string, v *int, min, max, def int) error {
	if *v == 0 {
		*v = def
		return nil
	}
	if *v < min || *v > max {
		return fmt.Errorf("%w: %s %d outside %d..%d", ErrValidation, name, *v, min, max)
	}
	return nil
}
