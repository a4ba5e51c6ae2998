package main

import (
	"context"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yhl9/chaptervox/internal/config"
	"github.com/yhl9/chaptervox/tts"
	"github.com/yhl9/chaptervox/tts/engines/local"
	"github.com/yhl9/chaptervox/tts/engines/mock"
	"github.com/yhl9/chaptervox/tts/engines/remote"
	"github.com/yhl9/chaptervox/tts/engines/sapi"
)

// Default priorities when an engine carries no stored record. Local engines
// outrank remote ones so conversion keeps working offline.
var defaultPriorities = map[string]int{
	"piper":        80,
	"sapi":         60,
	"online_voice": 40,
	"emotion_api":  30,
	"mock":         1,
}

// buildEngineRegistry constructs every configured engine adapter, initializes
// each one and registers it with its stored enablement and priority. An
// engine that fails to initialize is still registered (as unavailable) so
// the registry can report it and fall back past it.
func buildEngineRegistry(ctx context.Context, cfg *config.Registry) (*tts.Registry, error) {
	registry := tts.NewRegistry()

	client := remote.NewClient(30*time.Second, 4, 8)

	adapters := []tts.Engine{
		local.New(param(cfg, "piper", "binary", "piper"), param(cfg, "piper", "model_dir", "")),
		sapi.New(),
		mock.New(mock.WithSRT()),
	}
	if url := param(cfg, "online_voice", "url", ""); url != "" {
		e := remote.NewOnline(client, url, param(cfg, "online_voice", "api_key", ""))
		e.SetCatalogFile(catalogPath(cfg, "online_voice"))
		adapters = append(adapters, e)
	}
	if url := param(cfg, "emotion_api", "url", ""); url != "" {
		e := remote.NewEmotion(client, url, param(cfg, "emotion_api", "api_key", ""))
		e.SetCatalogFile(catalogPath(cfg, "emotion_api"))
		adapters = append(adapters, e)
	}

	for _, e := range adapters {
		id := e.Describe().ID
		enabled := true
		priority := defaultPriorities[id]
		if rec, ok := cfg.Engine(id); ok {
			enabled = rec.Enabled
			priority = rec.Priority
		}

		initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if err := e.Init(initCtx); err != nil {
			log.Warn("engine unavailable", "engine", id, "err", err)
		}
		cancel()
		registry.Register(e, enabled, priority)
	}
	return registry, nil
}

// catalogPath resolves an engine's curated voice catalog file: an explicit
// parameter wins, else the conventional file under the config directory.
func catalogPath(cfg *config.Registry, engineID string) string {
	return param(cfg, engineID, "voice_catalog",
		filepath.Join(cfg.BaseDir(), "voices_"+engineID+".json"))
}

// param reads one engine parameter from the stored record, with a default.
func param(cfg *config.Registry, engineID, key, def string) string {
	if rec, ok := cfg.Engine(engineID); ok {
		if v, ok := rec.Parameters[key]; ok && v != "" {
			return v
		}
	}
	return def
}
