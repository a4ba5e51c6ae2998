package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchReloadsOnExternalWrite(t *testing.T) {
	reg := newTestRegistry(t)

	reloaded := make(chan struct{}, 1)
	reg.OnChange(func(section string) {
		if section == "reload" {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		_ = reg.Watch(ctx)
	}()

	// Give the watcher a moment to register before the external edit.
	time.Sleep(100 * time.Millisecond)

	edited := DefaultAppConfig().Performance
	edited.MaxConcurrentTasks = 4
	data, err := json.Marshal(edited)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(reg.BaseDir(), "app", "performance.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("external edit never triggered a reload")
	}
	if got := reg.App().Performance.MaxConcurrentTasks; got != 4 {
		t.Errorf("max_concurrent_tasks = %d, want 4 after reload", got)
	}

	cancel()
	select {
	case <-watchDone:
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on cancel")
	}
}
