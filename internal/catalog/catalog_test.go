package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToBuiltin(t *testing.T) {
	c := Load(filepath.Join(t.TempDir(), "missing.json"))
	if c.Metadata.Source != "builtin" {
		t.Errorf("expected builtin catalog, got source %q", c.Metadata.Source)
	}
	if _, ok := c.Get("zh-CN-XiaoxiaoNeural"); !ok {
		t.Error("builtin catalog missing expected voice")
	}
}

func TestLoadMalformedFallsBackToBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.json")
	os.WriteFile(path, []byte("{not json"), 0o644)
	c := Load(path)
	if c.Metadata.Source != "builtin" {
		t.Error("malformed catalog should fall back to builtin")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voices.json")
	c := &Catalog{
		Metadata: Metadata{Version: "2.1.0", Source: "test"},
		Voices: map[string]Entry{
			"v1": {Name: "Voice One", Language: "fr-FR", IsRecommended: true},
		},
	}
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}
	got := Load(path)
	if got.Metadata.Version != "2.1.0" {
		t.Errorf("version = %q", got.Metadata.Version)
	}
	e, ok := got.Get("v1")
	if !ok || e.Language != "fr-FR" {
		t.Errorf("entry lost in round trip: %+v", e)
	}
}

func TestRecommendedAndByLanguage(t *testing.T) {
	c := Builtin()
	rec := c.Recommended()
	if len(rec) == 0 {
		t.Fatal("no recommended voices in builtin catalog")
	}
	for i := 1; i < len(rec); i++ {
		if rec[i-1] > rec[i] {
			t.Fatal("recommended ids not sorted")
		}
	}
	zh := c.ByLanguage("zh-CN")
	if len(zh) < 2 {
		t.Errorf("expected multiple zh-CN voices, got %v", zh)
	}
}
