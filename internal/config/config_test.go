package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMergeDefaultsWhenNoFiles(t *testing.T) {
	userDir := t.TempDir()
	projDir := t.TempDir()

	m := NewManager()
	if err := m.Load(userDir, projDir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := m.Get()
	if got.FrameTimeMS != 8 {
		t.Errorf("FrameTimeMS = %d, want 8", got.FrameTimeMS)
	}
	if got.ClientsMax != 64 {
		t.Errorf("ClientsMax = %d, want 64", got.ClientsMax)
	}
	if got.PtysMax != 256 {
		t.Errorf("PtysMax = %d, want 256", got.PtysMax)
	}
}

func TestProjectOverridesUser(t *testing.T) {
	userDir := t.TempDir()
	projDir := t.TempDir()

	writeJSON(t, filepath.Join(userDir, "settings.json"), `{"log_level":"debug","clients_max":10}`)
	if err := os.MkdirAll(filepath.Join(projDir, ".mplexd"), 0755); err != nil {
		t.Fatal(err)
	}
	writeJSON(t, filepath.Join(projDir, ".mplexd", "settings.json"), `{"clients_max":20}`)

	m := NewManager()
	if err := m.Load(userDir, projDir); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := m.Get()
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q (falls through from user)", got.LogLevel, "debug")
	}
	if got.ClientsMax != 20 {
		t.Errorf("ClientsMax = %d, want 20 (project overrides user)", got.ClientsMax)
	}
}

func writeJSON(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}
