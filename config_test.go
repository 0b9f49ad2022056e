package lochsemu

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.General.Enabled {
		t.Errorf("General.Enabled should default to true")
	}
	if cfg.General.ArchiveDir != "archive" {
		t.Errorf("General.ArchiveDir = %q, want %q", cfg.General.ArchiveDir, "archive")
	}
	if cfg.Tracer.MaxTraces != 4096 {
		t.Errorf("Tracer.MaxTraces = %d, want 4096", cfg.Tracer.MaxTraces)
	}
	if !cfg.Tracer.MergeCallJmp {
		t.Errorf("Tracer.MergeCallJmp should default to true")
	}
}

func TestLoadConfigOverridesOnlyPresentKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lochsdbg.ini")
	contents := "[General]\nArchiveDir = custom_archive\n\n[Tracer]\nMaxTraces = 128\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.General.ArchiveDir != "custom_archive" {
		t.Errorf("General.ArchiveDir = %q, want custom_archive", cfg.General.ArchiveDir)
	}
	if cfg.Tracer.MaxTraces != 128 {
		t.Errorf("Tracer.MaxTraces = %d, want 128", cfg.Tracer.MaxTraces)
	}
	// keys absent from the file keep the documented defaults.
	if !cfg.General.Enabled {
		t.Errorf("General.Enabled should keep its default of true when absent from the file")
	}
	if !cfg.Tracer.MergeCallJmp {
		t.Errorf("Tracer.MergeCallJmp should keep its default of true when absent from the file")
	}
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.ini"))
	if err == nil {
		t.Fatalf("LoadConfig on a missing file should return an error")
	}
}
