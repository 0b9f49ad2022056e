package lochsemu

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeSerializable struct {
	value string
}

func (f *fakeSerializable) Serialize() (json.RawMessage, error) {
	return json.Marshal(f.value)
}

func (f *fakeSerializable) Deserialize(data json.RawMessage) error {
	return json.Unmarshal(data, &f.value)
}

func TestArchiveRegisterPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchive(dir)
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	a.Register("b", &fakeSerializable{})
	a.Register("a", &fakeSerializable{})
	a.Register("b", &fakeSerializable{}) // re-register, should not duplicate the key

	keys := a.Keys()
	if len(keys) != 2 || keys[0] != "b" || keys[1] != "a" {
		t.Fatalf("Keys() = %v, want [b a]", keys)
	}
}

func TestArchiveSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "target.exe")
	if err := os.WriteFile(binary, []byte("fake pe"), 0o644); err != nil {
		t.Fatalf("writing fake binary: %v", err)
	}

	a, err := NewArchive(filepath.Join(dir, "archive"))
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	comp := &fakeSerializable{}
	a.Register("comp", comp)

	if err := a.Load(binary, "target"); err != nil {
		t.Fatalf("Load (first run, no file yet): %v", err)
	}
	comp.value = "persisted state"
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b, err := NewArchive(filepath.Join(dir, "archive"))
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	restored := &fakeSerializable{}
	b.Register("comp", restored)
	if err := b.Load(binary, "target"); err != nil {
		t.Fatalf("Load (second run): %v", err)
	}
	if restored.value != "persisted state" {
		t.Fatalf("restored.value = %q, want %q", restored.value, "persisted state")
	}
}

func TestArchiveLoadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchive(dir)
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	if err := a.Load(filepath.Join(dir, "nonexistent.bin"), "mod"); err != nil {
		t.Fatalf("Load on a missing binary should not error, got %v", err)
	}
}

func TestArchiveSaveBeforeLoadFails(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchive(dir)
	if err != nil {
		t.Fatalf("NewArchive: %v", err)
	}
	if err := a.Save(); err == nil {
		t.Fatalf("Save before Load should fail (no resolved archive path)")
	}
}

func TestArchiveKeyDependsOnPathAndModTime(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.exe")
	p2 := filepath.Join(dir, "b.exe")
	os.WriteFile(p1, []byte("x"), 0o644)
	os.WriteFile(p2, []byte("x"), 0o644)

	k1, err := archiveFileKey(p1, "mod")
	if err != nil {
		t.Fatalf("archiveFileKey: %v", err)
	}
	k2, err := archiveFileKey(p2, "mod")
	if err != nil {
		t.Fatalf("archiveFileKey: %v", err)
	}
	if k1 == k2 {
		t.Fatalf("distinct paths should produce distinct archive keys")
	}

	mt := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := os.Chtimes(p1, mt, mt); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	k3, err := archiveFileKey(p1, "mod")
	if err != nil {
		t.Fatalf("archiveFileKey: %v", err)
	}
	if k3 == k1 {
		t.Fatalf("changing the modification time should change the archive key")
	}
}
