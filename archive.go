package lochsemu

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Serializable is implemented by every component the archive persists:
// its own internal invariants, not the whole engine's. Grounded on
// engine.cpp's Archive::AddObject(key, component) contract.
type Serializable interface {
	Serialize() (json.RawMessage, error)
	Deserialize(data json.RawMessage) error
}

// Archive is the per-binary persisted-state document: one JSON object keyed
// by component name, each value the component's own serialization.
type Archive struct {
	dir  string
	keys []string // registration order, preserved on save for readability
	objs map[string]Serializable

	path     string
	fileName string
	loaded   bool
}

// NewArchive returns an archive rooted at dir (created if absent).
func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lochsemu: creating archive directory %q: %w", dir, err)
	}
	return &Archive{dir: dir, objs: make(map[string]Serializable)}, nil
}

// Register adds a component under key. Re-registering the same key replaces
// it. Order of first registration is preserved in Keys().
func (a *Archive) Register(key string, obj Serializable) {
	if _, exists := a.objs[key]; !exists {
		a.keys = append(a.keys, key)
	}
	a.objs[key] = obj
}

// Keys returns the registered component names in registration order.
func (a *Archive) Keys() []string {
	out := make([]string, len(a.keys))
	copy(out, a.keys)
	return out
}

// archiveFileKey reproduces engine.cpp's LoadArchive naming:
// `hash(path) ^ hash(modTime)` formatted as 8 hex digits, then "_" and the
// module name. The returned key has no suffix; Load appends ".json".
func archiveFileKey(path, moduleName string) (string, error) {
	info, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	var modTime string
	if err == nil {
		modTime = info.ModTime().UTC().Format(time.RFC3339Nano)
	}
	pathHash := fnv.New32a()
	pathHash.Write([]byte(path))
	modHash := fnv.New32a()
	modHash.Write([]byte(modTime))
	combined := pathHash.Sum32() ^ modHash.Sum32()
	return fmt.Sprintf("%08x_%s", combined, moduleName), nil
}

// Load resolves the archive file for (binaryPath, moduleName) and, if it
// exists, deserializes every registered component from it. A missing file
// is not an error — it just means this binary has no prior saved state.
func (a *Archive) Load(binaryPath, moduleName string) error {
	key, err := archiveFileKey(binaryPath, moduleName)
	if err != nil {
		return fmt.Errorf("lochsemu: stat %q: %w", binaryPath, err)
	}
	a.fileName = key
	a.path = filepath.Join(a.dir, key+".json")
	a.loaded = true

	data, err := os.ReadFile(a.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lochsemu: reading archive %q: %w", a.path, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("lochsemu: deserializing archive %q: %w", a.path, err)
	}
	for name, obj := range a.objs {
		raw, ok := doc[name]
		if !ok {
			continue
		}
		if err := obj.Deserialize(raw); err != nil {
			return fmt.Errorf("lochsemu: deserializing archive component %q: %w", name, err)
		}
	}
	return nil
}

// Save serializes every registered component into one JSON document and
// writes it to the resolved archive path. Each component's Serialize runs
// concurrently (components own disjoint state, so there's no need to
// serialize them one at a time); every Serialize runs to completion and the
// first failure is the error returned.
// A non-nil return is terminal; the caller should not retry.
func (a *Archive) Save() error {
	if !a.loaded {
		return fmt.Errorf("lochsemu: Save called before Load resolved an archive path")
	}

	var mu sync.Mutex
	doc := make(map[string]json.RawMessage, len(a.objs))

	var g errgroup.Group
	for name, obj := range a.objs {
		name, obj := name, obj
		g.Go(func() error {
			raw, err := obj.Serialize()
			if err != nil {
				return fmt.Errorf("lochsemu: serializing archive component %q: %w", name, err)
			}
			mu.Lock()
			doc[name] = raw
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("lochsemu: marshaling archive: %w", err)
	}
	if err := os.WriteFile(a.path, data, 0o644); err != nil {
		return fmt.Errorf("lochsemu: writing archive %q: %w", a.path, err)
	}
	return nil
}

// Path returns the resolved archive file path, valid after Load.
func (a *Archive) Path() string { return a.path }
