package fsutil

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
)

// AtomicWriter writes JSON documents into Dir so that a reader never sees a
// partially written file: each document goes to a temp file in the same
// directory and is renamed over the target once fully synced.
type AtomicWriter struct {
	Dir string
	FS  FileSystem
}

// NewAtomicWriter returns a writer for dir. A nil fsys uses the OS.
func NewAtomicWriter(dir string, fsys FileSystem) *AtomicWriter {
	if fsys == nil {
		fsys = OSFileSystem{}
	}
	return &AtomicWriter{Dir: dir, FS: fsys}
}

// Path returns the full path of filename inside the writer's directory.
func (w *AtomicWriter) Path(filename string) string {
	return filepath.Join(w.Dir, filename)
}

// WriteAtomic encodes data as indented JSON and replaces filename with it.
// On failure the temp file is removed and any previous file is left
// untouched.
func (w *AtomicWriter) WriteAtomic(data any, filename string) (err error) {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filename, err)
	}

	tmp, err := w.FS.CreateTemp(w.Dir, "."+filename+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", filename, err)
	}
	tmpName := tmp.Name()
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			tmp.Close()
		}
		if rmErr := w.FS.Remove(tmpName); rmErr != nil {
			monitoring.Logf("fsutil: failed to remove temp file %s: %v", tmpName, rmErr)
		}
	}()

	if _, err = tmp.Write(payload); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", filename, err)
	}
	closed = true
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filename, err)
	}
	if err = w.FS.Rename(tmpName, w.Path(filename)); err != nil {
		return fmt.Errorf("rename %s: %w", filename, err)
	}
	return nil
}

// ReadOrInit returns the decoded content of filename, or def when the file
// is missing or cannot be decoded.
func (w *AtomicWriter) ReadOrInit(filename string, def map[string]any) map[string]any {
	raw, err := w.FS.ReadFile(w.Path(filename))
	if err != nil {
		return def
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return def
	}
	return out
}

// UpdateIncremental deep-merges newData onto the current content of
// filename and writes the result atomically. Nested objects merge key by
// key; any other value in newData replaces the existing one.
func (w *AtomicWriter) UpdateIncremental(newData map[string]any, filename string) error {
	merged := DeepMerge(w.ReadOrInit(filename, map[string]any{}), newData)
	return w.WriteAtomic(merged, filename)
}

// WriteAll writes each document to its filename, in filename order. Each
// file is replaced atomically but the set is not: a failure part way leaves
// earlier files updated and later ones at their previous version.
func (w *AtomicWriter) WriteAll(docs map[string]any) error {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := w.WriteAtomic(docs[name], name); err != nil {
			return err
		}
	}
	return nil
}

// DeepMerge returns a copy of base with updates applied recursively. Neither
// input is modified.
func DeepMerge(base, updates map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(updates))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range updates {
		if sub, ok := v.(map[string]any); ok {
			if existing, ok := out[k].(map[string]any); ok {
				out[k] = DeepMerge(existing, sub)
				continue
			}
		}
		out[k] = v
	}
	return out
}
