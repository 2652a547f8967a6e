// Package atomicfile provides the temp-write-then-rename primitive that
// every persisted store in this module uses to guarantee a concurrent
// reader sees either the pre- or post-write file, never a torn one
// (SPEC_FULL.md §4.J's atomicity guarantee). Ported from
// original_source's BatchIndexWriter, which does this by hand for each
// file it owns; here it is one shared helper.
package atomicfile

import (
	"os"
	"path/filepath"
)

// Write writes data to path via a temp file in the same directory,
// flushing and syncing before an atomic rename into place. The temp
// file is removed if any step before the rename fails.
func Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// AppendLine appends line plus a trailing newline to path, creating the
// file (and its directory) if necessary, flushing before returning.
// Append-only logs (the forward index, the raw corpus file) do not need
// the temp+rename dance: a reader tailing the file only ever sees
// complete prior lines, and a torn last line is simply not yet visible
// to a length-bounded scan.
func AppendLine(path string, line []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return err
	}
	if _, err := f.Write([]byte("\n")); err != nil {
		return err
	}
	return f.Sync()
}
