package dataset

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// The canonical store is gzip-compressed JSON. encoding/json writes map
// keys in sorted order and the gzip header carries no timestamp, so the
// same logical content always serializes to the same bytes. That makes
// "merging the same files twice changes nothing" checkable by comparing
// files directly.

// Encode writes the dataset to w in the canonical store format.
func (d *Dataset) Encode(w io.Writer) error {
	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(d); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("flush dataset: %w", err)
	}
	return nil
}

// Decode reads a dataset in the canonical store format from r.
func Decode(r io.Reader) (*Dataset, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	defer gz.Close()

	d := New()
	if err := json.NewDecoder(gz).Decode(d); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return d, nil
}

// ReadFile loads a canonical store file.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	defer f.Close()

	d, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read store %s: %w", path, err)
	}
	return d, nil
}

// WriteFile persists the dataset at path, replacing any previous file
// atomically: the new content is written next to it and renamed into
// place, so a crash mid-write never leaves a truncated store behind.
func WriteFile(path string, d *Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create store folder: %w", err)
	}

	tmp := path + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create store temp file: %w", err)
	}

	if err := d.Encode(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close store temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace store %s: %w", path, err)
	}
	return nil
}
