// Package store owns the on-disk raw file storage and its filename
// convention. The raw folder doubles as the incremental progress log:
// which timestamps have already been downloaded is derived entirely from
// the filenames present, so there is no separate progress database to
// keep in sync with the filesystem.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrEmptyStore is returned by ResolveCursor when the raw folder holds no
// decodable files yet. The caller decides how to bootstrap, typically by
// listing the remote catalog without a start-after cursor.
var ErrEmptyStore = errors.New("no raw files present in local storage")

// timestampLayout covers the trailing 12 characters of a raw filename stem:
// YYYYMMDDHHMM, UTC, zero-padded. Fixed width means lexicographic filename
// order is chronological order.
const timestampLayout = "200601021504"

const timestampLen = len(timestampLayout)

// Naming describes the filename convention of one remote dataset:
// <prefix><YYYYMMDDHHMM><ext>.
type Naming struct {
	Prefix string
	Ext    string
}

// Filename renders the canonical filename for an observation timestamp.
// The result is also valid as the catalog's startAfterFilename parameter.
func (n Naming) Filename(t time.Time) string {
	return n.Prefix + t.UTC().Format(timestampLayout) + n.Ext
}

// TimestampFromFilename decodes the observation timestamp encoded in the
// last 12 characters of the filename stem.
func TimestampFromFilename(name string) (time.Time, error) {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if len(stem) < timestampLen {
		return time.Time{}, fmt.Errorf("filename %q too short to carry a timestamp", name)
	}
	t, err := time.ParseInLocation(timestampLayout, stem[len(stem)-timestampLen:], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("filename %q carries no valid timestamp: %w", name, err)
	}
	return t, nil
}

// ListRawFiles returns the names of all raw files in dir, sorted by
// filename and hence chronologically. Entries whose names do not decode to
// a timestamp (temp files, strays) are ignored.
func ListRawFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read raw folder %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := TimestampFromFilename(e.Name()); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ResolveCursor scans the raw folder and returns the maximum timestamp
// decodable from the filenames present. Returns ErrEmptyStore when the
// folder holds no decodable files. The cursor is recomputed on every call
// rather than persisted, so a crash between download and bookkeeping
// cannot desynchronize the two.
func ResolveCursor(dir string) (time.Time, error) {
	names, err := ListRawFiles(dir)
	if err != nil {
		return time.Time{}, err
	}
	if len(names) == 0 {
		return time.Time{}, fmt.Errorf("%w: %s", ErrEmptyStore, dir)
	}

	var cursor time.Time
	for _, name := range names {
		t, err := TimestampFromFilename(name)
		if err != nil {
			continue
		}
		if t.After(cursor) {
			cursor = t
		}
	}
	return cursor, nil
}
