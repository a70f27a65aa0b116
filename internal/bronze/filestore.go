package bronze

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FileStore reads raw envelopes from the immutable bronze layer on
// disk: root/YYYY/MM/DD/*.json, one envelope per file, written by the
// (external) queue consumer. The store is strictly read-only.
type FileStore struct {
	rootDir string
}

// NewFileStore creates a file-backed bronze store rooted at rootDir.
func NewFileStore(rootDir string) *FileStore {
	return &FileStore{rootDir: rootDir}
}

// ReadAll returns every parseable envelope under the root, in stable
// path order. Malformed JSON files are skipped with a warning — a bad
// envelope must never abort a pipeline run. The second return value
// is the number of files skipped.
func (s *FileStore) ReadAll(ctx context.Context) ([]*Envelope, int, error) {
	return s.ReadRange(ctx, time.Time{}, time.Time{})
}

// ReadRange is ReadAll restricted to date partitions within
// [start, end]. Zero bounds disable the corresponding check. Files
// outside a recognizable YYYY/MM/DD partition are always included.
func (s *FileStore) ReadRange(ctx context.Context, start, end time.Time) ([]*Envelope, int, error) {
	paths, err := s.listFiles(start, end)
	if err != nil {
		return nil, 0, err
	}

	envelopes := make([]*Envelope, 0, len(paths))
	skipped := 0

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, skipped, err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("[Bronze] Skipping unreadable file", "path", path, "error", err)
			skipped++
			continue
		}

		var env Envelope
		if err := json.Unmarshal(content, &env); err != nil {
			slog.Warn("[Bronze] Skipping malformed envelope", "path", path, "error", err)
			skipped++
			continue
		}

		envelopes = append(envelopes, &env)
	}

	return envelopes, skipped, nil
}

// listFiles walks the partition tree and returns matching JSON paths
// sorted lexicographically (partition + filename order).
func (s *FileStore) listFiles(start, end time.Time) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.rootDir {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		if date, ok := s.partitionDate(path); ok {
			if !start.IsZero() && date.Before(start) {
				return nil
			}
			if !end.IsZero() && date.After(end) {
				return nil
			}
		}

		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk bronze root %q: %w", s.rootDir, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// partitionDate extracts the YYYY/MM/DD partition of a file path.
func (s *FileStore) partitionDate(path string) (time.Time, bool) {
	rel, err := filepath.Rel(s.rootDir, path)
	if err != nil {
		return time.Time{}, false
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 4 {
		return time.Time{}, false
	}

	year, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	day, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}
