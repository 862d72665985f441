package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"reportflow/pkg/types"
)

// fileNameTimeFormat is embedded in every artifact filename so that repeated
// runs within a day do not collide.
const fileNameTimeFormat = "20060102_150405"

// Layout describes where raw and processed artifacts live on disk.
type Layout struct {
	Root string
}

// DownloadsDir is where acquisition writes raw artifacts.
func (l Layout) DownloadsDir() string { return filepath.Join(l.Root, "downloads") }

// ProcessedDir is where report units write their outputs.
func (l Layout) ProcessedDir() string { return filepath.Join(l.Root, "processed") }

// Ensure creates the storage directories if they do not exist.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.DownloadsDir(), l.ProcessedDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// TimestampedFilename builds "<producer>_<timestamp>.<ext>".
func TimestampedFilename(producer, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("%s_%s.%s", producer, time.Now().Format(fileNameTimeFormat), ext)
}

// producerOf extracts the producer from a timestamped filename. The
// timestamp occupies the last two underscore-separated tokens; everything
// before it is the producer, which may itself contain underscores.
func producerOf(filename string) (string, bool) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return "", false
	}
	date, clock := parts[len(parts)-2], parts[len(parts)-1]
	if len(date) != 8 || len(clock) != 6 || !allDigits(date) || !allDigits(clock) {
		return "", false
	}
	return strings.Join(parts[:len(parts)-2], "_"), true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SeedFromDir registers the newest file per producer found in dir,
// supporting the reprocess-on-existing-downloads mode. Files that do not
// follow the timestamped naming convention are ignored.
func (s *Store) SeedFromDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", dir, err)
	}

	newest := make(map[string]types.Artifact)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		producer, ok := producerOf(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidate := types.Artifact{
			Name:       producer,
			Path:       filepath.Join(dir, entry.Name()),
			ProducedAt: info.ModTime(),
			Producer:   producer,
		}
		if current, ok := newest[producer]; !ok || candidate.ProducedAt.After(current.ProducedAt) {
			newest[producer] = candidate
		}
	}

	for name, artifact := range newest {
		s.Put(name, artifact)
	}
	return nil
}

// CleanupProducerFiles deletes all but the keepLatest newest files for a
// producer in dir. Returns the number of files removed.
func CleanupProducerFiles(dir, producer string, keepLatest int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	type datedFile struct {
		path    string
		modTime time.Time
	}
	var files []datedFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		p, ok := producerOf(entry.Name())
		if !ok || p != producer {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, datedFile{path: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
	}

	if len(files) <= keepLatest {
		return 0, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	deleted := 0
	for _, f := range files[keepLatest:] {
		if err := os.Remove(f.path); err == nil {
			deleted++
		}
	}
	return deleted, nil
}
