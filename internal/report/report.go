package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"photo-resizer-go/internal/extractor"

	"github.com/sirupsen/logrus"
)

// Processed describes one produced file.
type Processed struct {
	OriginalRelativePath string `json:"originalRelativePath"`
	Width                int    `json:"width"`
	Height               int    `json:"height"`
}

// Report correlates original and processed files. Original keys are paths
// relative to the input directory, processed keys relative to the output
// directory.
type Report struct {
	Original  map[string]extractor.Metadata `json:"original"`
	Processed map[string]Processed          `json:"processed"`
}

// KeySet is the set of report keys that still exist on disk.
type KeySet struct {
	Original  map[string]bool
	Processed map[string]bool
}

// Pruned lists keys removed during reconciliation.
type Pruned struct {
	Original  []string
	Processed []string
}

// Len returns the total number of pruned keys.
func (p Pruned) Len() int {
	return len(p.Original) + len(p.Processed)
}

// New returns an empty report.
func New() *Report {
	return &Report{
		Original:  make(map[string]extractor.Metadata),
		Processed: make(map[string]Processed),
	}
}

// Keys returns the key set of r.
func (r *Report) Keys() KeySet {
	ks := KeySet{
		Original:  make(map[string]bool, len(r.Original)),
		Processed: make(map[string]bool, len(r.Processed)),
	}
	for k := range r.Original {
		ks.Original[k] = true
	}
	for k := range r.Processed {
		ks.Processed[k] = true
	}
	return ks
}

// Load reads a report from path. A missing or unparseable file yields an
// empty report and no error.
func Load(path string, logger *logrus.Logger) *Report {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) && logger != nil {
			logger.Warnf("Could not read metadata report %s, starting fresh: %v", path, err)
		}
		return New()
	}

	r := New()
	if err := json.Unmarshal(data, r); err != nil {
		if logger != nil {
			logger.Warnf("Could not parse metadata report %s, starting fresh: %v", path, err)
		}
		return New()
	}
	if r.Original == nil {
		r.Original = make(map[string]extractor.Metadata)
	}
	if r.Processed == nil {
		r.Processed = make(map[string]Processed)
	}
	return r
}

// Merge prunes keys of existing that are not in live, then overlays fresh.
// Entries of existing that are live but absent from fresh are kept as is.
func Merge(existing, fresh *Report, live KeySet) (*Report, Pruned) {
	merged := New()
	var pruned Pruned

	for k, v := range existing.Original {
		if !live.Original[k] {
			pruned.Original = append(pruned.Original, k)
			continue
		}
		merged.Original[k] = v
	}
	for k, v := range existing.Processed {
		if !live.Processed[k] {
			pruned.Processed = append(pruned.Processed, k)
			continue
		}
		merged.Processed[k] = v
	}

	for k, v := range fresh.Original {
		merged.Original[k] = v
	}
	for k, v := range fresh.Processed {
		merged.Processed[k] = v
	}

	sort.Strings(pruned.Original)
	sort.Strings(pruned.Processed)
	return merged, pruned
}

// Save writes r as indented JSON, creating parent directories.
func Save(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Reconcile merges fresh into the report stored at path and writes the
// result back. Keys outside live are pruned and logged.
func Reconcile(fresh *Report, live KeySet, path string, logger *logrus.Logger) (*Report, Pruned, error) {
	existing := Load(path, logger)
	merged, pruned := Merge(existing, fresh, live)

	if logger != nil {
		for _, k := range pruned.Original {
			logger.Warnf("Removed stale original entry from metadata report: %s", k)
		}
		for _, k := range pruned.Processed {
			logger.Warnf("Removed stale processed entry from metadata report: %s", k)
		}
	}

	if err := Save(path, merged); err != nil {
		return nil, pruned, err
	}
	return merged, pruned, nil
}
