package wal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DefaultRetainCount is the default number of segments kept after
// compaction, as a safety margin for operators inspecting recent
// history.
const DefaultRetainCount = 3

// Compactor removes changelog segments made obsolete by a completed
// checkpoint.
type Compactor struct {
	dir         string
	retainCount int
}

// CompactorOption configures the Compactor.
type CompactorOption func(*Compactor)

// WithRetainCount sets the number of segments to retain.
func WithRetainCount(count int) CompactorOption {
	return func(c *Compactor) {
		if count > 0 {
			c.retainCount = count
		}
	}
}

// NewCompactor creates a compactor over a changelog directory.
func NewCompactor(dir string, opts ...CompactorOption) *Compactor {
	c := &Compactor{
		dir:         dir,
		retainCount: DefaultRetainCount,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Compact removes segments fully covered by the given checkpoint
// offset, always retaining at least retainCount segments.
//
// checkpointOffset uses the composite format (segmentID<<32 | offset
// within the segment). Segments with an id below the checkpoint's
// segment are safe to delete: every record they hold was captured by
// the checkpoint.
func (c *Compactor) Compact(checkpointOffset uint64) error {
	files, err := c.listSegments()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return nil
	}

	checkpointSegmentID := checkpointOffset >> 32

	var toDelete []string
	for _, file := range files {
		segmentID, ok := parseSegmentFilename(filepath.Base(file))
		if !ok {
			continue
		}
		if segmentID < checkpointSegmentID {
			toDelete = append(toDelete, file)
		}
	}

	// Keep at least retainCount segments.
	if len(files)-len(toDelete) < c.retainCount {
		keepCount := c.retainCount - (len(files) - len(toDelete))
		if keepCount > len(toDelete) {
			keepCount = len(toDelete)
		}
		toDelete = toDelete[:len(toDelete)-keepCount]
	}

	var errs []error
	for _, file := range toDelete {
		if err := os.Remove(file); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", file, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("wal: failed to delete %d segments: %w", len(errs), errors.Join(errs...))
	}

	return nil
}

// TotalSize returns the total size of all segments in bytes.
func (c *Compactor) TotalSize() (int64, error) {
	files, err := c.listSegments()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		total += info.Size()
	}

	return total, nil
}

// SegmentCount returns the number of changelog segments.
func (c *Compactor) SegmentCount() (int, error) {
	files, err := c.listSegments()
	if err != nil {
		return 0, err
	}
	return len(files), nil
}

func (c *Compactor) listSegments() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := parseSegmentFilename(entry.Name()); ok {
			files = append(files, filepath.Join(c.dir, entry.Name()))
		}
	}

	// Zero-padded names sort in segment order.
	sort.Strings(files)
	return files, nil
}
