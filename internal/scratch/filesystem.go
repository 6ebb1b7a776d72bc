package scratch

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"photobox/internal/box"
)

// tmpPrefix marks artifacts still being written. They are never listed.
const tmpPrefix = ".tmp-"

// filesystemStore keeps artifacts on disk, one directory per run:
//
//	<scratch_dir>/
//	  <run_id>/
//	    <artifact name>
//	    .tmp-*        (artifacts being written)
type filesystemStore struct {
	root string
}

// NewFileSystemScratchArea creates a scratch area rooted at scratchDir.
// maxSize is the maximum total size in bytes; must be positive.
func NewFileSystemScratchArea(scratchDir string, maxSize int64, logger box.Logger) (box.ScratchArea, error) {
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &area{
		store:   &filesystemStore{root: scratchDir},
		maxSize: maxSize,
		logger:  logger,
	}, nil
}

func (f *filesystemStore) runDir(runID string) string {
	return filepath.Join(f.root, runID)
}

func (f *filesystemStore) Create(runID, name string) (pendingArtifact, error) {
	dir := f.runDir(runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	// Temp file in the same directory so the final rename is atomic.
	tmp, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &filePending{file: tmp, dest: filepath.Join(dir, name)}, nil
}

func (f *filesystemStore) Open(runID, name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(f.runDir(runID), name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("artifact not found: %s/%s", runID, name)
		}
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return file, nil
}

func (f *filesystemStore) List(runID string) ([]*box.Artifact, error) {
	entries, err := os.ReadDir(f.runDir(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading run directory: %w", err)
	}

	var arts []*box.Artifact
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		arts = append(arts, &box.Artifact{Name: e.Name(), Size: info.Size()})
	}
	return arts, nil
}

func (f *filesystemStore) Remove(runID, name string) error {
	err := os.Remove(filepath.Join(f.runDir(runID), name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (f *filesystemStore) RemoveRun(runID string) error {
	return os.RemoveAll(f.runDir(runID))
}

func (f *filesystemStore) Runs() ([]string, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("reading scratch directory: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *filesystemStore) LastWrite(runID string) (time.Time, error) {
	dir := f.runDir(runID)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	last := info.ModTime()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}, fmt.Errorf("reading run directory: %w", err)
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(last) {
			last = info.ModTime()
		}
	}
	return last, nil
}

func (f *filesystemStore) ContentSize() (int64, error) {
	var total int64
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Concurrent runs remove their directories while we walk.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measuring scratch directory: %w", err)
	}
	return total, nil
}

// filePending writes to a temp file and renames it into place on Commit.
type filePending struct {
	file *os.File
	dest string
}

func (p *filePending) Write(b []byte) (int, error) { return p.file.Write(b) }

func (p *filePending) Commit() error {
	tmpPath := p.file.Name()
	if err := p.file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, p.dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func (p *filePending) Discard() error {
	p.file.Close()
	if err := os.Remove(p.file.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
