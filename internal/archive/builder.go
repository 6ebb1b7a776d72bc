// Package archive packages the artifacts of a pipeline run into a zip file.
package archive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"

	"photobox/internal/box"
)

// ZipBuilder writes a run's artifacts into a flat, deflated zip archive.
type ZipBuilder struct {
	logger box.Logger
}

var _ box.ArchiveBuilder = (*ZipBuilder)(nil)

// NewZipBuilder creates a ZipBuilder.
func NewZipBuilder(logger box.Logger) *ZipBuilder {
	return &ZipBuilder{logger: logger}
}

// Build packages every artifact of runID except name itself into the archive
// artifact name. Entries are written in name order. The archive is visible in
// the scratch area only if every entry was written.
func (b *ZipBuilder) Build(ctx context.Context, area box.ScratchArea, runID, name string, builtAt time.Time) (*box.Archive, error) {
	artifacts, err := area.List(runID)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	entries := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		if a.Name == name {
			continue
		}
		entries = append(entries, a.Name)
	}
	sort.Strings(entries)

	dst, err := area.Create(runID, name)
	if err != nil {
		return nil, fmt.Errorf("creating archive %s: %w", name, err)
	}

	counter := &countingWriter{w: dst}
	if err := b.write(ctx, area, runID, entries, counter, builtAt); err != nil {
		if abortErr := dst.Abort(); abortErr != nil {
			b.logger.Warn("failed to abort archive", "run", runID, "archive", name, "error", abortErr)
		}
		return nil, err
	}
	if err := dst.Close(); err != nil {
		return nil, fmt.Errorf("storing archive %s: %w", name, err)
	}

	b.logger.Debug("archive built", "run", runID, "archive", name, "entries", len(entries), "size", counter.n)
	return &box.Archive{
		RunID:   runID,
		Name:    name,
		Entries: entries,
		Size:    counter.n,
		BuiltAt: builtAt,
	}, nil
}

func (b *ZipBuilder) write(ctx context.Context, area box.ScratchArea, runID string, entries []string, w io.Writer, builtAt time.Time) error {
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("building archive: %w", err)
		}
		if err := addEntry(zw, area, runID, entry, builtAt); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	return nil
}

func addEntry(zw *zip.Writer, area box.ScratchArea, runID, entry string, builtAt time.Time) error {
	src, err := area.Open(runID, entry)
	if err != nil {
		return fmt.Errorf("opening %s: %w", entry, err)
	}
	defer src.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entry,
		Method:   zip.Deflate,
		Modified: builtAt,
	})
	if err != nil {
		return fmt.Errorf("adding %s: %w", entry, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("compressing %s: %w", entry, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
