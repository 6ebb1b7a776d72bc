package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"photobox/internal/box"
)

// FileSystemDispatcher delivers archives into an outbox directory, one
// subdirectory per run:
//
//	<outbox>/
//	  <run_id>/
//	    <archive name>       (or <archive name>.age when encrypting)
//	    <archive name>.eml   (unencrypted, complete envelope only)
//
// Each file is written atomically. A run never replaces another run's delivery.
type FileSystemDispatcher struct {
	root      string
	tmpl      Template
	encryptor box.Encryptor
	logger    box.Logger
}

var _ box.Dispatcher = (*FileSystemDispatcher)(nil)

// NewFileSystemDispatcher creates a FileSystemDispatcher, creating root if needed.
func NewFileSystemDispatcher(root string, tmpl Template, encryptor box.Encryptor, logger box.Logger) (*FileSystemDispatcher, error) {
	if root == "" {
		return nil, fmt.Errorf("outbox directory is required")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve outbox path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("failed to create outbox directory: %w", err)
	}
	return &FileSystemDispatcher{root: absRoot, tmpl: tmpl, encryptor: encryptor, logger: logger}, nil
}

// ArchivePath returns where the archive of runID is delivered.
func (d *FileSystemDispatcher) ArchivePath(runID, archiveName string) string {
	name := archiveName
	if d.encryptor != nil {
		name += encryptedSuffix
	}
	return filepath.Join(d.root, runID, name)
}

// Send writes the archive into the run's outbox directory.
func (d *FileSystemDispatcher) Send(ctx context.Context, archive *box.Archive, content io.Reader) error {
	dir, err := deliveryDir(archive)
	if err != nil {
		return err
	}
	m, err := d.tmpl.NewMessage(archive, content)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delivering %s: %w", archive.Name, err)
	}

	var body io.Reader = bytes.NewReader(m.Attachment.Content)
	if d.encryptor != nil {
		var buf bytes.Buffer
		if err := d.encryptor.Encrypt(body, &buf); err != nil {
			return fmt.Errorf("encrypting %s: %w", archive.Name, err)
		}
		body = &buf
	}

	if err := os.MkdirAll(filepath.Join(d.root, dir), 0755); err != nil {
		return fmt.Errorf("creating outbox directory for %s: %w", archive.Name, err)
	}
	dest := d.ArchivePath(dir, archive.Name)
	if err := d.writeFile(dest, body); err != nil {
		return fmt.Errorf("delivering %s: %w", archive.Name, err)
	}

	if d.encryptor == nil && m.Sender != "" && m.Recipient != "" {
		var eml bytes.Buffer
		if _, err := m.WriteTo(&eml); err != nil {
			return fmt.Errorf("rendering message for %s: %w", archive.Name, err)
		}
		if err := d.writeFile(filepath.Join(d.root, dir, archive.Name+".eml"), &eml); err != nil {
			return fmt.Errorf("delivering message for %s: %w", archive.Name, err)
		}
	}

	d.logger.Info("archive delivered", "run", archive.RunID, "archive", archive.Name, "path", dest, "recipient", m.Recipient)
	return nil
}

// writeFile writes r to destPath via a temp file in the same directory and a rename.
func (d *FileSystemDispatcher) writeFile(destPath string, r io.Reader) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
