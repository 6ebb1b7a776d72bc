package box

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Names of the text artifacts generated for every submission.
const (
	NicknameArtifact = "nickname.txt"
	CommentArtifact  = "comment.txt"
	HashArtifact     = "hash.txt"
)

// CompletedMessage is returned to the caller after a successful run.
const CompletedMessage = "Zip file created and sent via email"

// Upload is the file part of a submission.
type Upload struct {
	Name    string
	Content io.Reader
}

// Submission is one intake request. It lives for exactly one pipeline run.
type Submission struct {
	AccountAddress string
	Nickname       string
	Comment        string
	Upload         *Upload
}

// Result is produced when a run reaches Completed.
type Result struct {
	RunID       string
	Fingerprint string
	Message     string
	ArchiveName string
	TokenID     string // always empty; token issuance lives elsewhere
}

// Record is one persisted audit row.
type Record struct {
	ID          int64
	Fingerprint string
	CreatedAt   time.Time
}

// Artifact is a named item held in a run's scratch namespace.
type Artifact struct {
	Name string
	Size int64
}

// Archive describes a packaged run. Name is only unique to the millisecond;
// RunID tells apart archives of runs that started together.
type Archive struct {
	RunID   string
	Name    string
	Entries []string
	Size    int64
	BuiltAt time.Time
}

// Run is the journal entry for one pipeline execution.
type Run struct {
	ID          int64
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	State       string
	FailedStage string
	Error       string
}

// ArtifactName flattens name to its final path element. Names that would
// escape or alias a namespace ("", ".", "..") are rejected.
func ArtifactName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return base, nil
}

// ArchiveName derives the archive file name from its build time:
// YYYYMMDDhhmmssSSS.zip in UTC.
func ArchiveName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%03d.zip", t.Format("20060102150405"), t.Nanosecond()/int(time.Millisecond))
}
