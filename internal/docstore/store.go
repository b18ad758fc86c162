// Package docstore adapts version-controlled backends that hold the content
// document as a single file. Every backend exposes a revision token on read
// and rejects a write whose token no longer matches.
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document revision changed since read")
	ErrCorrupt  = errors.New("existing document is not valid JSON")
)

// Snapshot is the stored document at one revision.
type Snapshot struct {
	Content  map[string]any
	Raw      []byte
	Revision string
}

// WriteRequest replaces the stored document. Revision must be the token from
// the read the new content was based on; empty means the document must not
// exist yet.
type WriteRequest struct {
	Content  []byte
	Revision string
	Message  string
}

// Commit identifies a successful write.
type Commit struct {
	ID       string
	Revision string
}

// CommitInfo is one entry of a document's history.
type CommitInfo struct {
	ID        string
	Message   string
	Author    string
	CreatedAt time.Time
}

func decodeSnapshot(raw []byte, revision string) (Snapshot, error) {
	var content map[string]any
	if err := json.Unmarshal(raw, &content); err != nil || content == nil {
		return Snapshot{}, ErrCorrupt
	}
	return Snapshot{Content: content, Raw: raw, Revision: revision}, nil
}

func conflictError(expected, actual string) error {
	return fmt.Errorf("%w: expected %s, found %s", ErrConflict, shortRevision(expected), shortRevision(actual))
}

func shortRevision(revision string) string {
	if revision == "" {
		return "none"
	}
	if len(revision) > 7 {
		return revision[:7]
	}
	return revision
}
