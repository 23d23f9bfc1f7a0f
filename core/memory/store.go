// Package memory stores finished conversations and retrieves them for
// recall at the start of later turns.
package memory

import (
	"context"
	"time"

	"github.com/voxpet/voxpet-core/core/llms"
)

// Summary is a recall hit: enough of a stored conversation to prime a new
// turn without loading the full transcript.
type Summary struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   string         `json:"summary"`
	Messages  []llms.Message `json:"messages"`
}

// Detail is a stored conversation in full.
type Detail struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Summary   string         `json:"summary"`
	Messages  []llms.Message `json:"messages"`
	Tags      []string       `json:"tags,omitempty"`
}

type Store interface {
	// Search returns up to limit stored conversations relevant to query,
	// most relevant first.
	Search(ctx context.Context, query string, limit int) ([]Summary, error)
	// Save persists a conversation. It reports false when there was
	// nothing to save.
	Save(ctx context.Context, messages []llms.Message) (bool, error)
	// GetByID returns the full stored conversation, or nil when unknown.
	GetByID(ctx context.Context, id string) (*Detail, error)
}
