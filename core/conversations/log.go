// Package conversations tracks a client's conversation across turns and
// hands finished conversations to the memory store.
package conversations

import (
	"context"
	"sync"

	"github.com/voxpet/voxpet-core/core/llms"
	"github.com/voxpet/voxpet-core/core/memory"
)

// Log is an append-only record of one conversation. It is safe for
// concurrent use; History returns snapshots so callers can stream a turn
// while new messages arrive.
type Log struct {
	mu       sync.Mutex
	messages []llms.Message
}

func NewLog() *Log {
	return &Log{}
}

// Append records messages in arrival order.
func (l *Log) Append(messages ...llms.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, messages...)
}

// History returns a deep copy of the conversation so far.
func (l *Log) History() []llms.Message {
	l.mu.Lock()
	defer l.mu.Unlock()

	return llms.SnapshotHistory(l.messages)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.messages)
}

// Clear drops the recorded conversation, e.g. when a client starts over.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = nil
}

// Persist saves the conversation to the memory store. It reports false when
// there was nothing to save; the log keeps its contents either way.
func (l *Log) Persist(ctx context.Context, store memory.Store) (bool, error) {
	return store.Save(ctx, l.History())
}
