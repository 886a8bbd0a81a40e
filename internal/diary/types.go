// Package diary persists finalized conversation summaries as diary entries.
package diary

import (
	"context"
	"errors"
	"time"

	"github.com/ent0n29/audiodiary/internal/conversation"
)

var ErrNotFound = errors.New("diary entry not found")

// Entry pairs the context snapshot of a conversation with its summary.
// Date is the time the entry was saved.
type Entry struct {
	ID       int64                  `json:"id"`
	Date     time.Time              `json:"date"`
	Contexts []conversation.Context `json:"context"`
	Summary  string                 `json:"summary"`
}

// Repository stores diary entries. Entries are immutable once created.
type Repository interface {
	Create(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id int64) (Entry, error)
	Delete(ctx context.Context, id int64) error
	Close() error
}

func normalize(entry Entry) Entry {
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}
	if entry.Contexts == nil {
		entry.Contexts = []conversation.Context{}
	}
	return entry
}
