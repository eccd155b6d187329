package history

import (
	"context"
	"errors"
)

// ErrPersistence wraps load and save failures. The in-memory record stays
// authoritative for the session when it is reported.
var ErrPersistence = errors.New("history persistence failed")

// Record is the ordered message sequence for one key plus the running
// summary of folded-away turns.
type Record struct {
	Key      Key       `json:"key"`
	Summary  Summary   `json:"summary"`
	Messages []Message `json:"messages"`
}

// NewRecord creates an empty record for key.
func NewRecord(key Key) *Record {
	return &Record{Key: key, Messages: []Message{}}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *Record) Clone() *Record {
	out := &Record{
		Key:      r.Key,
		Summary:  r.Summary.Clone(),
		Messages: make([]Message, len(r.Messages)),
	}
	copy(out.Messages, r.Messages)
	return out
}

// Len returns the number of raw messages.
func (r *Record) Len() int {
	return len(r.Messages)
}

// View returns at most the summary message (if anything was folded) followed
// by the raw messages.
func (r *Record) View() []Message {
	out := make([]Message, 0, len(r.Messages)+1)
	if !r.Summary.IsZero() {
		out = append(out, r.Summary.Message())
	}
	return append(out, r.Messages...)
}

// bounded returns a copy whose raw messages are the most recent maxRecent,
// with everything older folded into the summary. The receiver is unchanged.
func (r *Record) bounded(maxRecent int) *Record {
	out := r.Clone()
	if maxRecent < 0 {
		maxRecent = 0
	}
	if n := len(out.Messages) - maxRecent; n > 0 {
		out.Summary = Fold(out.Summary, out.Messages[:n])
		out.Messages = append([]Message(nil), out.Messages[n:]...)
	}
	return out
}

// Storage is the opaque load/save collaborator, keyed by Key.String().
type Storage interface {
	// LoadRecord returns nil, nil when no record exists for key.
	LoadRecord(ctx context.Context, key Key) (*Record, error)

	// SaveRecord replaces the persisted record for record.Key.
	SaveRecord(ctx context.Context, record *Record) error

	// DeleteRecord removes the persisted record. Deleting a missing record
	// is not an error.
	DeleteRecord(ctx context.Context, key Key) error

	// ListKeys lists all persisted keys.
	ListKeys(ctx context.Context) ([]Key, error)
}
