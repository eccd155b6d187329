package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const (
	// DefaultMaxRecent is the number of raw messages kept verbatim.
	DefaultMaxRecent = 10
	// DefaultSlack is how far a record may grow past MaxRecent before the
	// oldest messages are folded into the summary.
	DefaultSlack = 4
)

// Config configures a Store.
type Config struct {
	// Storage persists records. If nil, the store is memory-only.
	Storage Storage
	// MaxRecent is the compaction window. Zero means DefaultMaxRecent.
	MaxRecent int
	// Slack is the growth allowed past MaxRecent before folding. Negative
	// means DefaultSlack.
	Slack int
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// OnPersistError is called for every load or save failure, after it is
	// logged. Errors wrap ErrPersistence.
	OnPersistError func(Key, error)
}

// Store owns the history records of every key. Records are created on first
// access and live until cleared.
type Store struct {
	storage        Storage
	maxRecent      int
	slack          int
	logger         *slog.Logger
	onPersistError func(Key, error)

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	key    Key
	record *Record
	loaded bool
	writer *writer
}

// NewStore creates a history store.
func NewStore(config Config) *Store {
	maxRecent := config.MaxRecent
	if maxRecent <= 0 {
		maxRecent = DefaultMaxRecent
	}
	slack := config.Slack
	if slack < 0 {
		slack = DefaultSlack
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		storage:        config.Storage,
		maxRecent:      maxRecent,
		slack:          slack,
		logger:         logger,
		onPersistError: config.OnPersistError,
		entries:        make(map[string]*entry),
	}
}

// MaxRecent returns the configured compaction window.
func (s *Store) MaxRecent() int {
	return s.maxRecent
}

// Get returns a copy of the record for key, loading it from storage on first
// access. A missing or unreadable record yields an empty one.
func (s *Store) Get(ctx context.Context, key Key) *Record {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.ensureLoaded(ctx, e)
	return e.record.Clone()
}

// Append adds msg verbatim and schedules a save. Messages without an ID or
// timestamp get one assigned. The stored message is returned.
func (s *Store) Append(ctx context.Context, key Key, msg Message) Message {
	if msg.ID == "" || msg.Timestamp.IsZero() {
		fresh := NewMessage(msg.Role, msg.Content, msg.Flags)
		if msg.ID == "" {
			msg.ID = fresh.ID
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = fresh.Timestamp
		}
	}

	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.ensureLoaded(ctx, e)

	e.record.Messages = append(e.record.Messages, msg)
	s.compact(e)
	if e.loaded {
		e.writer.schedule(e.record.Clone())
	}
	return msg
}

// Switch flushes active's pending state and returns the record for next.
// Switching to the same key is a plain Get.
func (s *Store) Switch(ctx context.Context, active, next Key) *Record {
	if active != next {
		if err := s.Flush(ctx, active); err != nil {
			s.logger.Warn("history flush interrupted during switch",
				"key", active.String(), "error", err)
		}
	}
	return s.Get(ctx, next)
}

// Clear removes in-memory and persisted state for key. A subsequent Get
// returns a fresh empty record.
func (s *Store) Clear(ctx context.Context, key Key) error {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writer.discard(ctx); err != nil {
		return fmt.Errorf("failed to drain pending writes: %w", err)
	}
	e.record = NewRecord(key)
	e.loaded = true

	if s.storage == nil {
		return nil
	}
	if err := s.storage.DeleteRecord(ctx, key); err != nil {
		err = fmt.Errorf("%w: delete %s: %v", ErrPersistence, key, err)
		s.reportPersistError(key, err)
		return err
	}
	return nil
}

// BoundedView returns at most the summary message followed by the maxRecent
// most recent raw messages. Raw messages older than the window are folded
// into the returned summary without modifying the stored record.
func (s *Store) BoundedView(ctx context.Context, key Key, maxRecent int) []Message {
	return s.Bounded(ctx, key, maxRecent).View()
}

// Bounded is BoundedView in structured form: the view's summary and raw
// messages are kept apart so callers can shrink either.
func (s *Store) Bounded(ctx context.Context, key Key, maxRecent int) *Record {
	e := s.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.ensureLoaded(ctx, e)
	return e.record.bounded(maxRecent)
}

// Flush waits until every scheduled save for key has completed.
func (s *Store) Flush(ctx context.Context, key Key) error {
	s.mu.Lock()
	e, ok := s.entries[key.String()]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return e.writer.wait(ctx)
}

// Keys lists persisted keys.
func (s *Store) Keys(ctx context.Context) ([]Key, error) {
	if s.storage == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		keys := make([]Key, 0, len(s.entries))
		for _, e := range s.entries {
			keys = append(keys, e.key)
		}
		return keys, nil
	}
	keys, err := s.storage.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list history keys: %w", err)
	}
	return keys, nil
}

// Close flushes every key.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		if err := e.writer.wait(ctx); err != nil {
			return fmt.Errorf("failed to flush %s: %w", e.key, err)
		}
	}
	return nil
}

func (s *Store) entry(key Key) *entry {
	id := key.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e
	}
	e := &entry{key: key, record: NewRecord(key)}
	e.writer = newWriter(func(snapshot *Record) { s.save(key, snapshot) })
	s.entries[id] = e
	return e
}

// ensureLoaded must be called with e.mu held.
func (s *Store) ensureLoaded(ctx context.Context, e *entry) {
	if e.loaded {
		return
	}
	if s.storage == nil {
		e.loaded = true
		return
	}

	// A failed load leaves the entry unloaded: the next access retries, and
	// nothing is saved meanwhile so the persisted transcript is not replaced.
	record, err := s.storage.LoadRecord(ctx, e.key)
	if err != nil {
		s.reportPersistError(e.key, fmt.Errorf("%w: load %s: %v", ErrPersistence, e.key, err))
		return
	}
	e.loaded = true
	if record == nil {
		if len(e.record.Messages) > 0 {
			e.writer.schedule(e.record.Clone())
		}
		return
	}

	pending := e.record.Messages
	record.Key = e.key
	record.Messages = append(append([]Message{}, record.Messages...), pending...)
	e.record = record
	s.compact(e)
	if len(pending) > 0 {
		e.writer.schedule(e.record.Clone())
	}
}

// compact folds the oldest messages once the record outgrows
// maxRecent+slack. Must be called with e.mu held.
func (s *Store) compact(e *entry) {
	if len(e.record.Messages) <= s.maxRecent+s.slack {
		return
	}
	n := len(e.record.Messages) - s.maxRecent
	e.record.Summary = Fold(e.record.Summary, e.record.Messages[:n])
	e.record.Messages = append([]Message(nil), e.record.Messages[n:]...)
	s.logger.Debug("history folded",
		"key", e.key.String(), "folded", n, "summary_facts", len(e.record.Summary.Facts))
}

func (s *Store) save(key Key, snapshot *Record) {
	if s.storage == nil {
		return
	}
	if err := s.storage.SaveRecord(context.Background(), snapshot); err != nil {
		s.reportPersistError(key, fmt.Errorf("%w: save %s: %v", ErrPersistence, key, err))
	}
}

func (s *Store) reportPersistError(key Key, err error) {
	s.logger.Warn("history persistence failure", "key", key.String(), "error", err)
	if s.onPersistError != nil {
		s.onPersistError(key, err)
	}
}
