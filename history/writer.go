package history

import (
	"context"
	"sync"
)

// writer serializes persistence for one key. At most one save is in flight;
// a snapshot scheduled while a save runs replaces any older pending
// snapshot, so the last scheduled snapshot always wins.
type writer struct {
	mu      sync.Mutex
	pending *Record
	running bool
	done    chan struct{}
	save    func(*Record)
}

func newWriter(save func(*Record)) *writer {
	return &writer{save: save}
}

func (w *writer) schedule(snapshot *Record) {
	w.mu.Lock()
	w.pending = snapshot
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.run()
}

func (w *writer) run() {
	for {
		w.mu.Lock()
		snapshot := w.pending
		w.pending = nil
		if snapshot == nil {
			w.running = false
			close(w.done)
			w.mu.Unlock()
			return
		}
		w.mu.Unlock()

		w.save(snapshot)
	}
}

// wait blocks until no save is pending or in flight.
func (w *writer) wait(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	done := w.done
	w.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// discard drops the pending snapshot and waits for the in-flight save.
func (w *writer) discard(ctx context.Context) error {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()
	return w.wait(ctx)
}
