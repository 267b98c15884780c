package ledger

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kmorozov/tabreaper/internal/store"
	"github.com/kmorozov/tabreaper/pkg/models"
)

// Ledger is the durable mapping from tab handle to last-access instant
// (epoch ms). Writes land in memory synchronously; the full document is
// flushed to the store by a background goroutine, so a burst of activity
// events costs at most one write per flush cycle.
type Ledger struct {
	mu      sync.Mutex
	entries map[models.TabID]int64

	doc  store.Document
	kick chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// New creates a ledger backed by doc and starts its flush goroutine.
func New(doc store.Document) *Ledger {
	l := &Ledger{
		entries: make(map[models.TabID]int64),
		doc:     doc,
		kick:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	go l.flushLoop()

	return l
}

// RecordAccess stamps the tab with now and schedules a flush.
func (l *Ledger) RecordAccess(id models.TabID, now time.Time) {
	l.mu.Lock()
	l.entries[id] = now.UnixMilli()
	l.mu.Unlock()

	select {
	case l.kick <- struct{}{}:
	default:
	}
}

// Get returns the recorded last-access instant for a tab.
func (l *Ledger) Get(id models.TabID) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ms, ok := l.entries[id]
	return ms, ok
}

// Len returns the number of tabs the ledger currently tracks.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot returns a copy of the current mapping.
func (l *Ledger) Snapshot() map[models.TabID]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := make(map[models.TabID]int64, len(l.entries))
	for id, ms := range l.entries {
		snap[id] = ms
	}
	return snap
}

// Restore loads the persisted document and merges it into memory, keeping the
// newer instant wherever both sides know a tab. An empty store is not an
// error; a cold start simply begins with whatever is already in memory.
func (l *Ledger) Restore() error {
	persisted := make(map[models.TabID]int64)
	if err := l.doc.Load(&persisted); err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load ledger: %w", err)
	}

	l.Merge(persisted)
	return nil
}

// Merge unions other into the ledger, newer instant wins per tab.
func (l *Ledger) Merge(other map[models.TabID]int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, ms := range other {
		if cur, ok := l.entries[id]; !ok || ms > cur {
			l.entries[id] = ms
		}
	}
}

// Prune drops entries for tabs absent from live and schedules a flush.
// Callers should only pass an enumeration that actually succeeded.
func (l *Ledger) Prune(live map[models.TabID]bool) int {
	l.mu.Lock()
	pruned := 0
	for id := range l.entries {
		if !live[id] {
			delete(l.entries, id)
			pruned++
		}
	}
	l.mu.Unlock()

	if pruned > 0 {
		select {
		case l.kick <- struct{}{}:
		default:
		}
	}
	return pruned
}

// Flush synchronously writes the current mapping to the store.
func (l *Ledger) Flush() error {
	if err := l.doc.Save(l.Snapshot()); err != nil {
		return fmt.Errorf("flush ledger: %w", err)
	}
	return nil
}

// Close stops the flush goroutine and performs a final flush.
func (l *Ledger) Close() error {
	l.once.Do(func() { close(l.stop) })
	<-l.done
	return l.Flush()
}

// flushLoop persists the ledger whenever a write kicks it. A failed flush is
// logged and dropped; the next access event rewrites the full document.
func (l *Ledger) flushLoop() {
	defer close(l.done)

	for {
		select {
		case <-l.stop:
			return
		case <-l.kick:
			if err := l.Flush(); err != nil {
				log.Printf("⚠️ %v", err)
			}
		}
	}
}
