// Package hosttest provides an in-memory TabHost for tests.
package hosttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kmorozov/tabreaper/internal/host"
	"github.com/kmorozov/tabreaper/pkg/models"
)

// Host is a fake browser: a mutable tab set plus a manual event feed.
// CloseTab removes the tab from the set, so repeated sweeps see closed tabs
// vanish from enumeration the way a real browser behaves.
type Host struct {
	mu      sync.Mutex
	tabs    map[models.TabID]models.Tab
	active  map[int]models.TabID // windowID -> active tab
	closed  []models.TabID
	events  chan host.Event
	subs    int
	listErr error
}

// New creates a fake host seeded with tabs.
func New(tabs ...models.Tab) *Host {
	h := &Host{
		tabs:   make(map[models.TabID]models.Tab),
		active: make(map[int]models.TabID),
		events: make(chan host.Event, 16),
	}
	for _, tab := range tabs {
		h.tabs[tab.ID] = tab
	}
	return h
}

func (h *Host) ListTabs(ctx context.Context) ([]models.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listErr != nil {
		return nil, h.listErr
	}

	tabs := make([]models.Tab, 0, len(h.tabs))
	for _, tab := range h.tabs {
		tabs = append(tabs, tab)
	}
	return tabs, nil
}

func (h *Host) CloseTab(ctx context.Context, id models.TabID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.tabs[id]; !ok {
		return fmt.Errorf("tab %d not found", id)
	}
	delete(h.tabs, id)
	h.closed = append(h.closed, id)
	return nil
}

func (h *Host) ActiveTab(ctx context.Context, windowID int) (models.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id, ok := h.active[windowID]
	if !ok {
		return models.Tab{}, fmt.Errorf("window %d has no active tab", windowID)
	}
	tab, ok := h.tabs[id]
	if !ok {
		return models.Tab{}, fmt.Errorf("active tab %d of window %d is gone", id, windowID)
	}
	return tab, nil
}

func (h *Host) Subscribe(ctx context.Context) (<-chan host.Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs++
	return h.events, nil
}

// Emit feeds an activity event to the current subscriber.
func (h *Host) Emit(ev host.Event) {
	h.mu.Lock()
	ch := h.events
	h.mu.Unlock()
	ch <- ev
}

// DropFeed tears down the current event feed and installs a fresh one for the
// next Subscribe, the way a browser restart kills the websocket without
// stopping the daemon.
func (h *Host) DropFeed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.events)
	h.events = make(chan host.Event, 16)
}

// Subscriptions reports how many times Subscribe has been called.
func (h *Host) Subscriptions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subs
}

// SetActive marks a tab as the active tab of a window.
func (h *Host) SetActive(windowID int, id models.TabID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active[windowID] = id
}

// AddTab inserts or replaces a tab.
func (h *Host) AddTab(tab models.Tab) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tabs[tab.ID] = tab
}

// Closed returns the ids passed to CloseTab, in order.
func (h *Host) Closed() []models.TabID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.TabID(nil), h.closed...)
}

// FailListWith makes ListTabs return err; pass nil to heal.
func (h *Host) FailListWith(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listErr = err
}
