// Package observer forwards browser activity signals into the access-time
// ledger.
package observer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kmorozov/tabreaper/internal/host"
	"github.com/kmorozov/tabreaper/internal/ledger"
)

const (
	defaultRetryBase = time.Second
	defaultRetryMax  = 30 * time.Second
)

// Observer consumes the host's activity subscription and stamps the affected
// tab in the ledger. Events are applied in arrival order, so the newest
// activity for a tab always wins.
type Observer struct {
	host   host.TabHost
	ledger *ledger.Ledger
	now    func() time.Time

	retryBase time.Duration
	retryMax  time.Duration
}

// New creates an observer.
func New(h host.TabHost, l *ledger.Ledger) *Observer {
	return &Observer{
		host:      h,
		ledger:    l,
		now:       time.Now,
		retryBase: defaultRetryBase,
		retryMax:  defaultRetryMax,
	}
}

// Run keeps a host subscription alive until ctx is cancelled. A dropped feed
// (browser restart, websocket error) is not fatal: the observer resubscribes
// with exponential backoff, otherwise sweeps would judge tabs against
// timestamps that stopped updating.
func (o *Observer) Run(ctx context.Context) error {
	delay := o.retryBase
	for {
		err := o.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Printf("⚠️ Activity feed lost: %v (reattaching in %s)", err, delay)
		} else {
			// The feed was live before it closed, so start the backoff over.
			delay = o.retryBase
			log.Printf("⚠️ Activity feed closed by host, reattaching in %s", delay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > o.retryMax {
			delay = o.retryMax
		}
	}
}

// consume runs a single subscription until ctx is cancelled or the host ends
// the feed. Individual event failures are logged and skipped.
func (o *Observer) consume(ctx context.Context) error {
	events, err := o.host.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to host events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.handle(ctx, ev)
		}
	}
}

func (o *Observer) handle(ctx context.Context, ev host.Event) {
	switch ev.Kind {
	case host.EventActivated, host.EventLoadComplete:
		o.ledger.RecordAccess(ev.TabID, o.now())

	case host.EventWindowFocused:
		// Resolve which tab the newly focused window is showing.
		tab, err := o.host.ActiveTab(ctx, ev.WindowID)
		if err != nil {
			log.Printf("⚠️ Failed to resolve active tab of window %d: %v", ev.WindowID, err)
			return
		}
		o.ledger.RecordAccess(tab.ID, o.now())
	}
}
