// Package host defines the seam between the sweep engine and the browser it
// manages. The engine only ever reads tab metadata and requests closure;
// everything else about the browser is the host's business.
package host

import (
	"context"

	"github.com/kmorozov/tabreaper/pkg/models"
)

// EventKind identifies the activity signals a host can emit.
type EventKind string

const (
	// EventActivated fires when the user switches to a tab.
	EventActivated EventKind = "activated"
	// EventLoadComplete fires when a tab finishes a navigation.
	EventLoadComplete EventKind = "load_complete"
	// EventWindowFocused fires when a different window gains focus; the
	// affected tab is resolved via ActiveTab.
	EventWindowFocused EventKind = "window_focused"
)

// Event is a single activity signal.
type Event struct {
	Kind     EventKind
	TabID    models.TabID // set for activated / load_complete
	WindowID int          // set for window_focused
}

// TabHost is the browser-side collaborator.
type TabHost interface {
	// ListTabs enumerates all currently open tabs.
	ListTabs(ctx context.Context) ([]models.Tab, error)

	// CloseTab asks the browser to close a tab. Closing a tab that is
	// already gone is an error the caller is expected to tolerate.
	CloseTab(ctx context.Context, id models.TabID) error

	// ActiveTab resolves the active tab of a window. Hosts that cannot
	// query per-window focus may ignore windowID and answer best-effort
	// with their frontmost tab.
	ActiveTab(ctx context.Context, windowID int) (models.Tab, error)

	// Subscribe starts delivering activity events until ctx is cancelled.
	// The channel is closed when the subscription ends.
	Subscribe(ctx context.Context) (<-chan Event, error)
}
