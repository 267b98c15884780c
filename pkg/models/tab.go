package models

// TabID is an opaque integer handle for an open tab. Handles are minted by
// the host adapter and are stable for the life of the tab; nothing above the
// adapter may interpret them.
type TabID int64

// Tab is a snapshot of an open tab's metadata as reported by the browser host.
type Tab struct {
	ID       TabID  `json:"id"`
	WindowID int    `json:"windowId"`
	TargetID string `json:"targetId,omitempty"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	Pinned   bool   `json:"pinned"`

	// LastAccessed is the host-provided fallback instant (epoch ms), nil when
	// the host cannot report one.
	LastAccessed *int64 `json:"lastAccessed,omitempty"`
}
