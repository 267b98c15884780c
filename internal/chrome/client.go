// Package chrome implements the TabHost seam over the Chrome DevTools
// protocol: tab enumeration and closure via the browser's HTTP endpoints,
// activity events via the browser-level CDP websocket.
package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gorilla/websocket"

	"github.com/kmorozov/tabreaper/internal/host"
	"github.com/kmorozov/tabreaper/pkg/models"
)

// Client talks to one browser instance, e.g. http://localhost:9222.
type Client struct {
	baseURL string
	httpc   *http.Client

	mu      sync.RWMutex
	targets map[models.TabID]string // handle -> CDP target id
}

// NewClient creates a client for the browser at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
		targets: make(map[models.TabID]string),
	}
}

// TabHandle derives the stable integer handle for a CDP target id. The same
// target always hashes to the same handle, so ledger entries stay valid for
// the life of the tab.
func TabHandle(targetID string) models.TabID {
	return models.TabID(xxhash.Sum64String(targetID) >> 1)
}

// target is the shape served by /json/list and carried in Target.* events.
type target struct {
	ID                   string `json:"id"`
	TargetID             string `json:"targetId"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func (t target) id() string {
	if t.ID != "" {
		return t.ID
	}
	return t.TargetID
}

// ListTabs enumerates open page targets.
func (c *Client) ListTabs(ctx context.Context) ([]models.Tab, error) {
	var targets []target
	if err := c.getJSON(ctx, "/json/list", &targets); err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	tabs := make([]models.Tab, 0, len(targets))
	c.mu.Lock()
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		handle := TabHandle(t.id())
		c.targets[handle] = t.id()
		tabs = append(tabs, models.Tab{
			ID:       handle,
			TargetID: t.id(),
			URL:      t.URL,
			Title:    t.Title,
			// The DevTools endpoints do not expose pin state; hosts that
			// cannot report it leave every tab unpinned.
			Pinned: false,
		})
	}
	c.mu.Unlock()

	return tabs, nil
}

// CloseTab closes the page target behind a handle.
func (c *Client) CloseTab(ctx context.Context, id models.TabID) error {
	c.mu.RLock()
	targetID, ok := c.targets[id]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown tab handle %d", id)
	}

	resp, err := c.get(ctx, "/json/close/"+targetID)
	if err != nil {
		return fmt.Errorf("close target %s: %w", targetID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("close target %s: unexpected status %d", targetID, resp.StatusCode)
	}

	c.mu.Lock()
	delete(c.targets, id)
	c.mu.Unlock()
	return nil
}

// ActiveTab returns the frontmost page target. The DevTools list endpoint
// orders targets most-recently-focused first; plain CDP has no per-window
// focus query, so the windowID is ignored.
func (c *Client) ActiveTab(ctx context.Context, windowID int) (models.Tab, error) {
	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return models.Tab{}, err
	}
	if len(tabs) == 0 {
		return models.Tab{}, fmt.Errorf("no open tabs")
	}
	return tabs[0], nil
}

// Ping verifies the browser is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var version struct {
		Browser string `json:"Browser"`
	}
	if err := c.getJSON(ctx, "/json/version", &version); err != nil {
		return fmt.Errorf("browser not reachable at %s: %w", c.baseURL, err)
	}
	return nil
}

// BrowserWSURL returns the browser-level CDP websocket endpoint.
func (c *Client) BrowserWSURL(ctx context.Context) (string, error) {
	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := c.getJSON(ctx, "/json/version", &version); err != nil {
		return "", err
	}
	if version.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("browser did not report a websocket debugger url")
	}
	return version.WebSocketDebuggerURL, nil
}

// Subscribe opens the browser websocket, enables target discovery, and
// translates Target.* notifications into activity events. Target creation is
// reported as activation (a fresh tab is frontmost); target info changes fire
// on navigation and title updates and are reported as load completion.
func (c *Client) Subscribe(ctx context.Context) (<-chan host.Event, error) {
	wsURL, err := c.BrowserWSURL(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve browser websocket: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to browser websocket: %w", err)
	}

	discover := map[string]any{
		"id":     1,
		"method": "Target.setDiscoverTargets",
		"params": map[string]any{"discover": true},
	}
	if err := conn.WriteJSON(discover); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable target discovery: %w", err)
	}

	events := make(chan host.Event, 16)

	// Closing the connection on ctx cancellation unblocks the read loop.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	go c.pump(ctx, conn, events)

	return events, nil
}

func (c *Client) pump(ctx context.Context, conn *websocket.Conn, events chan<- host.Event) {
	defer close(events)
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️ Browser event stream closed: %v", err)
			}
			return
		}

		var msg struct {
			Method string `json:"method"`
			Params struct {
				TargetInfo target `json:"targetInfo"`
			} `json:"params"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Params.TargetInfo.Type != "page" {
			continue
		}

		handle := TabHandle(msg.Params.TargetInfo.id())

		var ev host.Event
		switch msg.Method {
		case "Target.targetCreated":
			ev = host.Event{Kind: host.EventActivated, TabID: handle}
		case "Target.targetInfoChanged":
			ev = host.Event{Kind: host.EventLoadComplete, TabID: handle}
		default:
			continue
		}

		c.mu.Lock()
		c.targets[handle] = msg.Params.TargetInfo.id()
		c.mu.Unlock()

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.httpc.Do(req)
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}
