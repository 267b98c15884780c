package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmorozov/tabreaper/internal/host"
)

// fakeDevTools mimics the browser's HTTP debugging endpoints plus the
// browser-level CDP websocket.
type fakeDevTools struct {
	mu      sync.Mutex
	targets []target
	closed  []string
	server  *httptest.Server
	wsConns chan *websocket.Conn
}

func newFakeDevTools(t *testing.T, targets ...target) *fakeDevTools {
	t.Helper()

	f := &fakeDevTools{
		targets: targets,
		wsConns: make(chan *websocket.Conn, 1),
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/list", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		json.NewEncoder(w).Encode(f.targets)
	})
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/devtools/browser"
		json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "Chrome/124.0",
			"webSocketDebuggerUrl": wsURL,
		})
	})
	mux.HandleFunc("/json/close/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/json/close/")
		f.mu.Lock()
		f.closed = append(f.closed, id)
		f.mu.Unlock()
		fmt.Fprint(w, "Target is closing")
	})
	mux.HandleFunc("/devtools/browser", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Swallow the Target.setDiscoverTargets command.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		f.wsConns <- conn
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeDevTools) closedTargets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

func TestTabHandleIsStable(t *testing.T) {
	t.Parallel()

	a := TabHandle("AAA-111")
	b := TabHandle("AAA-111")
	c := TabHandle("BBB-222")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.GreaterOrEqual(t, int64(a), int64(0))
}

func TestListTabsFiltersPages(t *testing.T) {
	t.Parallel()

	f := newFakeDevTools(t,
		target{ID: "page-1", Type: "page", Title: "Example", URL: "https://example.com"},
		target{ID: "worker-1", Type: "service_worker", URL: "https://example.com/sw.js"},
		target{ID: "page-2", Type: "page", Title: "Other", URL: "https://other.com"},
	)

	c := NewClient(f.server.URL)
	tabs, err := c.ListTabs(context.Background())
	require.NoError(t, err)

	require.Len(t, tabs, 2)
	assert.Equal(t, "https://example.com", tabs[0].URL)
	assert.Equal(t, TabHandle("page-1"), tabs[0].ID)
	assert.Equal(t, "page-2", tabs[1].TargetID)
}

func TestCloseTabResolvesHandle(t *testing.T) {
	t.Parallel()

	f := newFakeDevTools(t, target{ID: "page-1", Type: "page", URL: "https://example.com"})

	c := NewClient(f.server.URL)
	tabs, err := c.ListTabs(context.Background())
	require.NoError(t, err)
	require.Len(t, tabs, 1)

	require.NoError(t, c.CloseTab(context.Background(), tabs[0].ID))
	assert.Equal(t, []string{"page-1"}, f.closedTargets())

	// The handle was forgotten along with the tab.
	assert.Error(t, c.CloseTab(context.Background(), tabs[0].ID))
}

func TestCloseTabUnknownHandle(t *testing.T) {
	t.Parallel()

	f := newFakeDevTools(t)
	c := NewClient(f.server.URL)

	assert.Error(t, c.CloseTab(context.Background(), 12345))
}

func TestActiveTabReturnsFrontmost(t *testing.T) {
	t.Parallel()

	f := newFakeDevTools(t,
		target{ID: "front", Type: "page", URL: "https://front.example"},
		target{ID: "back", Type: "page", URL: "https://back.example"},
	)

	c := NewClient(f.server.URL)
	tab, err := c.ActiveTab(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "front", tab.TargetID)
}

func TestPing(t *testing.T) {
	t.Parallel()

	f := newFakeDevTools(t)
	c := NewClient(f.server.URL)
	require.NoError(t, c.Ping(context.Background()))

	down := NewClient("http://localhost:1") // nothing listens here
	assert.Error(t, down.Ping(context.Background()))
}

func TestSubscribeTranslatesTargetEvents(t *testing.T) {
	t.Parallel()

	f := newFakeDevTools(t)
	c := NewClient(f.server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := c.Subscribe(ctx)
	require.NoError(t, err)

	var conn *websocket.Conn
	select {
	case conn = <-f.wsConns:
	case <-time.After(time.Second):
		t.Fatal("client never connected")
	}

	send := func(method, targetID, targetType string) {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"method": method,
			"params": map[string]any{
				"targetInfo": map[string]any{
					"targetId": targetID,
					"type":     targetType,
					"url":      "https://example.com",
				},
			},
		}))
	}

	send("Target.targetCreated", "page-1", "page")
	send("Target.targetCreated", "worker-1", "service_worker") // filtered
	send("Target.targetInfoChanged", "page-1", "page")

	ev := <-events
	assert.Equal(t, host.EventActivated, ev.Kind)
	assert.Equal(t, TabHandle("page-1"), ev.TabID)

	ev = <-events
	assert.Equal(t, host.EventLoadComplete, ev.Kind)
	assert.Equal(t, TabHandle("page-1"), ev.TabID)

	// Cancelling the context ends the feed.
	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
