package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmorozov/tabreaper/internal/chrome"
)

// fakeBrowser serves /json/version plus a CDP websocket that echoes every
// frame back with a prefix, so a test can tell its message crossed the
// browser side of the proxy.
type fakeBrowser struct {
	server *httptest.Server
}

func newFakeBrowser(t *testing.T) *fakeBrowser {
	t.Helper()

	f := &fakeBrowser{}
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/devtools/browser"
		json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "Chrome/124.0",
			"webSocketDebuggerUrl": wsURL,
		})
	})
	mux.HandleFunc("/devtools/browser", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, append([]byte("browser:"), msg...)); err != nil {
				return
			}
		}
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func TestDebugProxyRoundTrip(t *testing.T) {
	t.Parallel()

	browser := newFakeBrowser(t)
	s := NewServer(chrome.NewClient(browser.server.URL))

	front := httptest.NewServer(http.HandlerFunc(s.HandleDebugConnection))
	t.Cleanup(front.Close)

	wsURL := "ws" + strings.TrimPrefix(front.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := `{"id":1,"method":"Target.getTargets"}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "browser:"+msg, string(reply))
}

func TestDebugProxyBrowserUnreachable(t *testing.T) {
	t.Parallel()

	s := NewServer(chrome.NewClient("http://localhost:1")) // nothing listens here
	front := httptest.NewServer(http.HandlerFunc(s.HandleDebugConnection))
	t.Cleanup(front.Close)

	resp, err := http.Get(front.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
