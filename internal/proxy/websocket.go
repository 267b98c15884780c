// Package proxy bridges UI devtools clients to the attached browser's CDP
// websocket so tab state can be inspected without a second debugger port.
package proxy

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kmorozov/tabreaper/internal/chrome"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server proxies debug connections to the browser the daemon is attached to.
type Server struct {
	browser *chrome.Client
}

// NewServer creates a proxy in front of the attached browser.
func NewServer(browser *chrome.Client) *Server {
	return &Server{browser: browser}
}

// HandleDebugConnection upgrades the request and pipes frames both ways
// until either side closes.
func (s *Server) HandleDebugConnection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	browserURL, err := s.browser.BrowserWSURL(ctx)
	cancel()
	if err != nil {
		http.Error(w, "Browser is not reachable", http.StatusBadGateway)
		return
	}

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade debug connection: %v", err)
		return
	}
	defer clientConn.Close()

	dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	browserConn, _, err := websocket.DefaultDialer.DialContext(dialCtx, browserURL, nil)
	if err != nil {
		log.Printf("❌ Failed to connect to browser: %v", err)
		clientConn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("Error connecting: %v", err)))
		return
	}
	defer browserConn.Close()

	log.Printf("✅ Debug client connected")

	errChan := make(chan error, 2)

	go func() {
		errChan <- s.proxyMessages(clientConn, browserConn, "client→browser")
	}()
	go func() {
		errChan <- s.proxyMessages(browserConn, clientConn, "browser→client")
	}()

	// First direction to fail tears the pair down.
	err = <-errChan
	if err != nil && err != io.EOF {
		log.Printf("Debug proxy error: %v", err)
	}

	log.Printf("Debug client disconnected")
}

func (s *Server) proxyMessages(src, dst *websocket.Conn, direction string) error {
	for {
		messageType, message, err := src.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (%s): %v", direction, err)
			}
			return err
		}

		if err := dst.WriteMessage(messageType, message); err != nil {
			log.Printf("Failed to write message (%s): %v", direction, err)
			return err
		}
	}
}
