package fanout

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ndrandal/perpflow/internal/auth"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// controlMessage is a client → server subscription control frame.
type controlMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols,omitempty"`
}

// Handler builds the `/ws?symbols=X,Y,...` upgrade handler (spec.md
// §6). Adapted from the teacher's session.Handler: format negotiation
// is dropped (the wire format here is always JSON), and subprotocol
// based auth is added ahead of the upgrade per spec.md §6.
func Handler(mgr *Manager, authCfg auth.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offered := websocket.Subprotocols(r)
		id := authCfg.AuthenticateSubprotocol(offered, r.RemoteAddr)
		if !id.Authenticated {
			id = authCfg.AuthenticateHTTP(r)
		}
		if !id.Authenticated {
			http.Error(w, `{"ok":false,"error":"unauthorized","message":"missing or invalid credentials"}`, http.StatusUnauthorized)
			return
		}

		responseHeader := http.Header{}
		if chosen := chosenSubprotocol(offered); chosen != "" {
			responseHeader.Set("Sec-WebSocket-Protocol", chosen)
		}

		conn, err := upgrader.Upgrade(w, r, responseHeader)
		if err != nil {
			log.Printf("fanout: websocket upgrade error: %v", err)
			return
		}

		client := NewClient(conn, mgr.bufferSize, id.ReadOnly)
		mgr.Register(client)

		if symbols := r.URL.Query().Get("symbols"); symbols != "" {
			subscribeFromQuery(client, symbols)
		}

		go writePump(client)
		go readPump(client, mgr)
	}
}

func chosenSubprotocol(offered []string) string {
	for _, p := range offered {
		if strings.HasPrefix(p, "bearer.") || strings.HasPrefix(p, "viewer.") || p == "proxy-auth" {
			return p
		}
	}
	return ""
}

func subscribeFromQuery(c *Client, symbols string) {
	parts := strings.Split(symbols, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) == 1 && parts[0] == "*" {
		c.SubscribeAll()
		return
	}
	c.Subscribe(parts)
}

func readPump(c *Client, mgr *Manager) {
	defer mgr.Unregister(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("fanout: client %d read error: %v", c.ID, err)
			}
			return
		}

		var ctrl controlMessage
		if err := json.Unmarshal(message, &ctrl); err != nil {
			log.Printf("fanout: client %d invalid control message: %v", c.ID, err)
			continue
		}
		handleControl(c, &ctrl)
	}
}

func handleControl(c *Client, ctrl *controlMessage) {
	switch ctrl.Action {
	case "subscribe":
		if len(ctrl.Symbols) == 1 && ctrl.Symbols[0] == "*" {
			c.SubscribeAll()
		} else {
			c.Subscribe(ctrl.Symbols)
		}
	case "unsubscribe":
		c.Unsubscribe(ctrl.Symbols)
	default:
		log.Printf("fanout: client %d unknown action %q", c.ID, ctrl.Action)
	}
}

func writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.SendCh():
			if !ok {
				return
			}
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.Done():
			return
		}
	}
}
