package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	domainauth "github.com/tracenation/tracenation-api/internal/domain/auth"
	"github.com/tracenation/tracenation-api/internal/observability/metrics"
	"github.com/tracenation/tracenation-api/internal/service"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = (wsPongWait * 9) / 10
	wsMaxMessageSize = 4 << 10
	wsSendBuffer     = 32
)

// Event stream message types.
const (
	eventTypeState    = "state"
	eventTypeDecision = "decision"
)

// eventMessage is one frame of the auth event stream.
type eventMessage struct {
	Type     string               `json:"type"`
	Reason   string               `json:"reason,omitempty"`
	State    *AuthStatus          `json:"state,omitempty"`
	Path     string               `json:"path,omitempty"`
	Decision *domainauth.Decision `json:"decision,omitempty"`
}

// EventsHandler streams AuthState changes of the request's session over a
// websocket. With ?path= naming a protected view, guard decisions for that
// view are streamed too, so an open page learns right away when it must
// leave (sign-out, role change).
// GET /auth/events?path=<view path>.
type EventsHandler struct {
	Upgrader websocket.Upgrader
	Views    *viewIndex
	Metrics  *metrics.AuthMetrics
	Logger   *slog.Logger
}

func (h *EventsHandler) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	store, ok := StoreFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "session_unavailable",
			Err:     errors.New("no session bound to request"),
		})
		return
	}

	var (
		path  string
		route viewRoute
		guard bool
	)
	if p := r.URL.Query().Get("path"); p != "" {
		path = safeRedirectPath(p)
		if h.Views != nil {
			route, guard = h.Views.lookup(path)
		}
	}

	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger().DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	c := newEventClient(conn, h.logger())
	go c.writePump()

	// Holding the client lock while subscribing keeps the initial frames
	// ahead of any change delivered by the store.
	c.mu.Lock()
	unsub := store.Subscribe(func(ch service.Change) {
		st := NewAuthStatus(ch.State)
		c.push(eventMessage{Type: eventTypeState, Reason: string(ch.Reason), State: &st})
	})
	initial := NewAuthStatus(store.Snapshot())
	c.pushLocked(eventMessage{Type: eventTypeState, State: &initial})

	var vg *service.ViewGuard
	if guard {
		vg = service.NewViewGuard(service.ViewGuardOptions{
			Store:   store,
			Guard:   domainauth.NewRouteGuard(route.Constraint),
			Path:    path,
			Metrics: h.Metrics,
			OnChange: func(d domainauth.Decision) {
				c.push(eventMessage{Type: eventTypeDecision, Path: path, Decision: &d})
			},
		})
		d := vg.Decision()
		c.pushLocked(eventMessage{Type: eventTypeDecision, Path: path, Decision: &d})
	}
	c.mu.Unlock()

	c.readPump()

	unsub()
	if vg != nil {
		vg.Close()
	}
	c.close()
}

// eventClient is one websocket connection. Frames are queued without
// blocking the store's event loop; a client that falls behind is dropped.
type eventClient struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu     sync.Mutex
	send   chan []byte
	done   chan struct{}
	closed bool
}

func newEventClient(conn *websocket.Conn, logger *slog.Logger) *eventClient {
	return &eventClient{
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, wsSendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *eventClient) push(msg eventMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushLocked(msg)
}

func (c *eventClient) pushLocked(msg eventMessage) {
	if c.closed {
		return
	}
	b, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("encode auth event", "error", err)
		return
	}
	select {
	case c.send <- b:
	default:
		c.logger.Warn("auth event client too slow, closing")
		c.closeLocked()
	}
}

func (c *eventClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *eventClient) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// readPump discards client frames and keeps the read deadline moving on pongs.
func (c *eventClient) readPump() {
	c.conn.SetReadLimit(wsMaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("auth event stream closed", "error", err)
			}
			return
		}
	}
}

func (c *eventClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
