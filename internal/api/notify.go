package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/pdfquiz/internal/domain"
	"github.com/victornm/pdfquiz/internal/event"
)

const (
	maxConcurrent = 100
	sendBuffer    = 16
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	SessionStarted struct {
		Settings domain.Settings `json:"settings"`
		Total    int             `json:"total"`
	}

	SessionAdvanced struct {
		Index int `json:"index"`
		Total int `json:"total"`
	}

	SessionFinished struct {
		Mode  domain.Mode `json:"mode"`
		Score int         `json:"score"`
		Total int         `json:"total"`
	}

	QuizExtracted struct {
		Name          string `json:"name"`
		QuestionCount int    `json:"questionCount"`
	}

	LibraryChanged struct {
		Count int `json:"count"`
	}
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Notifier fans domain events out to connected WebSocket clients. A client
// that cannot keep up is disconnected.
type Notifier struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewNotifier() *Notifier {
	return &Notifier{
		clients: make(map[*client]struct{}),
	}
}

// Serve upgrades the request and streams notifications until the client leaves.
func (n *Notifier) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(c.Request.Context(), "notify: upgrade failed", "error", err)
		return
	}

	cl := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	n.register(cl)

	go cl.writePump()
	cl.readPump()

	n.unregister(cl)
}

// Notify is an event.Handler publishing e to every client.
func (n *Notifier) Notify(ctx context.Context, e event.Event) error {
	b, err := json.Marshal(Notification{
		Event: e.Name(),
		Data:  notificationData(e),
	})
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %v", e.Name(), err)
	}

	n.mu.RLock()
	clients := make([]*client, 0, len(n.clients))
	for cl := range n.clients {
		clients = append(clients, cl)
	}
	n.mu.RUnlock()

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, cl := range clients {
		eg.Go(func() error {
			if cl.trySend(b) {
				return nil
			}
			n.unregister(cl)
			return fmt.Errorf("notify: client %s too slow, disconnected", cl.conn.RemoteAddr())
		})
	}

	return eg.Wait()
}

// Clients returns the number of connected clients.
func (n *Notifier) Clients() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.clients)
}

// Close disconnects every client.
func (n *Notifier) Close() {
	n.mu.Lock()
	clients := n.clients
	n.clients = make(map[*client]struct{})
	n.mu.Unlock()

	for cl := range clients {
		cl.close()
	}
}

func (n *Notifier) register(cl *client) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.clients[cl] = struct{}{}
}

func (n *Notifier) unregister(cl *client) {
	n.mu.Lock()
	delete(n.clients, cl)
	n.mu.Unlock()

	cl.close()
}

// trySend queues msg without blocking. It reports false when the buffer is
// full; a closed client drops msg silently.
func (cl *client) trySend(msg []byte) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return true
	}

	select {
	case cl.send <- msg:
		return true
	default:
		return false
	}
}

func (cl *client) close() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if !cl.closed {
		cl.closed = true
		close(cl.send)
	}
}

// readPump discards client messages and returns once the connection drops.
func (cl *client) readPump() {
	defer cl.conn.Close()

	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("notify: read failed", "error", err)
			}
			return
		}
	}
}

func (cl *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func notificationData(e event.Event) any {
	switch e := e.(type) {
	case domain.EventQuizExtracted:
		return QuizExtracted{Name: e.QuizName, QuestionCount: e.QuestionCount}
	case domain.EventSessionStarted:
		return SessionStarted{Settings: e.Settings, Total: e.Total}
	case domain.EventSessionAdvanced:
		return SessionAdvanced{Index: e.Index, Total: e.Total}
	case domain.EventSessionFinished:
		return SessionFinished{Mode: e.Mode, Score: e.Result.Score, Total: e.Result.Total}
	case domain.EventLibraryChanged:
		return LibraryChanged{Count: e.Count}
	default:
		return e
	}
}
