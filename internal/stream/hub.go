// Package stream broadcasts tick diffs to WebSocket viewers and accepts
// impulse commands back from them. It is the only transport surface of the
// service; the physics core never sees a connection.
package stream

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"threebody/sim/internal/logging"
)

// DefaultMaxImpulse caps the magnitude of a viewer-supplied impulse.
const DefaultMaxImpulse = 100.0

// Command is the single inbound message type viewers may send.
type Command struct {
	Type    string     `json:"type"`
	Body    string     `json:"body,omitempty"`
	Impulse [3]float64 `json:"impulse,omitempty"`
}

// CommandHandler receives validated viewer commands.
type CommandHandler func(Command) error

// Options configures the hub.
type Options struct {
	Logger         *logging.Logger
	AllowedOrigins []string
	MaxClients     int
	PingInterval   time.Duration
	MaxImpulse     float64
	Handler        CommandHandler
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Hub fans tick payloads out to every connected viewer.
type Hub struct {
	logger       *logging.Logger
	upgrader     websocket.Upgrader
	maxClients   int
	pingInterval time.Duration
	maxImpulse   float64
	handler      CommandHandler

	mu         sync.Mutex
	clients    map[*client]bool
	broadcasts atomic.Int64
}

// NewHub constructs a hub ready to accept connections.
func NewHub(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	pingInterval := opts.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	maxImpulse := opts.MaxImpulse
	if maxImpulse <= 0 {
		maxImpulse = DefaultMaxImpulse
	}
	hub := &Hub{
		logger:       logger,
		maxClients:   opts.MaxClients,
		pingInterval: pingInterval,
		maxImpulse:   maxImpulse,
		handler:      opts.Handler,
		clients:      make(map[*client]bool),
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin: originChecker(opts.AllowedOrigins),
	}
	return hub
}

func originChecker(allowed []string) func(*http.Request) bool {
	//1.- An empty allowlist keeps the viewer endpoint open, matching local use.
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS upgrades the request and runs the client read/write pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}
	h.mu.Lock()
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		h.logger.Warn("viewer rejected: client limit reached", logging.String("remote_addr", r.RemoteAddr))
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	viewer := &client{conn: conn, send: make(chan []byte, 256), id: r.RemoteAddr}
	h.mu.Lock()
	h.clients[viewer] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("viewer connected", logging.String("client", viewer.id), logging.Int("clients", count))

	go h.readPump(viewer)
	go h.writePump(viewer)
}

func (h *Hub) readPump(viewer *client) {
	defer h.drop(viewer)
	for {
		_, payload, err := viewer.conn.ReadMessage()
		if err != nil {
			return
		}
		//1.- Every inbound message must be a valid command; bad ones are logged and dropped.
		command, err := h.parseCommand(payload)
		if err != nil {
			h.logger.Warn("rejected viewer command", logging.String("client", viewer.id), logging.Error(err))
			continue
		}
		if h.handler == nil {
			continue
		}
		if err := h.handler(command); err != nil {
			h.logger.Warn("viewer command failed", logging.String("client", viewer.id), logging.Error(err))
		}
	}
}

func (h *Hub) writePump(viewer *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.drop(viewer)
	}()
	for {
		select {
		case payload, ok := <-viewer.send:
			if !ok {
				_ = viewer.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := viewer.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			if err := viewer.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(viewer *client) {
	h.mu.Lock()
	if _, present := h.clients[viewer]; present {
		delete(h.clients, viewer)
		close(viewer.send)
	}
	h.mu.Unlock()
	_ = viewer.conn.Close()
}

// parseCommand validates the payload before it can reach the world.
func (h *Hub) parseCommand(payload []byte) (Command, error) {
	var command Command
	if err := json.Unmarshal(payload, &command); err != nil {
		return Command{}, fmt.Errorf("malformed command: %w", err)
	}
	if command.Type != "impulse" {
		return Command{}, fmt.Errorf("unsupported command type %q", command.Type)
	}
	if command.Body == "" {
		return Command{}, fmt.Errorf("impulse command missing body id")
	}
	var magnitudeSq float64
	for _, component := range command.Impulse {
		if math.IsNaN(component) || math.IsInf(component, 0) {
			return Command{}, fmt.Errorf("impulse component is not finite")
		}
		magnitudeSq += component * component
	}
	if magnitudeSq > h.maxImpulse*h.maxImpulse {
		return Command{}, fmt.Errorf("impulse magnitude %.2f exceeds limit %.2f", math.Sqrt(magnitudeSq), h.maxImpulse)
	}
	return command, nil
}

// Publish broadcasts the payload to every connected viewer, dropping viewers
// whose send buffer is full rather than stalling the tick path.
func (h *Hub) Publish(payload []byte) {
	if h == nil || len(payload) == 0 {
		return
	}
	h.broadcasts.Add(1)
	h.mu.Lock()
	for viewer := range h.clients {
		select {
		case viewer.send <- payload:
		default:
			delete(h.clients, viewer)
			close(viewer.send)
		}
	}
	h.mu.Unlock()
}

// ClientCount reports the number of connected viewers.
func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcasts reports how many payloads have been published.
func (h *Hub) Broadcasts() int64 {
	if h == nil {
		return 0
	}
	return h.broadcasts.Load()
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	for viewer := range h.clients {
		delete(h.clients, viewer)
		close(viewer.send)
		_ = viewer.conn.Close()
	}
	h.mu.Unlock()
}
