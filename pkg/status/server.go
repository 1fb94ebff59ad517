// Package status provides the operator status stream: a small HTTP server
// broadcasting probe and calibration events to websocket clients, with a
// host info endpoint and a Prometheus metrics endpoint.
package status

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"zprobe-go-migration/pkg/log"
	"zprobe-go-migration/pkg/metrics"
)

// Event is one broadcast message.
type Event struct {
	Event string      `json:"event"`
	Time  float64     `json:"time"`
	Data  interface{} `json:"data,omitempty"`
}

// Server is the status stream server. Its Publish method satisfies the
// calibration reporter contract, so it can be plugged straight into a
// Strategy.
type Server struct {
	addr       string
	registry   *metrics.Registry
	httpServer *http.Server
	upgrader   websocket.Upgrader

	clients  map[int64]*client
	clientMu sync.RWMutex
	nextID   int64

	running   atomic.Bool
	startTime time.Time
	logger    *log.Logger
}

// New creates a status server listening on addr. A nil registry disables
// the metrics endpoint.
func New(addr string, registry *metrics.Registry) *Server {
	s := &Server{
		addr:      addr,
		registry:  registry,
		clients:   make(map[int64]*client),
		startTime: time.Now(),
		logger:    log.New("status"),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

// Start begins serving. Non-blocking; errors from the listener are logged.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/websocket", s.handleWebSocket)
	mux.HandleFunc("/info", s.handleInfo)
	if s.registry != nil {
		mux.HandleFunc("/metrics", s.handleMetrics)
	}

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}
	s.running.Store(true)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("listener failed: %v", err)
		}
	}()
	s.logger.Infof("status server on %s", s.addr)
	return nil
}

// Stop shuts the server down and disconnects every client.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}

	s.clientMu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.clients = make(map[int64]*client)
	s.clientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Publish broadcasts an event to every connected client. Satisfies the
// calibration Reporter interface.
func (s *Server) Publish(event string, payload interface{}) {
	msg := Event{
		Event: event,
		Time:  float64(time.Since(s.startTime).Milliseconds()) / 1000.0,
		Data:  payload,
	}

	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	for _, c := range s.clients {
		c.send(msg)
	}
}

// ClientCount returns the number of connected websocket clients.
func (s *Server) ClientCount() int {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	id := atomic.AddInt64(&s.nextID, 1)
	c := &client{
		id:     id,
		conn:   conn,
		logger: s.logger,
		sendCh: make(chan Event, 64),
		done:   make(chan struct{}),
	}

	s.clientMu.Lock()
	s.clients[id] = c
	s.clientMu.Unlock()
	s.logger.Infof("client %d connected", id)

	go c.writePump()
	c.readPump() // blocks until the connection closes

	s.clientMu.Lock()
	delete(s.clients, id)
	s.clientMu.Unlock()
	s.logger.Infof("client %d disconnected", id)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(hostInfo(s.startTime))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.Write([]byte(s.registry.Gather()))
}

// client is one websocket connection with its own write pump.
type client struct {
	id     int64
	conn   *websocket.Conn
	logger *log.Logger
	sendCh chan Event
	done   chan struct{}
	once   sync.Once
}

func (c *client) send(msg Event) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		// Slow consumer, drop rather than stall the calibration.
		c.logger.Warnf("dropping event for client %d", c.id)
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readPump consumes inbound frames. The stream is one-way; reads exist
// only to detect disconnect and answer pings.
func (c *client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(4 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
