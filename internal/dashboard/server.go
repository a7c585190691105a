// Package dashboard provides a real-time WebSocket server for watching sync
// sessions.
//
// The dashboard broadcasts session events (conversions, dropped echoes,
// failures, pending writes) to connected WebSocket clients and serves a JSON
// snapshot of every session's status.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/mdsync/mdsync/internal/engine"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSessions carries a snapshot of every session's status
	MessageTypeSessions MessageType = "sessions"

	// MessageTypeEvent carries a single session event
	MessageTypeEvent MessageType = "session_event"

	// MessageTypeStats carries running event counters
	MessageTypeStats MessageType = "stats"
)

// Message is one frame sent to dashboard clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatusProvider reports the status of every session.
type StatusProvider interface {
	StatusAll() []engine.Status
}

const (
	clientQueue  = 64
	writeTimeout = 5 * time.Second
)

// client is one connected browser. Frames are queued and written by the
// client's own goroutine so a slow reader never stalls the others.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close(code websocket.StatusCode, reason string) {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close(code, reason)
	})
}

// Server serves the dashboard endpoints and fans messages out to clients.
type Server struct {
	addr     string
	listener net.Listener
	http     *http.Server
	sessions StatusProvider
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds server configuration
type Config struct {
	// Host to bind (default: 127.0.0.1)
	Host string

	// Port to listen on (default: 7420, 0 picks a free port)
	Port int

	// Sessions supplies the /sessions snapshot (optional)
	Sessions StatusProvider

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:   "127.0.0.1",
		Port:   7420,
		Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
	}
}

// NewServer creates a dashboard server. It does not listen until Start.
func NewServer(config *Config) *Server {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Host == "" {
		config.Host = defaults.Host
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		sessions: config.Sessions,
		logger:   config.Logger,
		clients:  make(map[*client]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetSessions sets the status source used by /sessions and the welcome
// snapshot. It must be called before Start.
func (s *Server) SetSessions(sessions StatusProvider) {
	s.sessions = sessions
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/", s.handleRoot)

	s.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on http://%s", ln.Addr())
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()
	return nil
}

// Stop disconnects every client and shuts the HTTP server down. Stop on a
// server that was never started is a no-op.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for c := range clients {
		c.close(websocket.StatusGoingAway, "server shutting down")
	}

	if s.http == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down dashboard: %w", err)
	}
	s.wg.Wait()

	s.logger.Println("Dashboard stopped")
	return nil
}

// Broadcast stamps msg and queues it for every client. A client whose queue
// is full is disconnected.
func (s *Server) Broadcast(msg Message) {
	if s.ctx.Err() != nil {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Failed to encode %s message: %v", msg.Type, err)
		return
	}

	s.mu.RLock()
	var slow []*client
	for c := range s.clients {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range slow {
		s.logger.Println("Warning: client too slow, disconnecting")
		s.drop(c, websocket.StatusPolicyViolation, "too slow")
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, clientQueue),
		done: make(chan struct{}),
	}
	if welcome, err := s.snapshot(); err == nil {
		c.send <- welcome
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	s.logger.Printf("Client connected (total: %d)", n)

	go s.writeLoop(c)
	go s.readLoop(c)
}

func (s *Server) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.drop(c, websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// readLoop discards client frames and notices disconnects.
func (s *Server) readLoop(c *client) {
	defer s.drop(c, websocket.StatusNormalClosure, "")
	for {
		if _, _, err := c.conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) drop(c *client, code websocket.StatusCode, reason string) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	n := len(s.clients)
	s.mu.Unlock()

	c.close(code, reason)
	if ok {
		s.logger.Printf("Client disconnected (total: %d)", n)
	}
}

func (s *Server) statuses() []engine.Status {
	if s.sessions == nil {
		return []engine.Status{}
	}
	return s.sessions.StatusAll()
}

func (s *Server) snapshot() ([]byte, error) {
	data, err := json.Marshal(s.statuses())
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: MessageTypeSessions, Timestamp: time.Now(), Data: data})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":   "ok",
		"clients":  s.ClientCount(),
		"sessions": len(s.statuses()),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.statuses())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>mdsync</title></head>
<body>
<h1>mdsync</h1>
<ul>
<li>Live events: <code>ws://%[1]s/ws</code></li>
<li><a href="/sessions">Sessions</a></li>
<li><a href="/health">Health</a></li>
</ul>
</body>
</html>`, r.Host)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// GetAddr returns the listening address, or the configured one before Start.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
