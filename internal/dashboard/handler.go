package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/mdsync/mdsync/internal/engine"
)

// StatsData contains running counters over all sessions
type StatsData struct {
	Sessions    int `json:"sessions"`
	Conversions int `json:"conversions"`
	Echoes      int `json:"echoes_suppressed"`
	Failures    int `json:"failures"`
	Pending     int `json:"pending_writes"`
}

// Handler turns session events into dashboard messages. It implements
// engine.Observer.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		server: server,
		logger: logger,
	}
}

// Observe broadcasts e and, for events that change a counter, the updated
// statistics.
func (h *Handler) Observe(e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Printf("Failed to marshal event: %v", err)
		return
	}

	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	h.server.Broadcast(Message{
		Type:      MessageTypeEvent,
		Timestamp: at,
		Data:      data,
	})

	if h.count(e.Kind) {
		h.broadcastStats()
	}
}

func (h *Handler) count(kind engine.EventKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch kind {
	case engine.EventStarted:
		h.stats.Sessions++
	case engine.EventStopped:
		h.stats.Sessions--
	case engine.EventConverted, engine.EventSeeded:
		h.stats.Conversions++
	case engine.EventEchoSuppressed:
		h.stats.Echoes++
	case engine.EventConversionFailed:
		h.stats.Failures++
	case engine.EventWritePending:
		h.stats.Pending++
	default:
		return false
	}
	return true
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	dataJSON, err := json.Marshal(h.GetStats())
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}
