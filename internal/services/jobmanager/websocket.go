package jobmanager

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventHub fans job events out to WebSocket subscribers. A subscriber may
// follow every job or, with ?job=<id>, a single one.
type EventHub struct {
	subscribers map[*subscriber]bool
	events      chan models.JobEvent
	register    chan *subscriber
	unregister  chan *subscriber
	done        chan struct{}
	mu          sync.RWMutex
	logger      *common.Logger
}

type subscriber struct {
	hub   *EventHub
	conn  *websocket.Conn
	jobID string
	send  chan []byte
}

// NewEventHub creates a hub. Run must be started before events are delivered.
func NewEventHub(logger *common.Logger) *EventHub {
	return &EventHub{
		subscribers: make(map[*subscriber]bool),
		events:      make(chan models.JobEvent, 256),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Run is the hub's event loop.
func (h *EventHub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for s := range h.subscribers {
				delete(h.subscribers, s)
				close(s.send)
			}
			h.mu.Unlock()
			return

		case s := <-h.register:
			h.mu.Lock()
			h.subscribers[s] = true
			n := len(h.subscribers)
			h.mu.Unlock()
			h.logger.Debug().Int("subscribers", n).Str("job_id", s.jobID).Msg("Job event subscriber connected")

		case s := <-h.unregister:
			h.drop(s)

		case event := <-h.events:
			h.deliver(event)
		}
	}
}

func (h *EventHub) deliver(event models.JobEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn().Err(err).Str("type", event.Type).Msg("Failed to marshal job event")
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	for s := range h.subscribers {
		if s.jobID != "" && (event.Job == nil || event.Job.ID != s.jobID) {
			continue
		}
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn().Str("job_id", s.jobID).Msg("Dropping slow job event subscriber")
		h.drop(s)
	}
}

func (h *EventHub) drop(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.send)
	}
}

// Stop ends the event loop and disconnects every subscriber.
func (h *EventHub) Stop() {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
}

// Broadcast queues an event without blocking; events are dropped when the
// hub is saturated. Pollers remain the source of truth for job state.
func (h *EventHub) Broadcast(event models.JobEvent) {
	select {
	case h.events <- event:
	default:
		h.logger.Warn().Str("type", event.Type).Msg("Job event channel full, dropping event")
	}
}

// ServeWS upgrades the request and registers a subscriber.
func (h *EventHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	s := &subscriber{
		hub:   h,
		conn:  conn,
		jobID: r.URL.Query().Get("job"),
		send:  make(chan []byte, 256),
	}

	select {
	case h.register <- s:
	case <-h.done:
		conn.Close()
		return
	}

	go s.writePump()
	go s.readPump()
}

// SubscriberCount returns the number of connected subscribers.
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only exists to notice the peer going away.
func (s *subscriber) readPump() {
	defer func() {
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()

	s.conn.SetReadLimit(512)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}
