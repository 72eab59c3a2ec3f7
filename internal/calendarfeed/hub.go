// Package calendarfeed pushes appointment changes to open calendar views over
// websockets so they can redraw without polling.
package calendarfeed

import (
	"net/http"
	"sync"
	"time"

	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
	"golang.org/x/net/websocket"
)

// Change is one appointment write as seen by a calendar.
type Change struct {
	Type          string `json:"type"` // "booked", "rescheduled", "cancelled", "status_changed"
	AppointmentID string `json:"appointment_id"`
	ServiceLine   string `json:"service_line"`
	ResourceID    string `json:"resource_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	PreviousDate  string `json:"previous_date,omitempty"`
}

// Message is the frame sent to clients.
type Message struct {
	Type      string  `json:"type"` // "subscribed", "change", "pong", "error"
	Change    *Change `json:"change,omitempty"`
	Text      string  `json:"text,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

type clientMessage struct {
	Type string `json:"type"` // "ping"
}

const (
	sendBuffer = 32
	writeWait  = 10 * time.Second
)

type subscriber struct {
	conn *websocket.Conn
	date string

	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(conn *websocket.Conn, date string) *subscriber {
	return &subscriber{
		conn: conn,
		date: date,
		out:  make(chan Message, sendBuffer),
		done: make(chan struct{}),
	}
}

func (s *subscriber) wants(c Change) bool {
	return s.date == "" || s.date == c.Date || s.date == c.PreviousDate
}

// enqueue never blocks. It reports false when the subscriber is closed or its
// queue is full.
func (s *subscriber) enqueue(msg Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- msg:
		return true
	default:
		return false
	}
}

// close unblocks the read loop in serveWS, which deregisters the subscriber.
func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

func (s *subscriber) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := websocket.JSON.Send(s.conn, msg); err != nil {
				s.close()
				return
			}
		}
	}
}

// Hub tracks open calendar connections per org.
type Hub struct {
	logger *logging.Logger

	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{} // orgID -> connections
}

func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{logger: logger, subs: make(map[string]map[*subscriber]struct{})}
}

// Publish queues a change for every subscriber of the org without blocking.
// A subscriber whose queue is full is disconnected.
func (h *Hub) Publish(orgID string, change Change) {
	if h == nil {
		return
	}
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs[orgID]))
	for s := range h.subs[orgID] {
		if s.wants(change) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	msg := Message{Type: "change", Change: &change, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	for _, s := range targets {
		if !s.enqueue(msg) {
			h.logger.Warn("calendarfeed: dropping slow subscriber", "org_id", orgID)
			s.close()
		}
	}
}

// Subscribers returns the number of open connections for an org.
func (h *Hub) Subscribers(orgID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orgID])
}

// HandleWebSocket upgrades to WebSocket and streams changes.
// GET /ws/calendar?org=<orgID>&date=YYYY-MM-DD
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Hub) serveWS(conn *websocket.Conn, r *http.Request) {
	orgID := r.URL.Query().Get("org")
	if orgID == "" {
		_ = websocket.JSON.Send(conn, Message{Type: "error", Text: "missing org parameter"})
		return
	}

	sub := newSubscriber(conn, r.URL.Query().Get("date"))
	h.mu.Lock()
	if h.subs[orgID] == nil {
		h.subs[orgID] = make(map[*subscriber]struct{})
	}
	h.subs[orgID][sub] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.subs[orgID], sub)
		if len(h.subs[orgID]) == 0 {
			delete(h.subs, orgID)
		}
		h.mu.Unlock()
		sub.close()
	}()
	go sub.writeLoop()

	sub.enqueue(Message{Type: "subscribed"})
	h.logger.Info("calendarfeed: connection opened", "org_id", orgID, "date", sub.date)

	for {
		var msg clientMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("calendarfeed: connection closed", "org_id", orgID, "error", err)
			return
		}
		if msg.Type == "ping" {
			sub.enqueue(Message{Type: "pong"})
		}
	}
}
