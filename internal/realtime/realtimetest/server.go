// Package realtimetest provides an in-process PocketBase realtime endpoint for tests.
package realtimetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type conn struct {
	id     string
	events chan string
	drop   chan struct{}
	topics []string
}

// Server speaks the /api/realtime handshake and pushes published changes
type Server struct {
	*httptest.Server

	mu    sync.Mutex
	conns map[string]*conn

	subscribed chan []string
}

// NewServer starts a server. Call Close when done.
func NewServer() *Server {
	s := &Server{
		conns:      make(map[string]*conn),
		subscribed: make(chan []string, 64),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/realtime", s.stream)
	mux.HandleFunc("POST /api/realtime", s.register)
	s.Server = httptest.NewServer(mux)
	return s
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	c := &conn{id: uuid.NewString(), events: make(chan string, 16), drop: make(chan struct{})}
	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c.id)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "id:%s\nevent:PB_CONNECT\ndata:{\"clientId\":%q}\n\n", c.id, c.id)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-c.drop:
			return
		case ev := <-c.events:
			if _, err := fmt.Fprint(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ClientID      string   `json:"clientId"`
		Subscriptions []string `json:"subscriptions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	c, ok := s.conns[body.ClientID]
	if ok {
		c.topics = slices.Clone(body.Subscriptions)
	}
	s.mu.Unlock()
	if !ok {
		http.Error(w, `{"message":"Missing or invalid client id."}`, http.StatusNotFound)
		return
	}

	select {
	case s.subscribed <- body.Subscriptions:
	default:
	}
	w.WriteHeader(http.StatusNoContent)
}

// Subscribed delivers the topic list of every successful registration
func (s *Server) Subscribed() <-chan []string {
	return s.subscribed
}

// Clients returns the number of open streams
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Publish sends a change to every stream subscribed to table and returns
// how many streams it was queued on.
func (s *Server) Publish(table, action string, record any) int {
	data, err := json.Marshal(map[string]any{"action": action, "record": record})
	if err != nil {
		panic(err)
	}
	topic := table + "/*"
	ev := fmt.Sprintf("event:%s\ndata:%s\n\n", topic, data)

	s.mu.Lock()
	var targets []*conn
	for _, c := range s.conns {
		if slices.Contains(c.topics, topic) {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range targets {
		select {
		case c.events <- ev:
			sent++
		case <-c.drop:
		case <-time.After(time.Second):
		}
	}
	return sent
}

// DropAll ends every open stream as if the backend went away
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.conns {
		close(c.drop)
		delete(s.conns, id)
	}
}
