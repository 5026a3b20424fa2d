// Package toast defines the transient operator notifications shown by the
// dashboard and the per-page stream that carries them to the browser.
package toast

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the toast severity
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeInfo    Type = "info"
)

// Position is the screen corner the toast is rendered in
type Position string

const (
	TopRight    Position = "top-right"
	BottomRight Position = "bottom-right"
)

const (
	DefaultDuration = 4 * time.Second
	ErrorDuration   = 6 * time.Second
)

// Toast is one transient notification
type Toast struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	Icon      string    `json:"icon,omitempty"`
	Position  Position  `json:"position"`
	Duration  int64     `json:"duration"` // milliseconds
	Timestamp time.Time `json:"timestamp"`
}

// New creates a toast with the default position and duration for its type
func New(message string, typ Type) *Toast {
	d := DefaultDuration
	if typ == TypeError {
		d = ErrorDuration
	}
	return &Toast{
		ID:        uuid.NewString(),
		Type:      typ,
		Message:   message,
		Position:  TopRight,
		Duration:  d.Milliseconds(),
		Timestamp: time.Now(),
	}
}

func Success(message string) *Toast { return New(message, TypeSuccess) }
func Error(message string) *Toast   { return New(message, TypeError) }

func (t *Toast) WithIcon(icon string) *Toast {
	t.Icon = icon
	return t
}

func (t *Toast) WithPosition(p Position) *Toast {
	t.Position = p
	return t
}

func (t *Toast) WithDuration(d time.Duration) *Toast {
	t.Duration = d.Milliseconds()
	return t
}

// Sink receives toasts
type Sink interface {
	Push(t *Toast)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(t *Toast)

func (f SinkFunc) Push(t *Toast) { f(t) }

// Stream is a bounded, closable queue of toasts for one page visit.
// Pushing to a full or closed stream drops the toast.
type Stream struct {
	mu     sync.Mutex
	ch     chan *Toast
	closed bool
}

// NewStream creates a stream buffering up to size toasts
func NewStream(size int) *Stream {
	return &Stream{ch: make(chan *Toast, size)}
}

// Push implements Sink
func (s *Stream) Push(t *Toast) {
	s.Offer(t)
}

// Offer queues t and reports whether it was accepted
func (s *Stream) Offer(t *Toast) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- t:
		return true
	default:
		return false
	}
}

// C returns the receive side; it is closed by Close
func (s *Stream) C() <-chan *Toast {
	return s.ch
}

// Close stops accepting toasts. Safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Closed reports whether Close was called
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
