// Package realtime subscribes to row-level change notifications of the
// PocketBase realtime API (/api/realtime) and dispatches them to handlers.
//
// A Channel is one logical connection. Its lifetime is bound to the
// context passed to Subscribe and to Close: once Close returns, no handler
// of that channel runs again. There is no reconnect; a dropped stream ends
// the channel.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Action is the kind of row change
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	// ActionAll matches every action
	ActionAll Action = "*"
)

// ChangeEvent carries the new row of a change
type ChangeEvent struct {
	Table  string
	Action Action
	New    json.RawMessage
}

// Decode unmarshals the new row into v
func (e ChangeEvent) Decode(v any) error {
	return json.Unmarshal(e.New, v)
}

// Handler receives change events. It runs on the channel's reader
// goroutine and must not call Close on its own channel.
type Handler func(ctx context.Context, ev ChangeEvent)

var (
	ErrAlreadySubscribed = errors.New("channel already subscribed")
	ErrClosed            = errors.New("channel closed")
	ErrHandshakeTimeout  = errors.New("realtime handshake timed out")
)

const connectEvent = "PB_CONNECT"

// Client opens realtime channels against one backend
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client

	// ConnectTimeout bounds the handshake (stream open + topic registration)
	ConnectTimeout time.Duration
}

// NewClient creates a realtime client. httpClient may be nil; it must not
// carry a global timeout since the event stream is long-lived.
func NewClient(baseURL, authToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		authToken:      authToken,
		httpClient:     httpClient,
		ConnectTimeout: 10 * time.Second,
	}
}

// Subscribe opens a channel that delivers every action on the given
// tables to onEvent. Close the returned channel to unsubscribe.
func (c *Client) Subscribe(ctx context.Context, name string, tables []string, onEvent Handler) (*Channel, error) {
	ch := c.Channel(name)
	for _, table := range tables {
		ch.On(table, ActionAll, onEvent)
	}
	if err := ch.Subscribe(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

type binding struct {
	action  Action
	handler Handler
}

// Channel is one logical realtime connection with its handler table
type Channel struct {
	name   string
	client *Client

	mu         sync.Mutex
	bindings   map[string][]binding
	subscribed bool
	closed     bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// Channel returns an unsubscribed channel
func (c *Client) Channel(name string) *Channel {
	return &Channel{
		name:     name,
		client:   c,
		bindings: make(map[string][]binding),
		done:     make(chan struct{}),
	}
}

// On registers h for action on table. Registrations after Subscribe are ignored.
func (ch *Channel) On(table string, action Action, h Handler) *Channel {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.subscribed {
		log.Warnf("⚠️ realtime: %s: On(%s) after subscribe ignored", ch.name, table)
		return ch
	}
	ch.bindings[table] = append(ch.bindings[table], binding{action: action, handler: h})
	return ch
}

// Tables returns the registered table names
func (ch *Channel) Tables() []string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	tables := make([]string, 0, len(ch.bindings))
	for t := range ch.bindings {
		tables = append(tables, t)
	}
	return tables
}

// Done is closed when the reader goroutine has exited
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

// Subscribe connects, registers one topic per table and starts the reader.
// The channel stays open until ctx is cancelled, Close is called or the
// stream ends.
func (ch *Channel) Subscribe(ctx context.Context) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return ErrClosed
	}
	if ch.subscribed {
		ch.mu.Unlock()
		return ErrAlreadySubscribed
	}
	ch.subscribed = true
	runCtx, cancel := context.WithCancel(ctx)
	ch.cancel = cancel
	ch.mu.Unlock()

	body, err := ch.connect(runCtx)
	if err != nil {
		cancel()
		close(ch.done)
		return err
	}

	log.WithFields(log.Fields{"channel": ch.name, "tables": ch.Tables()}).Info("📡 realtime channel subscribed")
	go ch.read(runCtx, body)
	return nil
}

// Close unsubscribes and waits for the reader to exit. Safe to call more than once.
func (ch *Channel) Close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		<-ch.done
		return
	}
	ch.closed = true
	cancel := ch.cancel
	subscribed := ch.subscribed
	ch.mu.Unlock()

	if !subscribed {
		close(ch.done)
		return
	}
	cancel()
	<-ch.done
	log.WithField("channel", ch.name).Info("📴 realtime channel closed")
}

// connect opens the event stream, waits for the client id and posts the topics.
// ConnectTimeout covers all three steps; the stream itself then lives on ctx.
func (ch *Channel) connect(ctx context.Context) (*bufferedBody, error) {
	c := ch.client

	streamCtx, cancelStream := context.WithCancel(ctx)
	var timedOut atomic.Bool
	timer := time.AfterFunc(c.ConnectTimeout, func() {
		timedOut.Store(true)
		cancelStream()
	})
	fail := func(err error) (*bufferedBody, error) {
		timer.Stop()
		cancelStream()
		if timedOut.Load() {
			return nil, fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
		}
		return nil, err
	}

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.baseURL+"/api/realtime", nil)
	if err != nil {
		return fail(err)
	}
	req.Header.Set("Accept", "text/event-stream")
	if c.authToken != "" {
		req.Header.Set("Authorization", c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("failed to open realtime stream: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fail(fmt.Errorf("failed to open realtime stream: %s", resp.Status))
	}

	reader := newSSEReader(resp.Body)
	clientID, err := readClientID(reader)
	if err == nil {
		err = ch.register(streamCtx, clientID)
	}
	if err != nil {
		resp.Body.Close()
		return fail(err)
	}
	if !timer.Stop() {
		resp.Body.Close()
		cancelStream()
		return nil, ErrHandshakeTimeout
	}

	return &bufferedBody{reader: reader, closer: resp.Body, cancel: cancelStream}, nil
}

func readClientID(r *sseReader) (string, error) {
	ev, err := r.Next()
	if err != nil {
		return "", fmt.Errorf("failed to read realtime handshake: %w", err)
	}
	if ev.Event != connectEvent {
		return "", fmt.Errorf("unexpected realtime handshake event %q", ev.Event)
	}
	var payload struct {
		ClientID string `json:"clientId"`
	}
	if err := json.Unmarshal(ev.Data, &payload); err != nil || payload.ClientID == "" {
		if payload.ClientID = ev.ID; payload.ClientID == "" {
			return "", fmt.Errorf("realtime handshake without client id")
		}
	}
	return payload.ClientID, nil
}

func (ch *Channel) register(ctx context.Context, clientID string) error {
	c := ch.client
	tables := ch.Tables()
	topics := make([]string, 0, len(tables))
	for _, table := range tables {
		topics = append(topics, table+"/*")
	}

	jsonData, _ := json.Marshal(map[string]any{
		"clientId":      clientID,
		"subscriptions": topics,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/realtime", bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to register realtime topics: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to register realtime topics: %s - %s", resp.Status, string(body))
	}
	return nil
}

// bufferedBody keeps the handshake reader so buffered events are not lost
type bufferedBody struct {
	reader *sseReader
	closer io.Closer
	cancel context.CancelFunc
}

func (b *bufferedBody) Close() error {
	b.cancel()
	return b.closer.Close()
}

type changeMessage struct {
	Action Action          `json:"action"`
	Record json.RawMessage `json:"record"`
}

func (ch *Channel) read(ctx context.Context, body *bufferedBody) {
	defer close(ch.done)
	defer body.Close()

	// Unblock the pending read on cancellation.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	for {
		ev, err := body.reader.Next()
		if err != nil {
			if ctx.Err() == nil {
				log.WithField("channel", ch.name).Warnf("⚠️ realtime stream ended: %v", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		table, _, _ := strings.Cut(ev.Event, "/")
		var msg changeMessage
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			log.WithField("channel", ch.name).Debugf("skipping undecodable event %q: %v", ev.Event, err)
			continue
		}
		ch.dispatch(ctx, ChangeEvent{Table: table, Action: msg.Action, New: msg.Record})
	}
}

func (ch *Channel) dispatch(ctx context.Context, ev ChangeEvent) {
	ch.mu.Lock()
	bindings := ch.bindings[ev.Table]
	ch.mu.Unlock()

	for _, b := range bindings {
		if ctx.Err() != nil {
			return
		}
		if b.action == ActionAll || b.action == ev.Action {
			b.handler(ctx, ev)
		}
	}
}
