// Package sse implements the Server-Sent Events broker that carries tab
// navigations and configuration updates to the browser shim.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeTabUpdate      = "tab.update"
	TypeTabCreate      = "tab.create"
	TypeBangCreated    = "bang.created"
	TypeBangUpdated    = "bang.updated"
	TypeBangDeleted    = "bang.deleted"
	TypeSessionUpdated = "session.updated"
)

// ErrNoClients is returned by navigations when no shim is listening.
var ErrNoClients = errors.New("sse: no connected clients")

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TabUpdate asks the shim to load URL in an existing tab.
type TabUpdate struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}

// TabCreate asks the shim to open URL in a new tab.
type TabCreate struct {
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// SessionUpdate announces a new session snapshot.
type SessionUpdate struct {
	Version uint64 `json:"version"`
	Bangs   int    `json:"bangs"`
}

type bangEventReq struct {
	kind  string
	token string
}

type deliverReq struct {
	event Event
	resp  chan int
}

// Broker manages SSE client connections and broadcasts events.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + session throttle timestamp). Public methods communicate with this
// loop through channels, so no mutexes are required.
type Broker struct {
	sessionMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	bangEventCh   chan bangEventReq
	sessionCh     chan SessionUpdate
	deliverCh     chan deliverReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. Session updates are sent at most once per
// sessionThrottle; the latest one wins.
func NewBroker(sessionThrottle time.Duration) *Broker {
	if sessionThrottle <= 0 {
		sessionThrottle = time.Second
	}

	b := &Broker{
		sessionMin:    sessionThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		bangEventCh:   make(chan bangEventReq, 256),
		sessionCh:     make(chan SessionUpdate, 16),
		deliverCh:     make(chan deliverReq),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastSession time.Time
	var pending *SessionUpdate
	var flushTimer *time.Timer
	var flushCh <-chan time.Time

	broadcast := func(event Event) int {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return 0
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		delivered := 0
		for ch := range clients {
			select {
			case ch <- raw:
				delivered++
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
		return delivered
	}

	sendSession := func(now time.Time) {
		lastSession = now
		broadcast(Event{Type: TypeSessionUpdated, Data: *pending})
		pending = nil
	}

	for {
		select {
		case <-b.stopCh:
			if flushTimer != nil {
				flushTimer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.deliverCh:
			req.resp <- broadcast(req.event)

		case req := <-b.bangEventCh:
			data := map[string]string{"bang": req.token}
			switch req.kind {
			case "created":
				broadcast(Event{Type: TypeBangCreated, Data: data})
			case "updated":
				broadcast(Event{Type: TypeBangUpdated, Data: data})
			case "deleted":
				broadcast(Event{Type: TypeBangDeleted, Data: data})
			}

		case upd := <-b.sessionCh:
			pending = &upd
			now := time.Now()
			if wait := b.sessionMin - now.Sub(lastSession); wait > 0 {
				if flushCh == nil {
					flushTimer = time.NewTimer(wait)
					flushCh = flushTimer.C
				}
				continue
			}
			sendSession(now)

		case <-flushCh:
			flushCh = nil
			if pending != nil {
				sendSession(time.Now())
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishBangEvent announces a custom bang change.
func (b *Broker) PublishBangEvent(kind, token string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.bangEventCh <- bangEventReq{kind: kind, token: token}:
	case <-b.stopped:
	}
}

// PublishSession queues a throttled session.updated event.
func (b *Broker) PublishSession(version uint64, bangs int) {
	if b.closed.Load() {
		return
	}
	select {
	case b.sessionCh <- SessionUpdate{Version: version, Bangs: bangs}:
	case <-b.stopped:
	}
}

// ReplaceTab implements intercept.Navigator.
func (b *Broker) ReplaceTab(ctx context.Context, tabID int, url string) error {
	return b.deliver(ctx, Event{Type: TypeTabUpdate, Data: TabUpdate{TabID: tabID, URL: url}})
}

// OpenBackground implements intercept.Navigator.
func (b *Broker) OpenBackground(ctx context.Context, url string) error {
	return b.deliver(ctx, Event{Type: TypeTabCreate, Data: TabCreate{URL: url}})
}

// deliver broadcasts synchronously and fails when nobody received it.
func (b *Broker) deliver(ctx context.Context, event Event) error {
	if b.closed.Load() {
		return ErrNoClients
	}
	req := deliverReq{event: event, resp: make(chan int, 1)}
	select {
	case b.deliverCh <- req:
	case <-b.stopped:
		return ErrNoClients
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case n := <-req.resp:
		if n == 0 {
			return ErrNoClients
		}
		return nil
	case <-b.stopped:
		return ErrNoClients
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
