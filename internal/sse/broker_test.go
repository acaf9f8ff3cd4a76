package sse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishBangEvent("created", "yt")

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: bang.created") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"bang":"yt"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestNavigatorEvents(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := context.Background()
	if err := b.ReplaceTab(ctx, 7, "https://example.com/?q=a"); err != nil {
		t.Fatalf("ReplaceTab: %v", err)
	}
	if err := b.OpenBackground(ctx, "https://example.org/b"); err != nil {
		t.Fatalf("OpenBackground: %v", err)
	}

	msgs := drain(ch)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2: %q", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "event: tab.update") || !strings.Contains(msgs[0], `"tabId":7`) {
		t.Errorf("unexpected first message %q", msgs[0])
	}
	if !strings.Contains(msgs[1], "event: tab.create") || !strings.Contains(msgs[1], `"url":"https://example.org/b"`) {
		t.Errorf("unexpected second message %q", msgs[1])
	}
}

func TestNavigatorWithoutClients(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	err := b.ReplaceTab(context.Background(), 1, "https://example.com")
	if !errors.Is(err, ErrNoClients) {
		t.Fatalf("err = %v, want ErrNoClients", err)
	}
}

func TestPublishSession_Throttle(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSession(1, 10)
	b.PublishSession(2, 11)
	b.PublishSession(3, 12)

	time.Sleep(50 * time.Millisecond)
	first := drain(ch)
	if len(first) != 1 || !strings.Contains(first[0], `"version":1`) {
		t.Fatalf("first window = %q, want only version 1", first)
	}

	time.Sleep(300 * time.Millisecond)
	second := drain(ch)
	if len(second) != 1 {
		t.Fatalf("second window = %q, want one coalesced event", second)
	}
	if !strings.Contains(second[0], `"version":3`) || !strings.Contains(second[0], `"bangs":12`) {
		t.Errorf("coalesced event = %q, want latest version", second[0])
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	if err := b.ReplaceTab(ctx, 3, "https://example.com/x"); err != nil {
		t.Fatalf("ReplaceTab: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: tab.update") {
		t.Errorf("handler output missing event: %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type = %q", got)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]int{"i": i}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "bang.updated", Data: map[string]string{"bang": "g"}})
	b.PublishBangEvent("updated", "g")
	b.PublishSession(9, 1)
	if err := b.OpenBackground(context.Background(), "https://example.com"); !errors.Is(err, ErrNoClients) {
		t.Fatalf("OpenBackground after close = %v", err)
	}
	b.Close()
}
