package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type capturingSink struct {
	events chan Event
}

func (s *capturingSink) Deliver(ctx context.Context, event Event) error {
	s.events <- event
	return nil
}

func TestNotifier_DeliversInBackground(t *testing.T) {
	sink := &capturingSink{events: make(chan Event, 1)}
	n := NewNotifier(sink)

	n.Publish(PartialFill("ETH-PERP", decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.5)))

	select {
	case ev := <-sink.events:
		if ev.Type != TypePartialFill {
			t.Errorf("type = %s", ev.Type)
		}
		if ev.Fields["filled"] != "0.5" || ev.Fields["remaining"] != "0.5" {
			t.Errorf("fields = %v", ev.Fields)
		}
	case <-time.After(time.Second):
		t.Fatal("event never delivered")
	}
}

type panickySink struct{}

func (panickySink) Deliver(ctx context.Context, event Event) error { panic("sink exploded") }

type failingSink struct{}

func (failingSink) Deliver(ctx context.Context, event Event) error { return errors.New("down") }

func TestNotifier_NeverFailsCaller(t *testing.T) {
	// None of these may panic or block the caller.
	NewNotifier(panickySink{}).Publish(StatusChanged("HL", "HEALTHY", "DEGRADED"))
	NewNotifier(failingSink{}).Publish(StatusChanged("HL", "HEALTHY", "DEGRADED"))
	NewNotifier(nil).Publish(StatusChanged("HL", "HEALTHY", "DEGRADED"))

	var nilNotifier *Notifier
	nilNotifier.Publish(StatusChanged("HL", "HEALTHY", "DEGRADED"))

	time.Sleep(50 * time.Millisecond) // let background goroutines finish
}

func TestWebhookSink_PostsJSON(t *testing.T) {
	received := make(chan Event, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev Event
		json.NewDecoder(r.Body).Decode(&ev)
		received <- ev
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL)
	err := sink.Deliver(context.Background(), StatusChanged("DYDX", "DEGRADED", "OFFLINE"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ev := <-received
	if ev.Fields["venue"] != "DYDX" || ev.Fields["new"] != "OFFLINE" {
		t.Errorf("fields = %v", ev.Fields)
	}
}

func TestWebhookSink_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewWebhookSink(server.URL).Deliver(context.Background(), Event{Type: "x"}); err == nil {
		t.Error("expected error for 5xx response")
	}
}
