package dydx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dexrelay/internal/domain"
	"dexrelay/internal/infra"

	"github.com/shopspring/decimal"
)

func newTestAdapter(serverURL string) *Adapter {
	return NewAdapter(infra.VenueConfig{
		Enabled:   true,
		RestURL:   serverURL,
		WSURL:     "ws://127.0.0.1:1", // nothing listens; push loop just backs off
		AccessKey: "k",
		SecretKey: "s",
	})
}

func TestSubmitOrder_Partial(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("DYDX-SIGNATURE") == "" {
			t.Error("request not signed")
		}
		json.NewEncoder(w).Encode(orderResponse{
			Order: &orderPayload{ID: "d-1", Status: "OPEN", Size: "2", TotalFilled: "0.5", RemainingSize: "1.5"},
		})
	}))
	defer server.Close()

	size, _ := decimal.NewFromString("2")
	result, err := newTestAdapter(server.URL).SubmitOrder(context.Background(), domain.OrderRequest{
		ClientOrderID: "c-1",
		Symbol:        "ETH-USD",
		Side:          domain.SideSell,
		Size:          size,
		OrderType:     domain.OrderTypeMarket,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Filled.Equal(decimal.NewFromFloat(0.5)) || !result.Remaining.Equal(decimal.NewFromFloat(1.5)) {
		t.Errorf("fill breakdown = %s/%s", result.Filled, result.Remaining)
	}
}

func TestSubmitOrder_ClassifiesCodes(t *testing.T) {
	tests := []struct {
		code      string
		transient bool
	}{
		{codeMarketNotFound, false},
		{codeUnderCollateral, false},
		{"SEQUENCER_BUSY", true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(orderResponse{Errors: []apiError{{Code: tt.code, Msg: "rejected"}}})
			}))
			defer server.Close()

			_, err := newTestAdapter(server.URL).SubmitOrder(context.Background(), domain.OrderRequest{
				Symbol: "ETH-USD", Side: domain.SideBuy, Size: decimal.NewFromInt(1), OrderType: domain.OrderTypeMarket,
			})
			if err == nil {
				t.Fatal("expected error")
			}
			if domain.IsTransient(err) != tt.transient {
				t.Errorf("code %s transient = %v, want %v", tt.code, domain.IsTransient(err), tt.transient)
			}
		})
	}
}

func TestOrderUpdates_SurviveReconnectCycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(struct {
			Height int64 `json:"height"`
		}{Height: 42})
	}))
	defer server.Close()

	adapter := newTestAdapter(server.URL)
	updates := adapter.OrderUpdates()

	ctx := context.Background()
	if err := adapter.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := adapter.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := adapter.Connect(ctx); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer adapter.Disconnect()

	if adapter.OrderUpdates() != updates {
		t.Fatal("reconnect must not swap the update channel")
	}

	frame := `{"type":"channel_data","channel":"v4_orders","contents":{"id":"d-after","status":"FILLED","totalFilled":"1","remainingSize":"0"},"ts":1718000000000}`
	adapter.OnMessage(ctx, []byte(frame))

	select {
	case ev, ok := <-updates:
		if !ok {
			t.Fatal("channel wired at startup was closed by the reconnect")
		}
		if ev.OrderID != "d-after" {
			t.Errorf("update = %+v", ev)
		}
	default:
		t.Fatal("post-reconnect update not delivered to the startup watcher")
	}
}

func TestOnMessage_ChannelData(t *testing.T) {
	adapter := newTestAdapter("http://unused.example")

	frame := `{"type":"channel_data","channel":"v4_orders","contents":{"id":"d-7","status":"FILLED","totalFilled":"1","remainingSize":"0"},"ts":1718000000000}`
	adapter.OnMessage(context.Background(), []byte(frame))

	select {
	case ev := <-adapter.updates:
		if ev.OrderID != "d-7" || ev.Venue != "DYDX" || ev.Status != "FILLED" {
			t.Errorf("unexpected update: %+v", ev)
		}
	default:
		t.Fatal("no update published")
	}

	// Subscription acks are not order updates
	adapter.OnMessage(context.Background(), []byte(`{"type":"subscribed","channel":"v4_orders"}`))
	select {
	case ev := <-adapter.updates:
		t.Fatalf("unexpected update: %+v", ev)
	default:
	}
}
