package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookSink POSTs events as JSON to a notification endpoint.
type WebhookSink struct {
	url  string
	http *http.Client
}

// NewWebhookSink creates a sink for the given endpoint.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:  url,
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *WebhookSink) Deliver(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
