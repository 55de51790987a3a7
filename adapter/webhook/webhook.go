// Package webhook delivers session completion events as JSON HTTP POSTs.
// Server errors and transport failures are retried; client errors are not.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/justapithecus/chunkwire/adapter"
	"github.com/justapithecus/chunkwire/iox"
)

// DefaultTimeout bounds each POST attempt.
const DefaultTimeout = 10 * time.Second

// DefaultRetries is the retry count the CLI uses when none is configured.
const DefaultRetries = 3

// EventHeader names the event type on every request.
const EventHeader = "X-Chunkwire-Event"

// Config configures the webhook adapter.
type Config struct {
	// URL is the HTTP endpoint to POST to (required).
	URL string
	// Headers are added to every request, after the defaults.
	Headers map[string]string
	// Timeout bounds each attempt (default 10s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
	// BaseBackoff is the delay before the first retry (default 500ms).
	BaseBackoff time.Duration
}

// Adapter posts session completion events to one endpoint.
type Adapter struct {
	config Config
	retry  adapter.RetryPolicy
	client *http.Client
}

// New validates cfg and returns a webhook adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook adapter requires a URL")
	}
	retry, err := adapter.RetryPolicy{
		Retries:     cfg.Retries,
		BaseBackoff: cfg.BaseBackoff,
		Timeout:     cfg.Timeout,
	}.Normalize(DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("webhook adapter: %w", err)
	}
	cfg.Timeout, cfg.BaseBackoff = retry.Timeout, retry.BaseBackoff

	return &Adapter{
		config: cfg,
		retry:  retry,
		client: &http.Client{},
	}, nil
}

// Publish posts the event, retrying 5xx responses and transport errors.
// A 4xx response ends the publish after one attempt.
func (a *Adapter) Publish(ctx context.Context, event *adapter.SessionCompletedEvent) error {
	body, err := adapter.Encode(event)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}

	return adapter.Retry(ctx, "webhook", a.retry, func(ctx context.Context) error {
		err := a.post(ctx, body)
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Retriable() {
			return adapter.Permanent(err)
		}
		return err
	})
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// Retriable reports whether the status may succeed on a later attempt.
func (e *StatusError) Retriable() bool {
	return e.Code < 400 || e.Code >= 500
}

func (a *Adapter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return adapter.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, adapter.EventTypeSessionCompleted)
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	// Drained so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
