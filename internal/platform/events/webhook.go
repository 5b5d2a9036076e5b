package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

const (
	SignatureHeader = "X-Allergy-Signature"
	EventIDHeader   = "X-Allergy-Event-ID"
	EventTypeHeader = "X-Allergy-Event-Type"
)

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) { s.client = c }
}

// WithRetryDelays sets the waits between attempts. One delay means two
// attempts in total.
func WithRetryDelays(d ...time.Duration) WebhookOption {
	return func(s *WebhookSink) { s.retryDelays = d }
}

// WebhookSink POSTs each event as JSON to one endpoint, signed with
// HMAC-SHA256 over the body.
type WebhookSink struct {
	url         string
	secret      string
	client      *http.Client
	retryDelays []time.Duration
}

func NewWebhookSink(rawURL, secret string, opts ...WebhookOption) (*WebhookSink, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid webhook url %q", rawURL)
	}
	s := &WebhookSink{
		url:         rawURL,
		secret:      secret,
		client:      &http.Client{Timeout: 10 * time.Second},
		retryDelays: []time.Duration{time.Second, 5 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Publish delivers e, retrying on transport errors and 5xx responses.
// A 4xx response is final.
func (s *WebhookSink) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	sig := SignPayload(payload, s.secret)

	var lastErr error
	for attempt := 0; ; attempt++ {
		retry, err := s.deliver(ctx, e, payload, sig)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry || attempt >= len(s.retryDelays) {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("deliver event %s: %w", e.ID, ctx.Err())
		case <-time.After(s.retryDelays[attempt]):
		}
	}
	return fmt.Errorf("deliver event %s: %w", e.ID, lastErr)
}

func (s *WebhookSink) deliver(ctx context.Context, e Event, payload []byte, sig string) (retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, "sha256="+sig)
	req.Header.Set(EventIDHeader, e.ID)
	req.Header.Set(EventTypeHeader, e.Type)

	resp, err := s.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("non-2xx response: %d", resp.StatusCode)
	}
}

// SignPayload returns the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature is the hex HMAC-SHA256 of
// payload under secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(SignPayload(payload, secret)), []byte(signature))
}
