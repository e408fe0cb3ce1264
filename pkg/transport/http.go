// Package transport implements the HTTP client for the Sol delivery API.
// It deliberately knows nothing about retries: it surfaces status, headers,
// and body untouched so the classifier and engine can decide what an outcome
// means.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sol/pkg/delivery"
	"sol/pkg/outbox"
)

// Header names on the Sol delivery API.
const (
	// HeaderIdempotencyKey tags every send with the transmission's stable
	// idempotency key so the server can detect replays.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderTransmissionID carries the server-assigned correlation id.
	HeaderTransmissionID = "x-sol-transmission-id"
)

// maxBodyBytes caps how much of a response body is read for classification.
const maxBodyBytes = 1 << 20

// Config holds HTTP transport configuration.
type Config struct {
	BaseURL string        // e.g. https://api.sol.example
	Client  *http.Client  // optional; http.DefaultClient if nil
	Timeout time.Duration // per-request timeout when Client is nil (default 30s)

	// Decorate, when set, is applied to every outgoing request. Auth and
	// other ambient headers are injected here; the transport itself adds
	// none of them.
	Decorate func(*http.Request)
}

// HTTP implements delivery.Transport over the Sol REST API.
type HTTP struct {
	cfg    Config
	client *http.Client
}

// New creates an HTTP transport.
func New(cfg Config) *HTTP {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &HTTP{cfg: cfg, client: client}
}

// sendRequest is the wire shape of a transmission send.
type sendRequest struct {
	Kind       string          `json:"kind"`
	ThreadID   string          `json:"thread_id"`
	MessageIDs []string        `json:"message_ids"`
	Body       json.RawMessage `json:"body"`
}

// pollResponse is the wire shape of a transmission poll. Status values the
// server emits: pending, processing, completed, failed.
type pollResponse struct {
	Status         string `json:"status"`
	Output         string `json:"output"`
	TransmissionID string `json:"transmission_id"`
}

// Send POSTs the packet to /v1/transmissions with the idempotency key
// attached. The returned Result carries whatever the server answered;
// interpreting it is the engine's job.
func (h *HTTP) Send(ctx context.Context, p outbox.Packet, idempotencyKey string) (delivery.Result, error) {
	body := json.RawMessage(p.Body)
	if !json.Valid(body) {
		// Opaque non-JSON payloads are shipped as a JSON string.
		enc, err := json.Marshal(p.Body)
		if err != nil {
			return delivery.Result{}, fmt.Errorf("encode packet body: %w", err)
		}
		body = enc
	}
	payload, err := json.Marshal(sendRequest{
		Kind:       p.Kind,
		ThreadID:   p.ThreadID,
		MessageIDs: p.Messages(),
		Body:       body,
	})
	if err != nil {
		return delivery.Result{}, fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		h.cfg.BaseURL+"/v1/transmissions", bytes.NewReader(payload))
	if err != nil {
		return delivery.Result{}, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, idempotencyKey)

	return h.do(req)
}

// Poll GETs /v1/transmissions/{id}. A pending/processing status (or HTTP
// 202) marks the result still-running.
func (h *HTTP) Poll(ctx context.Context, correlationID string) (delivery.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		h.cfg.BaseURL+"/v1/transmissions/"+url.PathEscape(correlationID), nil)
	if err != nil {
		return delivery.Result{}, fmt.Errorf("build poll request: %w", err)
	}
	return h.do(req)
}

// do executes a request and folds the response into a delivery.Result. Only
// transport-level failures return an error; HTTP-level failures are results.
func (h *HTTP) do(req *http.Request) (delivery.Result, error) {
	if h.cfg.Decorate != nil {
		h.cfg.Decorate(req)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return delivery.Result{}, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return delivery.Result{}, fmt.Errorf("read response body: %w", err)
	}

	res := delivery.Result{
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		Body:          body,
		CorrelationID: resp.Header.Get(HeaderTransmissionID),
		Pending:       resp.StatusCode == http.StatusAccepted,
	}

	// Successful bodies carry the poll envelope; pull out the status and
	// output. Failure bodies are left for the classifier.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var pr pollResponse
		if err := json.Unmarshal(body, &pr); err == nil {
			if pr.TransmissionID != "" && res.CorrelationID == "" {
				res.CorrelationID = pr.TransmissionID
			}
			switch strings.ToLower(pr.Status) {
			case "pending", "processing", "queued":
				res.Pending = true
			case "failed":
				res.Failed = true
				res.Pending = false
			default:
				res.Output = pr.Output
			}
		}
	}
	return res, nil
}
