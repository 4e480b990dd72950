package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// healthTTL bounds how often the adapter probes the AI service health
// endpoint. Availability is consulted per incoming message; the probe is not.
const healthTTL = 30 * time.Second

// Responder produces a generated reply for an incoming message.
type Responder interface {
	// Reply returns the generated reply text. An empty string with a nil
	// error means the service declined to answer.
	Reply(ctx context.Context, message, userID, userName string) (string, error)
	// Available reports whether the service is currently reachable.
	Available(ctx context.Context) bool
}

// Adapter talks to the external AI reply service over HTTP. The base URL is
// read through a function so runtime settings changes take effect without
// rebuilding the adapter.
type Adapter struct {
	baseURL func() string
	client  *http.Client
	logger  *slog.Logger

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

// NewAdapter creates an AI service adapter. timeout bounds each request.
func NewAdapter(log *slog.Logger, baseURL func() string, timeout time.Duration) *Adapter {
	return &Adapter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  log.With(slog.String("service", "ai")),
	}
}

type chatRequest struct {
	Platform string `json:"platform"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Message  string `json:"message"`
}

type chatResponse struct {
	Success bool   `json:"success"`
	Reply   string `json:"reply"`
	Error   string `json:"error"`
}

// Reply posts the message to the chat endpoint and returns the generated
// text. Blank messages are declined locally without a request.
func (a *Adapter) Reply(ctx context.Context, message, userID, userName string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", nil
	}

	body, err := json.Marshal(chatRequest{
		Platform: "bilibili",
		UserID:   userID,
		UserName: userName,
		Message:  message,
	})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	url := strings.TrimRight(a.baseURL(), "/") + "/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.markUnhealthy()
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("chat request: unexpected status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if !out.Success {
		if out.Error != "" {
			return "", fmt.Errorf("chat service: %s", out.Error)
		}
		return "", nil
	}
	return strings.TrimSpace(out.Reply), nil
}

// Available reports AI service reachability, caching the health probe result
// for a short window.
func (a *Adapter) Available(ctx context.Context) bool {
	a.mu.Lock()
	if time.Since(a.checkedAt) < healthTTL {
		healthy := a.healthy
		a.mu.Unlock()
		return healthy
	}
	a.mu.Unlock()

	healthy := a.probe(ctx)

	a.mu.Lock()
	a.healthy = healthy
	a.checkedAt = time.Now()
	a.mu.Unlock()
	return healthy
}

func (a *Adapter) probe(ctx context.Context) bool {
	url := strings.TrimRight(a.baseURL(), "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Debug("health probe failed", slog.Any("error", err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

func (a *Adapter) markUnhealthy() {
	a.mu.Lock()
	a.healthy = false
	a.checkedAt = time.Now()
	a.mu.Unlock()
}
