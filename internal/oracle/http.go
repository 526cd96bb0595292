package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/waypointhq/waypoint/internal/reliability"
)

// transport is the retrying HTTP layer shared by both oracle adapters.
// Each failed attempt is classified into a failure code and, when a hook
// is configured, reported with the owning oracle's name.
type transport struct {
	oracle      string
	client      *http.Client
	maxAttempts int
	retryBase   time.Duration
	retryCap    time.Duration
	onError     func(oracle, code string)
}

func newTransport(oracle string, cfg Config) transport {
	return transport{
		oracle:      oracle,
		client:      &http.Client{Timeout: cfg.Timeout},
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		retryCap:    cfg.RetryCap,
		onError:     cfg.OnError,
	}
}

func (t *transport) report(code string) {
	if t.onError != nil {
		t.onError(t.oracle, code)
	}
}

func (t *transport) postJSON(ctx context.Context, url string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < t.maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt-1, t.retryBase, t.retryCap)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := t.client.Do(req)
		if err != nil {
			t.report(transportErrorCode(err))
			lastErr = fmt.Errorf("send request: %w", err)
			continue
		}

		body, readErr := io.ReadAll(res.Body)
		res.Body.Close()
		if readErr != nil {
			t.report("network")
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			return body, nil
		}

		code := bodyErrorCode(body)
		if code == "" {
			code = fmt.Sprintf("http_%d", res.StatusCode)
		}
		t.report(code)
		lastErr = fmt.Errorf("oracle http status %d: %s", res.StatusCode, string(bytes.TrimSpace(body)))
		if !reliability.IsRetryableHTTPStatus(res.StatusCode) && !reliability.IsRetryableOracleCode(code) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// transportErrorCode maps a client.Do failure onto a failure class.
func transportErrorCode(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "network"
}

// bodyErrorCode pulls a machine-readable failure code out of an error
// body, accepting both {"code": ...} and {"error": {"code": ...}}.
func bodyErrorCode(body []byte) string {
	var payload struct {
		Code  string `json:"code"`
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Code != "" {
		return payload.Code
	}
	return payload.Error.Code
}

// GenerativeHTTP forwards completion requests to an HTTP endpoint that
// accepts the GenerateRequest payload and returns either raw text or a
// JSON object with a "text" field.
type GenerativeHTTP struct {
	url string
	t   transport
}

func NewGenerativeHTTP(cfg Config) *GenerativeHTTP {
	cfg = cfg.withDefaults()
	return &GenerativeHTTP{
		url: strings.TrimSpace(cfg.GenerativeURL),
		t:   newTransport("generative", cfg),
	}
}

func (g *GenerativeHTTP) Complete(ctx context.Context, req GenerateRequest) (string, error) {
	body, err := g.t.postJSON(ctx, g.url, req)
	if err != nil {
		return "", err
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		if v, ok := obj["text"]; ok {
			if s, ok := v.(string); ok {
				return s, nil
			}
		}
		// Endpoint returned the JSON object directly.
		return string(body), nil
	}
	return strings.TrimSpace(string(body)), nil
}

// SchedulerHTTP talks to a calendar-planning service over three routes
// hung off a base URL: /propose, /entries and /entries/{id}.
type SchedulerHTTP struct {
	baseURL string
	t       transport
}

func NewSchedulerHTTP(cfg Config) *SchedulerHTTP {
	cfg = cfg.withDefaults()
	return &SchedulerHTTP{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.SchedulerURL), "/"),
		t:       newTransport("scheduler", cfg),
	}
}

func (s *SchedulerHTTP) ProposeSessions(ctx context.Context, req ScheduleRequest) ([]ProposedSlot, error) {
	body, err := s.t.postJSON(ctx, s.baseURL+"/propose", req)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Slots []ProposedSlot `json:"slots"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Slots) > 0 {
		return wrapped.Slots, nil
	}
	var slots []ProposedSlot
	if err := json.Unmarshal(body, &slots); err != nil {
		return nil, fmt.Errorf("decode proposals: %w", err)
	}
	return slots, nil
}

func (s *SchedulerHTTP) CreateEntry(ctx context.Context, entry CalendarEntry) (string, error) {
	body, err := s.t.postJSON(ctx, s.baseURL+"/entries", entry)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode entry id: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("scheduler returned empty entry id")
	}
	return out.ID, nil
}

func (s *SchedulerHTTP) DeleteEntry(ctx context.Context, externalID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/entries/"+externalID, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	res, err := s.t.client.Do(req)
	if err != nil {
		s.t.report(transportErrorCode(err))
		return fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		// Already gone, treat as done.
		return nil
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		code := bodyErrorCode(body)
		if code == "" {
			code = fmt.Sprintf("http_%d", res.StatusCode)
		}
		s.t.report(code)
		return fmt.Errorf("scheduler http status %d: %s", res.StatusCode, string(body))
	}
	return nil
}
