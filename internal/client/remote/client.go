// Package remote is the client side of the push/pull protocol.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"racuni/internal/domain/entity"
	"racuni/internal/domain/syncer"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a sync API client. A nil httpClient gets an
// instrumented default transport.
func NewClient(baseURL string, tokens TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   60 * time.Second,
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

// PushResult is the server acknowledgement of one mutation.
type PushResult struct {
	Operation  entity.Operation `json:"operation"`
	EntityType string           `json:"entityType"`
	EntityID   string           `json:"entityId"`
}

// Snapshot is the user's live entity set as returned by the server.
type Snapshot struct {
	Collections map[string][]json.RawMessage
	Settings    json.RawMessage // nil when the user has no settings
	PulledAt    time.Time
	Counts      map[string]int
	Failed      []string
}

// Diagnostics mirrors the debug endpoint body.
type Diagnostics struct {
	UserID        string                `json:"userId"`
	Counts        map[string]int64      `json:"counts"`
	LatestUpdates map[string]*time.Time `json:"latestUpdates"`
	Failed        []string              `json:"failed,omitempty"`
}

// Push sends one mutation envelope.
func (c *Client) Push(ctx context.Context, env syncer.Envelope) (*PushResult, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	var result PushResult
	if err := c.do(ctx, http.MethodPost, "/sync", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Pull fetches the full live entity set.
func (c *Client) Pull(ctx context.Context) (*Snapshot, error) {
	var resp struct {
		Data map[string]json.RawMessage `json:"data"`
		Meta struct {
			PulledAt time.Time      `json:"pulledAt"`
			Counts   map[string]int `json:"counts"`
			Failed   []string       `json:"failed"`
		} `json:"meta"`
	}
	if err := c.do(ctx, http.MethodGet, "/sync/pull", nil, &resp); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Collections: make(map[string][]json.RawMessage),
		PulledAt:    resp.Meta.PulledAt,
		Counts:      resp.Meta.Counts,
		Failed:      resp.Meta.Failed,
	}
	for key, raw := range resp.Data {
		if key == "settings" {
			if s := bytes.TrimSpace(raw); len(s) > 0 && string(s) != "null" {
				snap.Settings = raw
			}
			continue
		}
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, &Error{Kind: KindNetwork, Status: http.StatusOK,
				Message: fmt.Sprintf("malformed %s collection", key), Err: err}
		}
		snap.Collections[key] = rows
	}
	return snap, nil
}

// Debug fetches per-kind counts for the authenticated user.
func (c *Client) Debug(ctx context.Context) (*Diagnostics, error) {
	var diag Diagnostics
	if err := c.do(ctx, http.MethodGet, "/sync/debug", nil, &diag); err != nil {
		return nil, err
	}
	return &diag, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return &Error{Kind: KindAuth, Message: "no access token", Err: err}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return classify(resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindNetwork, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

// classify maps a non-200 response to an Error.
func classify(status int, body []byte) *Error {
	var failure struct {
		Error  string       `json:"error"`
		Code   string       `json:"code"`
		Errors []FieldError `json:"errors"`
	}
	if err := json.Unmarshal(body, &failure); err != nil || failure.Error == "" {
		failure.Error = http.StatusText(status)
	}

	e := &Error{Status: status, Code: failure.Code, Message: failure.Error, Fields: failure.Errors}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = KindAuth
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		e.Kind = KindNetwork
	case status >= 500:
		e.Kind = KindStorage
	default:
		e.Kind = KindValidation
	}
	return e
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
