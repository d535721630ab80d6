package remotesync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HTTPBackend talks to the lullaby sync API.
type HTTPBackend struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var _ Backend = (*HTTPBackend)(nil)

// NewHTTPBackend creates a backend client. A nil httpClient gets a 15s
// timeout.
func NewHTTPBackend(baseURL, token string, httpClient *http.Client) *HTTPBackend {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPBackend{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   2 * time.Second,
	}
}

type profileList struct {
	Profiles []RemoteProfile `json:"profiles"`
}

type actionList struct {
	Actions []RemoteAction `json:"actions"`
}

type actionBatch struct {
	Upserts []RemoteAction `json:"upserts"`
	Deletes []string       `json:"deletes"`
}

type profileBatch struct {
	Upserts []RemoteProfile `json:"upserts"`
}

func (c *HTTPBackend) FetchProfiles(ctx context.Context) ([]RemoteProfile, error) {
	var out profileList
	if err := c.doJSON(ctx, http.MethodGet, "/v1/profiles", nil, &out); err != nil {
		return nil, err
	}
	return out.Profiles, nil
}

func (c *HTTPBackend) FetchActions(ctx context.Context) ([]RemoteAction, error) {
	var out actionList
	if err := c.doJSON(ctx, http.MethodGet, "/v1/actions", nil, &out); err != nil {
		return nil, err
	}
	return out.Actions, nil
}

func (c *HTTPBackend) SyncProfiles(ctx context.Context, upserts []RemoteProfile) error {
	if len(upserts) == 0 {
		return nil
	}
	return c.doJSON(ctx, http.MethodPost, "/v1/profiles:sync", profileBatch{Upserts: upserts}, nil)
}

func (c *HTTPBackend) SyncActions(ctx context.Context, profileID string, upserts []RemoteAction, deleteIDs []string) error {
	if len(upserts) == 0 && len(deleteIDs) == 0 {
		return nil
	}
	if upserts == nil {
		upserts = []RemoteAction{}
	}
	if deleteIDs == nil {
		deleteIDs = []string{}
	}
	path := "/v1/profiles/" + url.PathEscape(profileID) + "/actions:sync"
	return c.doJSON(ctx, http.MethodPost, path, actionBatch{Upserts: upserts, Deletes: deleteIDs}, nil)
}

// doJSON sends one API call. Transport failures and temporary HTTP errors
// are retried up to maxRetries times; everything else returns at once.
func (c *HTTPBackend) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding %s body: %w", path, err)
		}
	}

	var (
		lastErr    error
		retryAfter time.Duration
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitWithContext(ctx, c.retryDelay(attempt, retryAfter)); err != nil {
				return err
			}
		}

		resp, err := c.send(ctx, method, path, payload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr, retryAfter = fmt.Errorf("%s %s: %w", method, path, err), 0
			continue
		}

		err = readResponse(resp, path, out)
		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || !httpErr.Temporary() {
			return err
		}
		lastErr, retryAfter = err, httpErr.RetryAfter
	}
	return lastErr
}

func (c *HTTPBackend) send(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Correlation-Id", uuid.NewString())
	return c.httpClient.Do(req)
}

// readResponse decodes a 2xx body into out and maps anything else to this
// package's errors.
func readResponse(resp *http.Response, path string, out any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s response: %w", path, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", path, err)
		}
		return nil
	case resp.StatusCode == http.StatusConflict:
		return &ConflictError{Path: path}
	}

	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(data, &apiErr)
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Code:       apiErr.Code,
		Message:    apiErr.Message,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// retryDelay doubles baseDelay per attempt, capped at maxDelay. A server
// supplied Retry-After takes precedence.
func (c *HTTPBackend) retryDelay(attempt int, retryAfter time.Duration) time.Duration {
	maxDelay := c.maxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	if retryAfter > 0 {
		return min(retryAfter, maxDelay)
	}
	delay := c.baseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(header); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
