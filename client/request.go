// ABOUTME: Request executor for the API client
// ABOUTME: One exchange plus at most one retry after a token refresh

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	// Body is JSON-encoded when non-nil.
	Body any
	// SkipAuth sends no Authorization header even if a token is stored.
	SkipAuth bool
	// SkipRefresh returns a 401 as is instead of refreshing.
	SkipRefresh bool
}

// RequestOption adjusts a Request built by the verb helpers.
type RequestOption func(*Request)

// SkipAuth marks a request as anonymous.
func SkipAuth() RequestOption {
	return func(r *Request) { r.SkipAuth = true }
}

// SkipRefresh disables the refresh-and-retry on 401.
func SkipRefresh() RequestOption {
	return func(r *Request) { r.SkipRefresh = true }
}

func (r Request) refreshable() bool {
	return !r.SkipAuth && !r.SkipRefresh
}

// Execute performs req and returns the raw JSON body. It returns nil with
// no error when the response is successful but carries no JSON.
//
// A 401 on a refreshable request triggers one refresh and one retry; a
// second 401 is returned as an HTTPError. When no new token can be
// obtained the stored tokens are cleared and ErrAuthenticationFailed is returned.
// If another request already stored a new, unexpired token, the retry uses
// it without refreshing, and a 401 on that retry is returned as is.
func (c *Client) Execute(ctx context.Context, req Request) (json.RawMessage, error) {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	var token string
	if !req.SkipAuth {
		token = c.store.AccessToken(ctx)
	}

	resp, err := c.send(ctx, req, body, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && req.refreshable() {
		discard(resp)

		retryToken, err := c.tokenForRetry(ctx, token)
		if err != nil {
			return nil, c.handleRequestError(ctx, err)
		}
		if retryToken == "" {
			c.clearTokens(ctx)
			return nil, ErrAuthenticationFailed
		}

		c.metrics.observeRetry()
		resp, err = c.send(ctx, req, body, retryToken)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	return c.readResponse(resp)
}

// tokenForRetry returns the token to retry with after a 401. If another
// caller already rotated the stored token and it has not expired, that
// token is used without a second refresh.
func (c *Client) tokenForRetry(ctx context.Context, sent string) (string, error) {
	if current := c.store.AccessToken(ctx); current != "" && current != sent && !c.store.IsExpired(ctx) {
		c.logger.Debug("Token rotated by another request, retrying without refresh")
		return current, nil
	}
	return c.refresh(ctx)
}

func (c *Client) send(ctx context.Context, req Request, body []byte, token string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.url(req.Path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.observeRequest(req.Method, "error")
		c.logger.Debug("Request failed",
			"request_id", requestID,
			"method", req.Method,
			"path", req.Path,
			"error", err,
		)
		return nil, c.handleRequestError(ctx, err)
	}

	c.metrics.observeRequest(req.Method, strconv.Itoa(resp.StatusCode))
	c.logger.Debug("Request completed",
		"request_id", requestID,
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (c *Client) readResponse(resp *http.Response) (json.RawMessage, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseErrorResponse(resp)
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid response from backend: malformed JSON")
	}
	return json.RawMessage(data), nil
}

func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// discard drains a response we are not going to read so the connection can be reused.
func discard(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
