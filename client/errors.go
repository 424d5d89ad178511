// ABOUTME: Error types returned by the API client
// ABOUTME: Parses JSON error bodies and maps transport failures to readable errors

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// HTTPError is a non-success response from the backend.
type HTTPError struct {
	Message    string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return e.Message
}

// ErrAuthenticationFailed is returned when a 401 survives the refresh attempt.
// Stored tokens have been cleared by the time it is returned.
var ErrAuthenticationFailed = &HTTPError{
	Message:    "Authentication failed, please log in again",
	StatusCode: http.StatusUnauthorized,
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.StatusCode
	}
	return 0
}

// parseErrorResponse builds an HTTPError from a failed response. The message
// comes from the JSON "message" (string or list) or "error" field, falling
// back to the status text.
func parseErrorResponse(resp *http.Response) *HTTPError {
	herr := &HTTPError{
		Message:    statusText(resp),
		StatusCode: resp.StatusCode,
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || !gjson.ValidBytes(data) {
		return herr
	}

	body := gjson.ParseBytes(data)
	if !body.IsObject() {
		return herr
	}

	if msg := messageFrom(body.Get("message")); msg != "" {
		herr.Message = msg
	} else if msg := messageFrom(body.Get("error")); msg != "" {
		herr.Message = msg
	}

	if sc := body.Get("statusCode"); sc.Type == gjson.Number {
		if code := int(sc.Int()); code >= 100 && code <= 599 {
			herr.StatusCode = code
		}
	}
	return herr
}

func messageFrom(r gjson.Result) string {
	switch {
	case r.Type == gjson.String:
		return strings.TrimSpace(r.String())
	case r.IsArray():
		var parts []string
		for _, item := range r.Array() {
			if s := messageFrom(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case r.IsObject():
		return messageFrom(r.Get("message"))
	default:
		return ""
	}
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}

// handleRequestError converts transport failures to user-friendly messages
func (c *Client) handleRequestError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("request canceled: %w", ctx.Err())
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("request timed out: %w", err)
	}
	return fmt.Errorf("cannot connect to backend at %s: %w", c.baseURL, err)
}
