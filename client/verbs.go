package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Get calls GET path and decodes the JSON response into out (which may be nil).
func (c *Client) Get(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, Request{Method: http.MethodGet, Path: path}, out, opts)
}

// Post calls POST path with body JSON-encoded.
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out, opts)
}

// Put calls PUT path with body JSON-encoded.
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...RequestOption) error {
	return c.do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out, opts)
}

// Delete calls DELETE path.
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...RequestOption) error {
	return c.do(ctx, Request{Method: http.MethodDelete, Path: path}, out, opts)
}

func (c *Client) do(ctx context.Context, req Request, out any, opts []RequestOption) error {
	for _, opt := range opts {
		opt(&req)
	}

	raw, err := c.Execute(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || raw == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid response from backend: %w", err)
	}
	return nil
}
