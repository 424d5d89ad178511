// ABOUTME: Refresh coordinator for the API client
// ABOUTME: Exchanges the refresh token once for any number of concurrent 401s

package client

import (
	"context"
	"errors"
)

const refreshKey = "refresh"

// TokenResponse is the token triple returned by login, register and refresh.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh exchanges the stored refresh token for a new token pair and
// returns the new access token. Concurrent callers share one exchange.
// It reports false when no token could be obtained; stored tokens are
// cleared in that case. The cause of a failed refresh is logged, not returned.
func (c *Client) Refresh(ctx context.Context) (string, bool) {
	token, err := c.refresh(ctx)
	if err != nil || token == "" {
		return "", false
	}
	return token, true
}

// refresh joins or starts the shared exchange. The exchange runs detached
// from ctx so one caller giving up does not fail the others; the only
// error returned is ctx's own.
func (c *Client) refresh(ctx context.Context) (string, error) {
	ch := c.refreshGroup.DoChan(refreshKey, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
		defer cancel()
		return c.exchangeRefreshToken(rctx), nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug("Joined in-flight token refresh")
		}
		token, _ := res.Val.(string)
		return token, nil
	}
}

func (c *Client) exchangeRefreshToken(ctx context.Context) string {
	refreshToken := c.store.RefreshToken(ctx)
	if refreshToken == "" {
		c.metrics.observeRefresh(refreshSkipped)
		return ""
	}

	var tr TokenResponse
	err := c.Post(ctx, c.refreshPath, refreshRequest{RefreshToken: refreshToken}, &tr, SkipAuth(), SkipRefresh())
	if err == nil && tr.AccessToken == "" {
		err = errors.New("refresh response missing access token")
	}
	if err == nil {
		// Servers that do not rotate refresh tokens omit them.
		if tr.RefreshToken == "" {
			tr.RefreshToken = refreshToken
		}
		err = c.store.Set(ctx, tr.AccessToken, tr.RefreshToken, tr.ExpiresIn)
	}

	if err != nil {
		c.logger.Warn("Token refresh failed", "error", err)
		c.metrics.observeRefresh(refreshFailure)
		c.clearTokens(ctx)
		return ""
	}

	c.logger.Debug("Token refreshed", "expires_in", tr.ExpiresIn)
	c.metrics.observeRefresh(refreshSuccess)
	return tr.AccessToken
}
