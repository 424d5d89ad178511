// ABOUTME: Cookie attributes for the stored token entries
// ABOUTME: Names, path, SameSite, Secure and per-entry expiry policy

package tokenstore

import (
	"net/http"
	"strconv"
	"time"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
	TokenExpiryCookie  = "tokenExpiry"
)

// DefaultRefreshTTL is how long the refresh entry lives regardless of the access token.
const DefaultRefreshTTL = 30 * 24 * time.Hour

// CookiePolicy defines how token entries are issued.
type CookiePolicy struct {
	Path       string
	Domain     string
	Secure     bool
	SameSite   http.SameSite
	RefreshTTL time.Duration
}

// DefaultCookiePolicy returns site-wide strict cookies, Secure in production.
func DefaultCookiePolicy(production bool) CookiePolicy {
	return CookiePolicy{
		Path:       "/",
		Secure:     production,
		SameSite:   http.SameSiteStrictMode,
		RefreshTTL: DefaultRefreshTTL,
	}
}

func (p CookiePolicy) normalize() CookiePolicy {
	if p.Path == "" {
		p.Path = "/"
	}
	if p.SameSite == 0 {
		p.SameSite = http.SameSiteStrictMode
	}
	if p.RefreshTTL <= 0 {
		p.RefreshTTL = DefaultRefreshTTL
	}
	return p
}

// cookies builds the three entries for one write. Access and expiry entries
// expire with the access token; the refresh entry gets RefreshTTL.
func (p CookiePolicy) cookies(now time.Time, access, refresh string, expiresAt time.Time) []*http.Cookie {
	return []*http.Cookie{
		p.cookie(AccessTokenCookie, access, expiresAt),
		p.cookie(RefreshTokenCookie, refresh, now.Add(p.RefreshTTL)),
		p.cookie(TokenExpiryCookie, strconv.FormatInt(expiresAt.UnixMilli(), 10), expiresAt),
	}
}

func (p CookiePolicy) cookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     p.Path,
		Domain:   p.Domain,
		Expires:  expires,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}
