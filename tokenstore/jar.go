// ABOUTME: Token backend over an http.CookieJar
// ABOUTME: Shares the jar with the HTTP client so token cookies travel with requests

package tokenstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// JarBackend reads and writes entries as cookies scoped to the API URL.
type JarBackend struct {
	jar    http.CookieJar
	url    *url.URL
	path   string
	domain string
}

// NewJarBackend scopes entries to baseURL using the path and domain of
// policy, which must be the policy the Store writes with. A Secure policy
// needs an https URL since the jar never returns Secure cookies otherwise.
func NewJarBackend(jar http.CookieJar, baseURL string, policy CookiePolicy) (*JarBackend, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie URL %q: %w", baseURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid cookie URL %q: missing host", baseURL)
	}
	if policy.Secure && u.Scheme != "https" {
		return nil, fmt.Errorf("secure token cookies require an https URL, got %q", baseURL)
	}

	policy = policy.normalize()
	return &JarBackend{
		jar:    jar,
		url:    &url.URL{Scheme: u.Scheme, Host: u.Host, Path: policy.Path},
		path:   policy.Path,
		domain: policy.Domain,
	}, nil
}

func (j *JarBackend) Load(_ context.Context, names ...string) (map[string]string, error) {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}

	vals := make(map[string]string, len(names))
	for _, c := range j.jar.Cookies(j.url) {
		if wanted[c.Name] {
			vals[c.Name] = c.Value
		}
	}
	return vals, nil
}

func (j *JarBackend) Save(_ context.Context, cookies []*http.Cookie) error {
	j.jar.SetCookies(j.url, cookies)
	return nil
}

// Delete expires the named cookies. The jar keys entries by domain, path
// and name, so the expiring cookie carries the same domain as the stored one.
func (j *JarBackend) Delete(_ context.Context, names ...string) error {
	expired := make([]*http.Cookie, len(names))
	for i, name := range names {
		expired[i] = &http.Cookie{Name: name, Path: j.path, Domain: j.domain, MaxAge: -1}
	}
	j.jar.SetCookies(j.url, expired)
	return nil
}
