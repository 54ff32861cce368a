package sfrest

import (
	"context"
	"fmt"
)

// headers returns the authorization header set for the current
// session, building and caching it lazily. When no access token exists
// yet, it authenticates first.
func (c *Client) headers(ctx context.Context) (map[string]string, error) {
	if cached := c.session.cachedHeaders(); cached != nil {
		return cached, nil
	}

	if c.session.token() == "" {
		if err := c.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	headers := map[string]string{
		"Content-Type":    "application/json",
		"Accept":          "application/json",
		"Accept-Encoding": "gzip",
		"Authorization":   "Bearer " + c.session.token(),
	}
	c.session.cacheHeaders(headers)
	return headers, nil
}

// refreshSession is the executor's hook for a 401/INVALID_SESSION_ID
// response: it re-authenticates (which installs the new token and
// clears the cached headers) and returns the regenerated header set
// for the retried attempt.
func (c *Client) refreshSession(ctx context.Context) (map[string]string, error) {
	if err := c.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("session refresh: %w", err)
	}
	return c.headers(ctx)
}
