package sfrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	httpclient "github.com/forcekit/forcekit/pkg/http"
	"go.uber.org/zap"
)

// Query runs a SOQL query through the REST query endpoint. options is
// a raw query-string fragment appended after the generated q=
// parameter, e.g. "batchSize=200"; pass "" for none. The decoded JSON
// payload is returned as-is.
func (c *Client) Query(ctx context.Context, soql string, options string) (interface{}, error) {
	return c.execute(ctx, http.MethodGet, c.queryPath("query", soql, options), nil)
}

// QueryAll is Query against the queryAll endpoint, which includes
// deleted and archived records.
func (c *Client) QueryAll(ctx context.Context, soql string, options string) (interface{}, error) {
	return c.execute(ctx, http.MethodGet, c.queryPath("queryAll", soql, options), nil)
}

// QueryMore fetches the next page of a query result, following the
// nextRecordsUrl field of a previous response.
func (c *Client) QueryMore(ctx context.Context, nextRecordsURL string) (interface{}, error) {
	return c.execute(ctx, http.MethodGet, nextRecordsURL, nil)
}

// Limits reports the org's API limits.
func (c *Client) Limits(ctx context.Context) (interface{}, error) {
	return c.execute(ctx, http.MethodGet, c.versionPath("limits")+"/", nil)
}

// Get issues a GET against an arbitrary REST path under the instance
// URL, with optional query parameters.
func (c *Client) Get(ctx context.Context, path string, params map[string]string) (interface{}, error) {
	// Authenticating first guarantees the instance URL is known before
	// the full endpoint is assembled.
	if _, err := c.headers(ctx); err != nil {
		return nil, err
	}
	endpoint, err := httpclient.BuildURL(c.session.baseURL(), path, params)
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, http.MethodGet, endpoint, nil)
}

// Post issues a POST with a JSON body against an arbitrary REST path
// under the instance URL.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (interface{}, error) {
	return c.execute(ctx, http.MethodPost, path, body)
}

func (c *Client) versionPath(resource string) string {
	return fmt.Sprintf("/services/data/%s/%s", c.config.APIVersion, resource)
}

func (c *Client) queryPath(endpoint, soql, options string) string {
	path := fmt.Sprintf("%s/?q=%s", c.versionPath(endpoint), url.QueryEscape(soql))
	if options != "" {
		path += "&" + options
	}
	return path
}

// execute resolves the path against the instance URL and runs it
// through the retrying executor with the session-refresh hook wired
// in. Non-empty response bodies are decoded as JSON; an empty body is
// a success with a nil payload.
func (c *Client) execute(ctx context.Context, method, path string, body interface{}) (interface{}, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		endpoint = c.session.baseURL() + path
	}

	resp, err := c.httpClient.Do(httpclient.RequestOptions{
		Method:         method,
		URL:            endpoint,
		Headers:        headers,
		Body:           body,
		Context:        ctx,
		Retry:          c.retryPolicy(),
		RefreshSession: c.refreshSession,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Body) == 0 {
		return nil, nil
	}

	var payload interface{}
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		c.logger.Error("Failed to parse response body",
			zap.Error(err),
			zap.String("url", endpoint))
		return nil, fmt.Errorf("failed to parse response body: %w", err)
	}
	return payload, nil
}
