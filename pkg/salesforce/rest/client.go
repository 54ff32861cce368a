// Package sfrest provides a client for the Salesforce REST API.
//
// The client authenticates through the OAuth2 password grant and keeps
// the resulting access token valid across calls: transient failures
// and rate limits are retried with a constant backoff, and a 401 with
// errorCode INVALID_SESSION_ID triggers exactly one re-authentication
// before the original request is retried with fresh headers.
//
// A Client is not safe for unsynchronized concurrent use beyond its
// internal session cache: callers that need concurrency should use one
// client per goroutine or serialize access.
package sfrest

import (
	"context"
	"fmt"

	"github.com/forcekit/forcekit/pkg/config"
	"github.com/forcekit/forcekit/pkg/credentials"
	httpclient "github.com/forcekit/forcekit/pkg/http"
	"go.uber.org/zap"
)

// Client is the composition root: high-level operations build a path
// and body and delegate to the retrying executor in pkg/http.
type Client struct {
	config     *config.Config
	creds      *credentials.Credentials
	store      credentials.Store
	session    *session
	httpClient *httpclient.Client
	logger     *zap.Logger
}

// New creates a client with the default production logger.
func New(cfg *config.Config, creds *credentials.Credentials) *Client {
	logger, _ := zap.NewProduction()
	return NewWithLogger(cfg, creds, logger)
}

// NewWithLogger creates a client with a custom logger.
func NewWithLogger(cfg *config.Config, creds *credentials.Credentials, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = config.Default()
	}
	if creds == nil {
		creds = &credentials.Credentials{}
	}
	c := &Client{
		config:     cfg,
		creds:      creds,
		session:    &session{},
		httpClient: httpclient.NewClientWithLogger(cfg.Timeout, logger),
		logger:     logger,
	}
	// A record loaded with a previous token resumes that session.
	if creds.AccessToken != "" && creds.InstanceURL != "" {
		c.session.setToken(creds.AccessToken, creds.InstanceURL)
	}
	return c
}

// LoadCredentials reads the credential record from the store and keeps
// the store as the persistence target for refreshed tokens.
func (c *Client) LoadCredentials(ctx context.Context, store credentials.Store) error {
	creds, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	c.creds = creds
	c.store = store
	if creds.Sandbox {
		c.config.Sandbox = true
	}
	if creds.AccessToken != "" && creds.InstanceURL != "" {
		c.session.setToken(creds.AccessToken, creds.InstanceURL)
	} else {
		c.session.reset()
	}
	return nil
}

func (c *Client) retryPolicy() httpclient.RetryPolicy {
	return httpclient.RetryPolicy{
		RetryOnStatus: c.config.RetryOnStatus,
		Backoff:       c.config.DefaultBackoff,
		MaxTries:      c.config.MaxTries,
		MaxElapsed:    c.config.MaxElapsed,
	}
}
