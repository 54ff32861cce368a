package sfrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/forcekit/forcekit/pkg/credentials"
	httpclient "github.com/forcekit/forcekit/pkg/http"
	"go.uber.org/zap"
)

// ErrAuthentication marks a terminal authentication failure: the token
// exchange was rejected, or a 401 carried a non-session-expiry error
// code. Callers check it with errors.Is.
var ErrAuthentication = errors.New("authentication failed")

const tokenPath = "/services/oauth2/token"

// AuthResponse is the token exchange response.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	ID          string `json:"id"`
	TokenType   string `json:"token_type"`
	IssuedAt    string `json:"issued_at"`
	Signature   string `json:"signature"`
}

// Authenticate performs the OAuth2 password grant against the login
// host, installs the new token in the session (invalidating cached
// headers), and persists the token pair when a store is configured.
//
// The exchange runs through the same retrying executor as every other
// request, but with no session-refresh hook: a 401 here is terminal.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.creds.Validate(); err != nil {
		return err
	}

	tokenURL := c.config.LoginBase() + tokenPath
	c.logger.Info("Authenticating with Salesforce",
		zap.String("url", tokenURL),
		zap.String("username", c.creds.Username))

	// Salesforce expects the security token appended to the password.
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password+c.creds.SecurityToken)
	form.Set("client_id", c.creds.ClientID)
	form.Set("client_secret", c.creds.ClientSecret)

	resp, err := c.httpClient.Do(httpclient.RequestOptions{
		Method: http.MethodPost,
		URL:    tokenURL,
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body:    form,
		Context: ctx,
		Retry:   c.retryPolicy(),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	var authResp AuthResponse
	if err := json.Unmarshal(resp.Body, &authResp); err != nil {
		return fmt.Errorf("%w: failed to parse token response: %w", ErrAuthentication, err)
	}
	if authResp.AccessToken == "" || authResp.InstanceURL == "" {
		return fmt.Errorf("%w: token response missing access_token or instance_url", ErrAuthentication)
	}

	c.session.setToken(authResp.AccessToken, authResp.InstanceURL)
	c.creds.AccessToken = authResp.AccessToken
	c.creds.InstanceURL = authResp.InstanceURL

	if c.store != nil {
		token := credentials.Token{
			AccessToken: authResp.AccessToken,
			InstanceURL: authResp.InstanceURL,
		}
		if err := c.store.Save(ctx, token); err != nil {
			return fmt.Errorf("persisting refreshed token: %w", err)
		}
	}

	c.logger.Info("Successfully authenticated",
		zap.String("instance_url", authResp.InstanceURL),
		zap.String("token_type", authResp.TokenType))
	return nil
}
