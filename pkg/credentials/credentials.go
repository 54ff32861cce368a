// Package credentials defines the credential record used for the OAuth2
// password grant and the stores that persist it.
package credentials

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingCredential marks a fatal configuration error: a credential
// field required for the password grant is empty. Callers check it
// with errors.Is.
var ErrMissingCredential = errors.New("missing required credential")

// Credentials is the full credential record. AccessToken and
// InstanceURL are present only after a successful token exchange, and
// always together.
type Credentials struct {
	Username      string `json:"username" yaml:"username"`
	Password      string `json:"password" yaml:"password"`
	SecurityToken string `json:"security_token" yaml:"security_token"`
	ClientID      string `json:"client_id" yaml:"client_id"`
	ClientSecret  string `json:"client_secret" yaml:"client_secret"`
	AccessToken   string `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	InstanceURL   string `json:"instance_url,omitempty" yaml:"instance_url,omitempty"`
	Sandbox       bool   `json:"is_sandbox,omitempty" yaml:"is_sandbox,omitempty"`
}

// Validate checks the fields the password grant requires.
func (c *Credentials) Validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{
		{"username", c.Username},
		{"password", c.Password},
		{"security_token", c.SecurityToken},
		{"client_id", c.ClientID},
		{"client_secret", c.ClientSecret},
	} {
		if field.value == "" {
			return fmt.Errorf("%w: %s", ErrMissingCredential, field.name)
		}
	}
	return nil
}

// normalize enforces the token pairing invariant on a loaded record:
// an access token without an instance URL (or the reverse) is useless,
// so both are dropped.
func (c *Credentials) normalize() {
	if c.AccessToken == "" || c.InstanceURL == "" {
		c.AccessToken = ""
		c.InstanceURL = ""
	}
}

// Token is the subset of the record refreshed by a token exchange and
// merged back into the store.
type Token struct {
	AccessToken string `json:"access_token" yaml:"access_token"`
	InstanceURL string `json:"instance_url" yaml:"instance_url"`
}

// Store persists the credential record to a durable medium. Save
// merges the refreshed token pair into the stored record without
// discarding the other fields.
type Store interface {
	Load(ctx context.Context) (*Credentials, error)
	Save(ctx context.Context, token Token) error
}
