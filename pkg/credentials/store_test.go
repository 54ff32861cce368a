package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestValidateRequiresGrantFields(t *testing.T) {
	full := Credentials{
		Username:      "user@example.com",
		Password:      "hunter2",
		SecurityToken: "SECTOK",
		ClientID:      "client-id",
		ClientSecret:  "client-secret",
	}
	require.NoError(t, full.Validate())

	tests := []struct {
		field string
		blank func(c *Credentials)
	}{
		{"username", func(c *Credentials) { c.Username = "" }},
		{"password", func(c *Credentials) { c.Password = "" }},
		{"security_token", func(c *Credentials) { c.SecurityToken = "" }},
		{"client_id", func(c *Credentials) { c.ClientID = "" }},
		{"client_secret", func(c *Credentials) { c.ClientSecret = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			c := full
			tt.blank(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingCredential))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestFileStoreLoadJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	record := `{
  "username": "user@example.com",
  "password": "hunter2",
  "security_token": "SECTOK",
  "client_id": "client-id",
  "client_secret": "client-secret",
  "access_token": "tok-1",
  "instance_url": "https://example.my.salesforce.com",
  "is_sandbox": true
}`
	require.NoError(t, afero.WriteFile(fs, "/creds.json", []byte(record), 0o600))

	creds, err := NewFileStoreFS(fs, "/creds.json").Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "user@example.com", creds.Username)
	assert.Equal(t, "tok-1", creds.AccessToken)
	assert.Equal(t, "https://example.my.salesforce.com", creds.InstanceURL)
	assert.True(t, creds.Sandbox)
}

func TestFileStoreLoadYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	record := `username: user@example.com
password: hunter2
security_token: SECTOK
client_id: client-id
client_secret: client-secret
`
	require.NoError(t, afero.WriteFile(fs, "/creds.yaml", []byte(record), 0o600))

	creds, err := NewFileStoreFS(fs, "/creds.yaml").Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "user@example.com", creds.Username)
	assert.Equal(t, "SECTOK", creds.SecurityToken)
	require.NoError(t, creds.Validate())
}

func TestFileStoreLoadMissingFileIsFatal(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := NewFileStoreFS(fs, "/nope.json").Load(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nope.json")
}

func TestFileStoreLoadInvalidRecordIsFatal(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/creds.json", []byte("not json"), 0o600))

	_, err := NewFileStoreFS(fs, "/creds.json").Load(context.Background())

	require.Error(t, err)
}

func TestFileStoreLoadDropsUnpairedToken(t *testing.T) {
	fs := afero.NewMemMapFs()
	record := `{"username":"u","password":"p","security_token":"s","client_id":"i","client_secret":"c","access_token":"orphan"}`
	require.NoError(t, afero.WriteFile(fs, "/creds.json", []byte(record), 0o600))

	creds, err := NewFileStoreFS(fs, "/creds.json").Load(context.Background())

	require.NoError(t, err)
	assert.Empty(t, creds.AccessToken, "a token without an instance URL is unusable")
	assert.Empty(t, creds.InstanceURL)
}

func TestFileStoreSaveMergesWithoutClobbering(t *testing.T) {
	fs := afero.NewMemMapFs()
	record := `{
  "username": "user@example.com",
  "password": "hunter2",
  "security_token": "SECTOK",
  "client_id": "client-id",
  "client_secret": "client-secret",
  "access_token": "old-tok",
  "instance_url": "https://old.my.salesforce.com",
  "comment": "provisioned 2024-01-01"
}`
	require.NoError(t, afero.WriteFile(fs, "/creds.json", []byte(record), 0o600))
	store := NewFileStoreFS(fs, "/creds.json")

	err := store.Save(context.Background(), Token{
		AccessToken: "new-tok",
		InstanceURL: "https://new.my.salesforce.com",
	})
	require.NoError(t, err)

	raw, err := afero.ReadFile(fs, "/creds.json")
	require.NoError(t, err)
	var saved map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, "new-tok", saved["access_token"])
	assert.Equal(t, "https://new.my.salesforce.com", saved["instance_url"])
	assert.Equal(t, "user@example.com", saved["username"])
	assert.Equal(t, "provisioned 2024-01-01", saved["comment"], "fields outside the token pair survive")
}

func TestFileStoreSaveYAMLRoundTrips(t *testing.T) {
	fs := afero.NewMemMapFs()
	record := `username: user@example.com
password: hunter2
security_token: SECTOK
client_id: client-id
client_secret: client-secret
team: integrations
`
	require.NoError(t, afero.WriteFile(fs, "/creds.yml", []byte(record), 0o600))
	store := NewFileStoreFS(fs, "/creds.yml")

	err := store.Save(context.Background(), Token{
		AccessToken: "tok-1",
		InstanceURL: "https://example.my.salesforce.com",
	})
	require.NoError(t, err)

	raw, err := afero.ReadFile(fs, "/creds.yml")
	require.NoError(t, err)
	var saved map[string]interface{}
	require.NoError(t, yaml.Unmarshal(raw, &saved))
	assert.Equal(t, "tok-1", saved["access_token"])
	assert.Equal(t, "integrations", saved["team"])

	creds, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", creds.AccessToken)
	assert.Equal(t, "https://example.my.salesforce.com", creds.InstanceURL)
}

func TestFileStoreSaveMissingFileFails(t *testing.T) {
	fs := afero.NewMemMapFs()

	err := NewFileStoreFS(fs, "/nope.json").Save(context.Background(), Token{
		AccessToken: "tok",
		InstanceURL: "https://example.my.salesforce.com",
	})

	require.Error(t, err)
}
