package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// FileStore keeps the credential record in a single JSON or YAML file,
// selected by extension (.yaml/.yml for YAML, anything else JSON).
type FileStore struct {
	fs   afero.Fs
	path string
}

func NewFileStore(path string) *FileStore {
	return NewFileStoreFS(afero.NewOsFs(), path)
}

// NewFileStoreFS creates a FileStore on the given filesystem. Tests
// use afero.NewMemMapFs.
func NewFileStoreFS(fs afero.Fs, path string) *FileStore {
	return &FileStore{fs: fs, path: path}
}

// Load reads and decodes the record. A missing or unreadable file is a
// fatal configuration error, not something to retry.
func (s *FileStore) Load(_ context.Context) (*Credentials, error) {
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, fmt.Errorf("reading credentials file %s: %w", s.path, err)
	}

	creds := &Credentials{}
	if err := s.unmarshal(raw, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials file %s: %w", s.path, err)
	}
	creds.normalize()
	return creds, nil
}

// Save merges the token pair into the stored record. Fields the client
// does not know about survive the rewrite: the record is decoded into
// a generic map, updated, and re-encoded.
func (s *FileStore) Save(_ context.Context, token Token) error {
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return fmt.Errorf("reading credentials file %s: %w", s.path, err)
	}

	record := map[string]interface{}{}
	if err := s.unmarshal(raw, &record); err != nil {
		return fmt.Errorf("parsing credentials file %s: %w", s.path, err)
	}

	record["access_token"] = token.AccessToken
	record["instance_url"] = token.InstanceURL

	updated, err := s.marshal(record)
	if err != nil {
		return fmt.Errorf("encoding credentials record: %w", err)
	}

	if err := afero.WriteFile(s.fs, s.path, updated, 0o600); err != nil {
		return fmt.Errorf("writing credentials file %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) yamlFormat() bool {
	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func (s *FileStore) unmarshal(raw []byte, v interface{}) error {
	if s.yamlFormat() {
		return yaml.Unmarshal(raw, v)
	}
	return json.Unmarshal(raw, v)
}

func (s *FileStore) marshal(v interface{}) ([]byte, error) {
	if s.yamlFormat() {
		return yaml.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}
