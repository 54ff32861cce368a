package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sf_credentials (
    name       TEXT PRIMARY KEY,
    record     JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore keeps credential records in a JSONB column, one row
// per named record. Services that share a token across instances use
// this instead of a local file.
type PostgresStore struct {
	pool   *pgxpool.Pool
	name   string
	logger *zap.Logger
}

// NewPostgresStore connects to the database and ensures the schema
// exists. name selects the credential record this store reads and
// writes.
func NewPostgresStore(ctx context.Context, dsn, name string, logger *zap.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("Credential store connected",
		zap.String("record", name))

	return &PostgresStore{pool: pool, name: name, logger: logger}, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) Load(ctx context.Context) (*Credentials, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM sf_credentials WHERE name = $1`, s.name).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("loading credential record %q: %w", s.name, err)
	}

	creds := &Credentials{}
	if err := json.Unmarshal(raw, creds); err != nil {
		return nil, fmt.Errorf("parsing credential record %q: %w", s.name, err)
	}
	creds.normalize()
	return creds, nil
}

// Save merges the token pair into the stored record. The JSONB merge
// operator keeps every field the client does not manage.
func (s *PostgresStore) Save(ctx context.Context, token Token) error {
	patch, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token patch: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE sf_credentials SET record = record || $2::jsonb, updated_at = now() WHERE name = $1`,
		s.name, patch)
	if err != nil {
		return fmt.Errorf("saving credential record %q: %w", s.name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential record %q does not exist", s.name)
	}

	s.logger.Debug("Persisted refreshed token", zap.String("record", s.name))
	return nil
}
