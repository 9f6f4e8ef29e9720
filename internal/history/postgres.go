package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the command_history table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment. The server
// writes rows as commands are confirmed; the client only reads.
const Schema = `
CREATE TABLE IF NOT EXISTS command_history (
    id           BIGSERIAL PRIMARY KEY,
    user_command TEXT NOT NULL,
    action       JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_command_history_command ON command_history(user_command);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Action descriptors are
// stored as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over the given connection or pool. Call
// [PostgresStore.Migrate] once before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the command_history table and
// index if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("history: migrate: %w", err)
	}
	return nil
}

// List implements [Store]. Entries come back newest first so the matcher
// prefers recent phrasings when similarities tie.
func (s *PostgresStore) List(ctx context.Context) ([]CommandPair, error) {
	const query = `
		SELECT user_command, action
		FROM command_history
		ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var pairs []CommandPair
	for rows.Next() {
		var p CommandPair
		var actionJSON []byte
		if err := rows.Scan(&p.UserCommand, &actionJSON); err != nil {
			return nil, fmt.Errorf("history: list scan: %w", err)
		}
		if err := json.Unmarshal(actionJSON, &p.Action); err != nil {
			return nil, fmt.Errorf("history: unmarshal action: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return pairs, nil
}
