package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// SQLiteStore is the single-operator-friendly durability adapter:
// same two-table schema as PostgresStore, backed by modernc.org/sqlite
// (a pure-Go driver, no cgo, so single-binary deployments stay
// single-binary).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and creates if absent) the schema at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL DEFAULT 0,
	msg_id TEXT NOT NULL,
	envelope_json BLOB NOT NULL,
	inserted_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, inserted_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_msg_id ON events(session_id, msg_id);

CREATE TABLE IF NOT EXISTS gates (
	session_id TEXT NOT NULL,
	proposal_id TEXT NOT NULL,
	state_json BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, proposal_id)
);
`

func (s *SQLiteStore) Append(ctx context.Context, sessionID string, env protocol.Envelope) error {
	envJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("store: marshal envelope: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, seq, msg_id, envelope_json) VALUES (?, ?, ?, ?)`,
		sessionID, env.Seq, env.ID, envJSON)
	return err
}

func (s *SQLiteStore) Load(ctx context.Context, sessionID string) ([]protocol.Envelope, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT envelope_json FROM events WHERE session_id = ? ORDER BY inserted_at ASC, seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.Envelope
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetByID(ctx context.Context, sessionID, msgID string) (protocol.Envelope, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT envelope_json FROM events WHERE session_id = ? AND msg_id = ?`, sessionID, msgID).Scan(&raw)
	if err == sql.ErrNoRows {
		return protocol.Envelope{}, ErrNotFound
	}
	if err != nil {
		return protocol.Envelope{}, err
	}
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return protocol.Envelope{}, err
	}
	return env, nil
}

func (s *SQLiteStore) Save(ctx context.Context, g GateSnapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gates (session_id, proposal_id, state_json, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, proposal_id) DO UPDATE SET state_json = excluded.state_json, expires_at = excluded.expires_at`,
		g.SessionID, g.ProposalID, g.StateJSON, g.ExpiresAt)
	return err
}

func (s *SQLiteStore) LoadGate(ctx context.Context, sessionID, proposalID string) (GateSnapshot, error) {
	g := GateSnapshot{SessionID: sessionID, ProposalID: proposalID}
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json, expires_at FROM gates WHERE session_id = ? AND proposal_id = ?`,
		sessionID, proposalID).Scan(&g.StateJSON, &g.ExpiresAt)
	if err == sql.ErrNoRows {
		return GateSnapshot{}, ErrNotFound
	}
	return g, err
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID, proposalID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM gates WHERE session_id = ? AND proposal_id = ?`, sessionID, proposalID)
	return err
}

func (s *SQLiteStore) ListPending(ctx context.Context, sessionID string) ([]GateSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT proposal_id, state_json, expires_at FROM gates WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GateSnapshot
	for rows.Next() {
		g := GateSnapshot{SessionID: sessionID}
		if err := rows.Scan(&g.ProposalID, &g.StateJSON, &g.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
