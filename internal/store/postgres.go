package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nextlevelbuilder/convoke/pkg/protocol"
)

// PostgresStore is an optional durability adapter over two tables
// (`events`, `gates`), managed by golang-migrate. It wraps database/sql
// with the pgx stdlib driver (github.com/jackc/pgx/v5/stdlib registered
// for side effects, plain database/sql calls otherwise) and only ever
// stores envelopes and gate snapshots.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgresStore connects to dsn and verifies it with a ping.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Append(ctx context.Context, sessionID string, env protocol.Envelope) error {
	envJSON, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("store: marshal envelope: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO events (session_id, seq, msg_id, envelope_json, inserted_at)
		 VALUES ($1, $2, $3, $4, now())`,
		sessionID, env.Seq, env.ID, envJSON)
	return err
}

func (p *PostgresStore) Load(ctx context.Context, sessionID string) ([]protocol.Envelope, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT envelope_json FROM events WHERE session_id = $1 ORDER BY inserted_at ASC, seq ASC`, sessionID)
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

func (p *PostgresStore) GetByID(ctx context.Context, sessionID, msgID string) (protocol.Envelope, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT envelope_json FROM events WHERE session_id = $1 AND msg_id = $2`, sessionID, msgID).Scan(&raw)
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

func (p *PostgresStore) Save(ctx context.Context, g GateSnapshot) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO gates (session_id, proposal_id, state_json, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, proposal_id) DO UPDATE SET state_json = $3, expires_at = $4`,
		g.SessionID, g.ProposalID, g.StateJSON, g.ExpiresAt)
	return err
}

func (p *PostgresStore) LoadGate(ctx context.Context, sessionID, proposalID string) (GateSnapshot, error) {
	g := GateSnapshot{SessionID: sessionID, ProposalID: proposalID}
	err := p.db.QueryRowContext(ctx,
		`SELECT state_json, expires_at FROM gates WHERE session_id = $1 AND proposal_id = $2`,
		sessionID, proposalID).Scan(&g.StateJSON, &g.ExpiresAt)
	if err == sql.ErrNoRows {
		return GateSnapshot{}, ErrNotFound
	}
	return g, err
}

func (p *PostgresStore) Delete(ctx context.Context, sessionID, proposalID string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM gates WHERE session_id = $1 AND proposal_id = $2`, sessionID, proposalID)
	return err
}

func (p *PostgresStore) ListPending(ctx context.Context, sessionID string) ([]GateSnapshot, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT proposal_id, state_json, expires_at FROM gates WHERE session_id = $1`, sessionID)
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

func (p *PostgresStore) Close() error { return p.db.Close() }
