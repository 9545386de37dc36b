// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" //nolint:gci // load the postgres driver that is used by the system

	"github.com/bookmebot/fundwatch/lib/store"
)

// schema holds one row per funding round, keyed by the chat identifier.
const schema = `CREATE TABLE IF NOT EXISTS rounds (
	chat_id TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	member_count INTEGER NOT NULL,
	amount_per_wallet DOUBLE PRECISION NOT NULL
)`

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection' and makes sure the rounds
// table exists.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	if _, err = db.Exec(schema); err != nil {
		return nil, fmt.Errorf("cannot create rounds table: %w", err)
	}

	return &Postgres{db: db}, nil
}

// ClosePostgres will close any database connection. Must be called at termination time.
func (p *Postgres) ClosePostgres() error {
	return p.db.Close()
}

// SaveRound upserts the round's configuration under its key.
func (p *Postgres) SaveRound(r store.Round) error {
	_, err := p.db.Exec(`INSERT INTO rounds (chat_id, wallet_address, member_count, amount_per_wallet)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO UPDATE
		SET wallet_address = $2, member_count = $3, amount_per_wallet = $4`,
		r.Key, r.Wallet, r.Members, r.Amount)
	if err != nil {
		return fmt.Errorf("could not save round in db: %w", err)
	}

	return nil
}

// RemoveRound deletes a round's configuration from the database.
func (p *Postgres) RemoveRound(key string) error {
	res, err := p.db.Exec(`DELETE FROM rounds WHERE chat_id = $1`, key)
	if err != nil {
		return fmt.Errorf("could not remove round from db: %w", err)
	}

	if n, _ := res.RowsAffected(); n != 1 {
		return store.ErrRoundNotFound
	}

	return nil
}

// GetRounds returns all persisted round configurations.
func (p *Postgres) GetRounds() ([]store.Round, error) {
	rows, err := p.db.Query(`SELECT chat_id, wallet_address, member_count, amount_per_wallet FROM rounds`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []store.Round{}, nil
		}

		return nil, fmt.Errorf("could not read rounds from db: %w", err)
	}
	defer rows.Close()

	rounds := []store.Round{}

	for rows.Next() {
		var r store.Round
		if err = rows.Scan(&r.Key, &r.Wallet, &r.Members, &r.Amount); err != nil {
			return rounds, fmt.Errorf("could not scan round row: %w", err)
		}
		rounds = append(rounds, r)
	}

	return rounds, rows.Err()
}
