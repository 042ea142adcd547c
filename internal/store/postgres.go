package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/lox/eldorado/internal/game"
	"github.com/lox/eldorado/internal/stats"
)

// Postgres is the production Store backed by a connection pool.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a pool against the DSN, pings it, and ensures the schema
// exists.
func NewPostgres(dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("empty postgres dsn")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	p := &Postgres{db: db}
	if err := p.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS game_events (
			game_id     TEXT   NOT NULL,
			event_index INT    NOT NULL,
			event_type  TEXT   NOT NULL,
			payload     JSONB  NOT NULL,
			ts          BIGINT NOT NULL,
			PRIMARY KEY (game_id, event_index)
		)`,
		`CREATE TABLE IF NOT EXISTS game_summaries (
			game_id      TEXT  PRIMARY KEY,
			summary      JSONB NOT NULL,
			finalized_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS player_lifetime (
			user_id    TEXT  PRIMARY KEY,
			lifetime   JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) AppendEvents(ctx context.Context, gameID string, events []game.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for event %d: %w", ev.EventIndex, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO game_events (game_id, event_index, event_type, payload, ts)
VALUES ($1, $2, $3, $4, $5)
`, gameID, ev.EventIndex, string(ev.Type), payload, ev.Timestamp); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: game %s index %d", ErrDuplicateEvent, gameID, ev.EventIndex)
			}
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) LoadEvents(ctx context.Context, gameID string) ([]game.Event, error) {
	rows, err := p.db.QueryContext(ctx, `
SELECT event_index, event_type, payload, ts
FROM game_events
WHERE game_id = $1
ORDER BY event_index
`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []game.Event
	for rows.Next() {
		var (
			idx     int
			typ     string
			payload []byte
			ts      int64
		)
		if err := rows.Scan(&idx, &typ, &payload, &ts); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(map[string]any{
			"type":       typ,
			"payload":    json.RawMessage(payload),
			"eventIndex": idx,
			"timestamp":  ts,
			"gameId":     gameID,
		})
		if err != nil {
			return nil, err
		}
		var ev game.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", idx, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w: game %s", ErrNotFound, gameID)
	}
	return events, nil
}

func (p *Postgres) FinalizeGame(ctx context.Context, summary *stats.GameSummary) error {
	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
INSERT INTO game_summaries (game_id, summary)
VALUES ($1, $2)
ON CONFLICT (game_id) DO NOTHING
`, summary.GameID, blob)
	return err
}

func (p *Postgres) UpdatePlayerLifetime(ctx context.Context, userID string, line stats.PlayerGameStats) error {
	if userID == "" {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lifetime stats.Lifetime
	var blob []byte
	err = tx.QueryRowContext(ctx, `
SELECT lifetime FROM player_lifetime WHERE user_id = $1 FOR UPDATE
`, userID).Scan(&blob)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First game for this player.
	case err != nil:
		return err
	default:
		if err := json.Unmarshal(blob, &lifetime); err != nil {
			return fmt.Errorf("decode lifetime for %s: %w", userID, err)
		}
	}

	lifetime.ApplyGame(line)
	lifetime.LastPlayedAt = time.Now().UnixMilli()

	updated, err := json.Marshal(lifetime)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO player_lifetime (user_id, lifetime, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id) DO UPDATE SET lifetime = EXCLUDED.lifetime, updated_at = NOW()
`, userID, updated); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Postgres) PlayerLifetime(ctx context.Context, userID string) (*stats.Lifetime, error) {
	var blob []byte
	err := p.db.QueryRowContext(ctx, `
SELECT lifetime FROM player_lifetime WHERE user_id = $1
`, userID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: player %s", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	var lifetime stats.Lifetime
	if err := json.Unmarshal(blob, &lifetime); err != nil {
		return nil, err
	}
	return &lifetime, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
