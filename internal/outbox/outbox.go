package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joao-fontenele/pharmacy-orders/internal/database"
)

// RelayLockKey is the transaction-scoped advisory lock held by the active relay.
const RelayLockKey int64 = 0x6f7574626f78

type Record struct {
	ID        int64           `json:"id"`
	EventID   string          `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at"`
}

// Insert appends an event. Pass the transaction that performs the state change so the
// event commits or rolls back with it.
func Insert(ctx context.Context, db database.DBTX, eventID, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO outbox (event_id, topic, key, payload)
		VALUES ($1, $2, $3, $4)
	`, eventID, topic, key, data)
	return err
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ProcessPending claims up to limit unsent records in id order and hands each to fn.
// Records fn accepted are marked sent; the first failure stops the batch so per-key
// order is kept. Only one relay publishes at a time: a caller that cannot take
// RelayLockKey returns 0 without touching any row, since a second relay skipping
// locked rows could publish a later event for a key ahead of an earlier one.
func (r *Repository) ProcessPending(ctx context.Context, limit int, fn func(context.Context, Record) error) (int, error) {
	sent := 0

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var acquired bool
		if err := tx.QueryRowContext(ctx, `SELECT pg_try_advisory_xact_lock($1)`, RelayLockKey).Scan(&acquired); err != nil {
			return err
		}
		if !acquired {
			return nil
		}

		records, err := fetchPending(ctx, tx, limit)
		if err != nil {
			return err
		}

		for _, rec := range records {
			if err := fn(ctx, rec); err != nil {
				return nil
			}
			if err := markSent(ctx, tx, rec.ID); err != nil {
				return err
			}
			sent++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return sent, nil
}

func (r *Repository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM outbox WHERE sent_at IS NULL`).Scan(&n)
	return n, err
}

func fetchPending(ctx context.Context, db database.DBTX, limit int) ([]Record, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_id, topic, key, payload, created_at, sent_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.Topic, &rec.Key, &payload, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, err
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}

func markSent(ctx context.Context, db database.DBTX, id int64) error {
	_, err := db.ExecContext(ctx, `UPDATE outbox SET sent_at = NOW() WHERE id = $1`, id)
	return err
}
