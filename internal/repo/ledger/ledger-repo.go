package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	dbpostgres "github.com/k-code-yt/payment-webhooks/internal/db/postgres"
)

type Admission int

const (
	FirstSeen Admission = iota
	AlreadyProcessed
)

type Outcome struct {
	Success bool
	Reason  string
}

func (o Outcome) String() string {
	if o.Success {
		if o.Reason != "" {
			return "success: " + o.Reason
		}
		return "success"
	}
	return "failure: " + o.Reason
}

// Entry is the persisted record shape for one admitted event.
type Entry struct {
	EventID     string     `db:"event_id" json:"event_id"`
	EventType   string     `db:"event_type" json:"event_type"`
	Processed   bool       `db:"processed" json:"processed"`
	ClaimedAt   time.Time  `db:"claimed_at" json:"claimed_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	Outcome     string     `db:"outcome" json:"outcome"`
	Published   bool       `db:"published" json:"-"`
}

// Ledger is the idempotency gate. Admit is linearizable per event id:
// exactly one concurrent caller gets FirstSeen, everyone else
// short-circuits with AlreadyProcessed.
type Ledger interface {
	Admit(ctx context.Context, eventID, eventType string) (Admission, error)
	RecordOutcome(ctx context.Context, eventID string, oc Outcome) error
}

type PostgresLedger struct {
	db        *sqlx.DB
	tableName string
	lease     time.Duration
}

func NewPostgresLedger(db *sqlx.DB, lease time.Duration) *PostgresLedger {
	return &PostgresLedger{
		db:        db,
		tableName: "webhook_events",
		lease:     lease,
	}
}

func (l *PostgresLedger) GetRepo() *sqlx.DB { return l.db }

// Admit inserts the event id under its unique constraint. On conflict it
// claims the row only when the previous attempt never reached a terminal
// success and its claim lease has expired, so a crashed or failed attempt
// gets re-admitted while a concurrent in-flight duplicate does not.
func (l *PostgresLedger) Admit(ctx context.Context, eventID, eventType string) (Admission, error) {
	res, err := l.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (event_id, event_type, processed, claimed_at, outcome, published)
VALUES ($1, $2, FALSE, now(), '', FALSE)
ON CONFLICT (event_id) DO NOTHING`, l.tableName), eventID, eventType)
	if err != nil {
		if dbpostgres.IsDuplicateKeyErr(err) {
			return AlreadyProcessed, nil
		}
		return AlreadyProcessed, fmt.Errorf("ledger admit insert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return AlreadyProcessed, fmt.Errorf("ledger admit insert: %w", err)
	}
	if rows == 1 {
		return FirstSeen, nil
	}

	res, err = l.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET claimed_at = now()
WHERE event_id = $1 AND processed = FALSE AND claimed_at < now() - ($2 * interval '1 second')`,
		l.tableName), eventID, int64(l.lease.Seconds()))
	if err != nil {
		return AlreadyProcessed, fmt.Errorf("ledger admit claim: %w", err)
	}
	rows, err = res.RowsAffected()
	if err != nil {
		return AlreadyProcessed, fmt.Errorf("ledger admit claim: %w", err)
	}
	if rows == 1 {
		return FirstSeen, nil
	}
	return AlreadyProcessed, nil
}

// RecordOutcome marks success as terminal. A failure outcome keeps the row
// re-admittable and releases the claim immediately so the provider's next
// redelivery is not blocked behind the lease.
func (l *PostgresLedger) RecordOutcome(ctx context.Context, eventID string, oc Outcome) error {
	var err error
	if oc.Success {
		_, err = l.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET processed = TRUE, processed_at = now(), outcome = $2
WHERE event_id = $1 AND processed = FALSE`, l.tableName), eventID, oc.String())
	} else {
		_, err = l.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET outcome = $2, claimed_at = to_timestamp(0)
WHERE event_id = $1 AND processed = FALSE`, l.tableName), eventID, oc.String())
	}
	if err != nil {
		return fmt.Errorf("ledger record outcome: %w", err)
	}
	return nil
}

// PendingPublish returns processed entries the outbox relay has not shipped
// yet. Runs inside the relay's transaction.
func (l *PostgresLedger) PendingPublish(ctx context.Context, tx *sqlx.Tx, limit int) ([]*Entry, error) {
	entries := []*Entry{}
	q := fmt.Sprintf(`
SELECT event_id, event_type, processed, claimed_at, processed_at, outcome, published
FROM %s WHERE processed = TRUE AND published = FALSE
ORDER BY processed_at LIMIT $1 FOR UPDATE SKIP LOCKED`, l.tableName)
	if err := tx.SelectContext(ctx, &entries, q, limit); err != nil {
		return nil, fmt.Errorf("ledger pending publish: %w", err)
	}
	return entries, nil
}

func (l *PostgresLedger) MarkPublished(ctx context.Context, tx *sqlx.Tx, eventIDs []string) (int, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In(fmt.Sprintf("UPDATE %s SET published = TRUE WHERE event_id IN (?)", l.tableName), eventIDs)
	if err != nil {
		return 0, fmt.Errorf("ledger mark published: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
	if err != nil {
		return 0, fmt.Errorf("ledger mark published: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ledger mark published: %w", err)
	}
	return int(rows), nil
}
