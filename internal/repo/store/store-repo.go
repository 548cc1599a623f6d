package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	reposhared "github.com/k-code-yt/payment-webhooks/internal/repo/repo-shared"
)

var (
	// ErrInventoryInconsistency means a decrement would drive a line
	// negative. The whole transaction rolls back.
	ErrInventoryInconsistency = errors.New("inventory decrement would go negative")

	// ErrOrderNotPending means the order already reached a terminal
	// status. Status transitions are monotonic.
	ErrOrderNotPending = errors.New("order is not pending")
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

type PaymentStatus string

const (
	PaymentStatusRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	PaymentStatusSucceeded             PaymentStatus = "succeeded"
	PaymentStatusFailed                PaymentStatus = "failed"
)

type Order struct {
	ID            int64       `db:"id"`
	SessionID     string      `db:"session_id"`
	Status        OrderStatus `db:"status"`
	CustomerEmail string      `db:"customer_email"`
}

type OrderItem struct {
	OrderID    int64  `db:"order_id"`
	TicketType string `db:"ticket_type"`
	Quantity   int    `db:"quantity"`
}

type Payment struct {
	ID            int64          `db:"id"`
	OrderID       sql.NullInt64  `db:"order_id"`
	IntentID      string         `db:"intent_id"`
	AmountCents   int64          `db:"amount_cents"`
	Currency      string         `db:"currency"`
	Status        PaymentStatus  `db:"status"`
	FailureReason sql.NullString `db:"failure_reason"`
}

type InventoryLine struct {
	TicketType string `db:"ticket_type"`
	Available  int    `db:"available"`
}

// StateTx is the set of operations a handler may perform inside one atomic
// transaction. Lookups return nil without error when no row matches, the
// unmatched case is the caller's decision.
type StateTx interface {
	OrderBySession(ctx context.Context, sessionID string) (*Order, error)
	OrderByID(ctx context.Context, orderID int64) (*Order, error)
	OrderItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	CompleteOrder(ctx context.Context, orderID int64) error
	DecrementInventory(ctx context.Context, ticketType string, qty int) error
	PaymentByIntent(ctx context.Context, intentID string) (*Payment, error)
	SetPaymentSucceeded(ctx context.Context, paymentID int64) error
	SetPaymentFailed(ctx context.Context, paymentID int64, reason string) error
}

// Store owns order, payment and inventory state. WithTransaction is the
// single atomic boundary every handler runs in: fn's error rolls the whole
// unit back, nil commits it.
type Store interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx StateTx) error) error
}

type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx StateTx) error) error {
	_, err := reposhared.TxClosure(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) (struct{}, error) {
		return struct{}{}, fn(ctx, &postgresTx{tx: tx})
	})
	return err
}

type postgresTx struct {
	tx *sqlx.Tx
}

func (t *postgresTx) OrderBySession(ctx context.Context, sessionID string) (*Order, error) {
	o := &Order{}
	err := t.tx.GetContext(ctx, o, `
SELECT id, session_id, status, customer_email FROM orders WHERE session_id = $1`, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("order by session: %w", err)
	}
	return o, nil
}

func (t *postgresTx) OrderByID(ctx context.Context, orderID int64) (*Order, error) {
	o := &Order{}
	err := t.tx.GetContext(ctx, o, `
SELECT id, session_id, status, customer_email FROM orders WHERE id = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("order by id: %w", err)
	}
	return o, nil
}

func (t *postgresTx) OrderItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	items := []OrderItem{}
	err := t.tx.SelectContext(ctx, &items, `
SELECT order_id, ticket_type, quantity FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order items: %w", err)
	}
	return items, nil
}

func (t *postgresTx) CompleteOrder(ctx context.Context, orderID int64) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`,
		orderID, OrderStatusCompleted, OrderStatusPending)
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	if rows == 0 {
		return ErrOrderNotPending
	}
	return nil
}

func (t *postgresTx) DecrementInventory(ctx context.Context, ticketType string, qty int) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE inventory SET available = available - $2
WHERE ticket_type = $1 AND available >= $2`, ticketType, qty)
	if err != nil {
		return fmt.Errorf("decrement inventory: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement inventory: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: ticket_type=%s qty=%d", ErrInventoryInconsistency, ticketType, qty)
	}
	return nil
}

func (t *postgresTx) PaymentByIntent(ctx context.Context, intentID string) (*Payment, error) {
	p := &Payment{}
	err := t.tx.GetContext(ctx, p, `
SELECT id, order_id, intent_id, amount_cents, currency, status, failure_reason
FROM payments WHERE intent_id = $1`, intentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("payment by intent: %w", err)
	}
	return p, nil
}

func (t *postgresTx) SetPaymentSucceeded(ctx context.Context, paymentID int64) error {
	_, err := t.tx.ExecContext(ctx, `
UPDATE payments SET status = $2, failure_reason = NULL
WHERE id = $1 AND status <> $2`, paymentID, PaymentStatusSucceeded)
	if err != nil {
		return fmt.Errorf("set payment succeeded: %w", err)
	}
	return nil
}

func (t *postgresTx) SetPaymentFailed(ctx context.Context, paymentID int64, reason string) error {
	// A success is never overwritten by a late failure delivery.
	_, err := t.tx.ExecContext(ctx, `
UPDATE payments SET status = $2, failure_reason = $3
WHERE id = $1 AND status <> $4`, paymentID, PaymentStatusFailed, reason, PaymentStatusSucceeded)
	if err != nil {
		return fmt.Errorf("set payment failed: %w", err)
	}
	return nil
}

// InventoryLine reads one line outside any handler transaction, for
// operational checks.
func (s *PostgresStore) InventoryLine(ctx context.Context, ticketType string) (*InventoryLine, error) {
	line := &InventoryLine{}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.db.GetContext(ctx, line, `
SELECT ticket_type, available FROM inventory WHERE ticket_type = $1`, ticketType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("inventory line: %w", err)
	}
	return line, nil
}
