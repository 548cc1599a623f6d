package memstore

import (
	"context"
	"database/sql"
	"sync"

	"github.com/k-code-yt/payment-webhooks/internal/repo/store"
)

// MemStore is an in-memory store.Store for tests and local runs. The whole
// store locks per transaction; fn's error restores the pre-transaction
// snapshot, which gives the same all-or-nothing visibility as the Postgres
// implementation.
type MemStore struct {
	mu sync.Mutex

	orders          map[int64]store.Order
	ordersBySession map[string]int64
	items           map[int64][]store.OrderItem
	payments        map[int64]store.Payment
	paymentsByIntent map[string]int64
	inventory       map[string]int

	nextID int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		orders:           map[int64]store.Order{},
		ordersBySession:  map[string]int64{},
		items:            map[int64][]store.OrderItem{},
		payments:         map[int64]store.Payment{},
		paymentsByIntent: map[string]int64{},
		inventory:        map[string]int{},
		nextID:           1,
	}
}

func (m *MemStore) AddOrder(sessionID, customerEmail string, items []store.OrderItem) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.orders[id] = store.Order{
		ID:            id,
		SessionID:     sessionID,
		Status:        store.OrderStatusPending,
		CustomerEmail: customerEmail,
	}
	m.ordersBySession[sessionID] = id
	for i := range items {
		items[i].OrderID = id
	}
	m.items[id] = items
	return id
}

func (m *MemStore) AddPayment(intentID string, orderID int64, amountCents int64, currency string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	p := store.Payment{
		ID:          id,
		IntentID:    intentID,
		AmountCents: amountCents,
		Currency:    currency,
		Status:      store.PaymentStatusRequiresPaymentMethod,
	}
	if orderID != 0 {
		p.OrderID = sql.NullInt64{Int64: orderID, Valid: true}
	}
	m.payments[id] = p
	m.paymentsByIntent[intentID] = id
	return id
}

func (m *MemStore) SetInventory(ticketType string, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventory[ticketType] = available
}

func (m *MemStore) Inventory(ticketType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inventory[ticketType]
}

func (m *MemStore) Order(id int64) (store.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	return o, ok
}

func (m *MemStore) Payment(id int64) (store.Payment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	return p, ok
}

func (m *MemStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx store.StateTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx, &memTx{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	orders    map[int64]store.Order
	payments  map[int64]store.Payment
	inventory map[string]int
}

func (m *MemStore) snapshot() memSnapshot {
	s := memSnapshot{
		orders:    make(map[int64]store.Order, len(m.orders)),
		payments:  make(map[int64]store.Payment, len(m.payments)),
		inventory: make(map[string]int, len(m.inventory)),
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	for k, v := range m.payments {
		s.payments[k] = v
	}
	for k, v := range m.inventory {
		s.inventory[k] = v
	}
	return s
}

func (m *MemStore) restore(s memSnapshot) {
	m.orders = s.orders
	m.payments = s.payments
	m.inventory = s.inventory
}

type memTx struct {
	m *MemStore
}

func (t *memTx) OrderBySession(ctx context.Context, sessionID string) (*store.Order, error) {
	id, ok := t.m.ordersBySession[sessionID]
	if !ok {
		return nil, nil
	}
	o := t.m.orders[id]
	return &o, nil
}

func (t *memTx) OrderByID(ctx context.Context, orderID int64) (*store.Order, error) {
	o, ok := t.m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (t *memTx) OrderItems(ctx context.Context, orderID int64) ([]store.OrderItem, error) {
	return t.m.items[orderID], nil
}

func (t *memTx) CompleteOrder(ctx context.Context, orderID int64) error {
	o, ok := t.m.orders[orderID]
	if !ok || o.Status != store.OrderStatusPending {
		return store.ErrOrderNotPending
	}
	o.Status = store.OrderStatusCompleted
	t.m.orders[orderID] = o
	return nil
}

func (t *memTx) DecrementInventory(ctx context.Context, ticketType string, qty int) error {
	available, ok := t.m.inventory[ticketType]
	if !ok || available < qty {
		return store.ErrInventoryInconsistency
	}
	t.m.inventory[ticketType] = available - qty
	return nil
}

func (t *memTx) PaymentByIntent(ctx context.Context, intentID string) (*store.Payment, error) {
	id, ok := t.m.paymentsByIntent[intentID]
	if !ok {
		return nil, nil
	}
	p := t.m.payments[id]
	return &p, nil
}

func (t *memTx) SetPaymentSucceeded(ctx context.Context, paymentID int64) error {
	p, ok := t.m.payments[paymentID]
	if !ok {
		return nil
	}
	p.Status = store.PaymentStatusSucceeded
	p.FailureReason = sql.NullString{}
	t.m.payments[paymentID] = p
	return nil
}

func (t *memTx) SetPaymentFailed(ctx context.Context, paymentID int64, reason string) error {
	p, ok := t.m.payments[paymentID]
	if !ok || p.Status == store.PaymentStatusSucceeded {
		return nil
	}
	p.Status = store.PaymentStatusFailed
	p.FailureReason = sql.NullString{String: reason, Valid: true}
	t.m.payments[paymentID] = p
	return nil
}
