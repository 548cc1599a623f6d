package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k-code-yt/payment-webhooks/internal/repo/ledger"
	"github.com/k-code-yt/payment-webhooks/internal/repo/store"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	m := NewMemStore()
	orderID := m.AddOrder("cs_1", "fan@example.com", []store.OrderItem{
		{TicketType: "full-festival", Quantity: 2},
	})
	m.SetInventory("full-festival", 1)

	err := m.WithTransaction(context.Background(), func(ctx context.Context, tx store.StateTx) error {
		if err := tx.CompleteOrder(ctx, orderID); err != nil {
			return err
		}
		return tx.DecrementInventory(ctx, "full-festival", 2)
	})
	require.ErrorIs(t, err, store.ErrInventoryInconsistency)

	// All-or-nothing: the completed status must not survive the rollback.
	ord, ok := m.Order(orderID)
	require.True(t, ok)
	assert.Equal(t, store.OrderStatusPending, ord.Status)
	assert.Equal(t, 1, m.Inventory("full-festival"))
}

func TestTransactionCommits(t *testing.T) {
	m := NewMemStore()
	orderID := m.AddOrder("cs_1", "fan@example.com", []store.OrderItem{
		{TicketType: "full-festival", Quantity: 2},
	})
	m.SetInventory("full-festival", 100)

	err := m.WithTransaction(context.Background(), func(ctx context.Context, tx store.StateTx) error {
		if err := tx.CompleteOrder(ctx, orderID); err != nil {
			return err
		}
		return tx.DecrementInventory(ctx, "full-festival", 2)
	})
	require.NoError(t, err)

	ord, _ := m.Order(orderID)
	assert.Equal(t, store.OrderStatusCompleted, ord.Status)
	assert.Equal(t, 98, m.Inventory("full-festival"))
}

func TestCompleteOrderIsMonotonic(t *testing.T) {
	m := NewMemStore()
	orderID := m.AddOrder("cs_1", "fan@example.com", nil)

	err := m.WithTransaction(context.Background(), func(ctx context.Context, tx store.StateTx) error {
		return tx.CompleteOrder(ctx, orderID)
	})
	require.NoError(t, err)

	err = m.WithTransaction(context.Background(), func(ctx context.Context, tx store.StateTx) error {
		return tx.CompleteOrder(ctx, orderID)
	})
	assert.ErrorIs(t, err, store.ErrOrderNotPending)
}

func TestPaymentFailureNeverOverwritesSuccess(t *testing.T) {
	m := NewMemStore()
	paymentID := m.AddPayment("pi_1", 0, 9900, "eur")

	err := m.WithTransaction(context.Background(), func(ctx context.Context, tx store.StateTx) error {
		return tx.SetPaymentSucceeded(ctx, paymentID)
	})
	require.NoError(t, err)

	err = m.WithTransaction(context.Background(), func(ctx context.Context, tx store.StateTx) error {
		return tx.SetPaymentFailed(ctx, paymentID, "card_declined")
	})
	require.NoError(t, err)

	p, _ := m.Payment(paymentID)
	assert.Equal(t, store.PaymentStatusSucceeded, p.Status)
}

func TestAdmitExactlyOnceUnderConcurrency(t *testing.T) {
	l := NewMemLedger(time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	firstSeen := 0

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := l.Admit(context.Background(), "evt_1", "checkout_session_completed")
			if err != nil {
				t.Error(err)
				return
			}
			if adm == ledger.FirstSeen {
				mu.Lock()
				firstSeen++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, firstSeen)
}

func TestAdmitLeaseExpiry(t *testing.T) {
	l := NewMemLedger(time.Minute)
	base := time.Now()
	l.SetClock(func() time.Time { return base })

	adm, err := l.Admit(context.Background(), "evt_1", "checkout_session_completed")
	require.NoError(t, err)
	require.Equal(t, ledger.FirstSeen, adm)

	// In-flight duplicate short-circuits.
	adm, _ = l.Admit(context.Background(), "evt_1", "checkout_session_completed")
	assert.Equal(t, ledger.AlreadyProcessed, adm)

	// A crashed attempt is re-admittable after the lease.
	l.SetClock(func() time.Time { return base.Add(2 * time.Minute) })
	adm, _ = l.Admit(context.Background(), "evt_1", "checkout_session_completed")
	assert.Equal(t, ledger.FirstSeen, adm)
}

func TestSuccessOutcomeIsTerminal(t *testing.T) {
	l := NewMemLedger(time.Minute)

	_, err := l.Admit(context.Background(), "evt_1", "checkout_session_completed")
	require.NoError(t, err)
	require.NoError(t, l.RecordOutcome(context.Background(), "evt_1", ledger.Outcome{Success: true}))

	adm, _ := l.Admit(context.Background(), "evt_1", "checkout_session_completed")
	assert.Equal(t, ledger.AlreadyProcessed, adm)

	e, ok := l.Entry("evt_1")
	require.True(t, ok)
	assert.True(t, e.Processed)
	assert.Equal(t, "success", e.Outcome)
	require.NotNil(t, e.ProcessedAt)

	// Terminal outcomes are written at most once.
	require.NoError(t, l.RecordOutcome(context.Background(), "evt_1", ledger.Outcome{Success: false, Reason: "late"}))
	e, _ = l.Entry("evt_1")
	assert.Equal(t, "success", e.Outcome)
}

func TestFailureOutcomeReAdmitsImmediately(t *testing.T) {
	l := NewMemLedger(time.Minute)

	_, err := l.Admit(context.Background(), "evt_1", "checkout_session_completed")
	require.NoError(t, err)
	require.NoError(t, l.RecordOutcome(context.Background(), "evt_1", ledger.Outcome{Success: false, Reason: "inventory_inconsistency"}))

	adm, _ := l.Admit(context.Background(), "evt_1", "checkout_session_completed")
	assert.Equal(t, ledger.FirstSeen, adm)
}

func TestRollbackRestoresSnapshotNotAliases(t *testing.T) {
	m := NewMemStore()
	m.SetInventory("day-pass", 10)

	boom := errors.New("boom")
	err := m.WithTransaction(context.Background(), func(ctx context.Context, tx store.StateTx) error {
		if err := tx.DecrementInventory(ctx, "day-pass", 3); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 10, m.Inventory("day-pass"))
}
