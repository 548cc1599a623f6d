package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/k-code-yt/payment-webhooks/internal/repo/ledger"
)

// MemLedger is an in-memory ledger.Ledger with the same admit semantics as
// the Postgres one: success is terminal, a failure outcome releases the
// claim immediately, a crashed claim expires after the lease.
type MemLedger struct {
	mu      sync.Mutex
	entries map[string]*ledger.Entry
	lease   time.Duration
	now     func() time.Time
}

func NewMemLedger(lease time.Duration) *MemLedger {
	return &MemLedger{
		entries: map[string]*ledger.Entry{},
		lease:   lease,
		now:     time.Now,
	}
}

// SetClock overrides the ledger clock. Tests use it to expire claims.
func (l *MemLedger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *MemLedger) Admit(ctx context.Context, eventID, eventType string) (ledger.Admission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[eventID]
	if !ok {
		l.entries[eventID] = &ledger.Entry{
			EventID:   eventID,
			EventType: eventType,
			ClaimedAt: now,
		}
		return ledger.FirstSeen, nil
	}
	if e.Processed {
		return ledger.AlreadyProcessed, nil
	}
	if now.Sub(e.ClaimedAt) >= l.lease {
		e.ClaimedAt = now
		return ledger.FirstSeen, nil
	}
	return ledger.AlreadyProcessed, nil
}

func (l *MemLedger) RecordOutcome(ctx context.Context, eventID string, oc ledger.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[eventID]
	if !ok || e.Processed {
		return nil
	}
	e.Outcome = oc.String()
	if oc.Success {
		now := l.now()
		e.Processed = true
		e.ProcessedAt = &now
	} else {
		e.ClaimedAt = time.Time{}
	}
	return nil
}

func (l *MemLedger) Entry(eventID string) (ledger.Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[eventID]
	if !ok {
		return ledger.Entry{}, false
	}
	return *e, true
}

func (l *MemLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
