package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/k-code-yt/payment-webhooks/internal/config"
	"github.com/k-code-yt/payment-webhooks/internal/kafka/producer"
	"github.com/k-code-yt/payment-webhooks/internal/repo/ledger"
	reposhared "github.com/k-code-yt/payment-webhooks/internal/repo/repo-shared"
)

// Relay ships terminal ledger entries to Kafka so downstream consumers
// (reporting, reconciliation) get the processed-event stream without the
// webhook path ever blocking on the broker.
type Relay struct {
	ledger   *ledger.PostgresLedger
	producer *producer.KafkaProducer
	interval time.Duration
	batch    int
	log      *logrus.Entry
	stopCH   chan struct{}
}

func NewRelay(l *ledger.PostgresLedger, p *producer.KafkaProducer, cfg *config.KafkaConfig) *Relay {
	return &Relay{
		ledger:   l,
		producer: p,
		interval: cfg.RelayInterval,
		batch:    cfg.RelayBatch,
		log:      logrus.WithField("service", "outbox-relay"),
		stopCH:   make(chan struct{}),
	}
}

func (r *Relay) Start() {
	go r.loop()
}

func (r *Relay) Stop() {
	close(r.stopCH)
}

func (r *Relay) loop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := r.handlePending(); err != nil {
				r.log.Errorf("relay pass failed: %v", err)
			}
		case <-r.stopCH:
			return
		}
	}
}

func (r *Relay) handlePending() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db := r.ledger.GetRepo()
	published, err := reposhared.TxClosure(ctx, db, func(ctx context.Context, tx *sqlx.Tx) (int, error) {
		entries, err := r.ledger.PendingPublish(ctx, tx, r.batch)
		if err != nil {
			return 0, err
		}

		toUpdateIDs := []string{}
		for _, e := range entries {
			b, err := json.Marshal(e)
			if err != nil {
				r.log.Errorf("marshal entry %s: %v", e.EventID, err)
				continue
			}
			if err := r.producer.Produce(e.EventID, b); err != nil {
				r.log.Errorf("produce entry %s: %v", e.EventID, err)
				continue
			}
			toUpdateIDs = append(toUpdateIDs, e.EventID)
		}

		rows, err := r.ledger.MarkPublished(ctx, tx, toUpdateIDs)
		if err != nil {
			return 0, err
		}
		if rows != len(toUpdateIDs) {
			return 0, fmt.Errorf("published %d entries but marked %d", len(toUpdateIDs), rows)
		}
		return rows, nil
	})
	if err != nil {
		return err
	}
	if published > 0 {
		r.log.WithField("count", published).Info("published processed events")
	}
	return nil
}
