package pipeline

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/k-code-yt/payment-webhooks/internal/event"
	"github.com/k-code-yt/payment-webhooks/internal/notify"
	"github.com/k-code-yt/payment-webhooks/internal/repo/ledger"
	"github.com/k-code-yt/payment-webhooks/internal/repo/store"
	"github.com/k-code-yt/payment-webhooks/internal/signature"
)

// Category is the stable machine-readable error class returned to the
// provider. Messages never carry secret material.
type Category string

const (
	CategoryNone                   Category = ""
	CategoryMissingSignature       Category = "missing_signature"
	CategoryInvalidSignature       Category = "invalid_signature"
	CategoryVerificationTimeout    Category = "verification_timeout"
	CategoryMalformedPayload       Category = "malformed_payload"
	CategoryInventoryInconsistency Category = "inventory_inconsistency"
	CategoryTransactionFailure     Category = "transaction_failure"
)

type Result struct {
	Status    int
	Received  bool
	Duplicate bool
	Category  Category
	Message   string
}

func ack(duplicate bool) Result {
	return Result{Status: http.StatusOK, Received: true, Duplicate: duplicate}
}

func rejected(status int, cat Category, msg string) Result {
	return Result{Status: status, Category: cat, Message: msg}
}

// Pipeline sequences verify -> admit -> dispatch -> transition -> record ->
// notify. Authentication failures never touch the ledger; notifier failures
// never touch the response.
type Pipeline struct {
	verifier *signature.Verifier
	ledger   ledger.Ledger
	store    store.Store
	notifier notify.Notifier
	log      *logrus.Entry
}

func New(v *signature.Verifier, l ledger.Ledger, s store.Store, n notify.Notifier) *Pipeline {
	return &Pipeline{
		verifier: v,
		ledger:   l,
		store:    s,
		notifier: n,
		log:      logrus.WithField("service", "webhook-pipeline"),
	}
}

// Process runs one inbound delivery through the state machine. body must be
// the exact wire bytes the signature was computed over.
func (p *Pipeline) Process(ctx context.Context, body []byte, sigHeader string) Result {
	if err := p.verifier.Verify(ctx, body, sigHeader); err != nil {
		return p.reject(err)
	}

	ev, err := event.Parse(body, time.Now())
	if err != nil {
		p.log.WithField("error", err.Error()).Warn("verified payload is not a valid event envelope")
		return rejected(http.StatusBadRequest, CategoryMalformedPayload, "event envelope could not be decoded")
	}

	adm, err := p.ledger.Admit(ctx, ev.ID, string(ev.Type))
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"event_id": ev.ID,
			"error":    err.Error(),
		}).Error("ledger admit failed")
		return rejected(http.StatusInternalServerError, CategoryTransactionFailure, "event could not be admitted")
	}
	if adm == ledger.AlreadyProcessed {
		duplicateEvents.Inc()
		p.log.WithFields(logrus.Fields{
			"event_id":   ev.ID,
			"event_type": ev.RawType,
		}).Info("duplicate delivery short-circuited")
		return ack(true)
	}

	hooks, err := p.handle(ctx, ev)
	if err != nil {
		cat := CategoryTransactionFailure
		if errors.Is(err, store.ErrInventoryInconsistency) {
			cat = CategoryInventoryInconsistency
		}
		eventsProcessed.WithLabelValues(string(ev.Type), "failure").Inc()
		p.log.WithFields(logrus.Fields{
			"event_id":   ev.ID,
			"event_type": ev.RawType,
			"category":   string(cat),
			"error":      err.Error(),
		}).Error("handler transaction failed")

		if rerr := p.ledger.RecordOutcome(ctx, ev.ID, ledger.Outcome{Success: false, Reason: string(cat)}); rerr != nil {
			p.log.WithField("event_id", ev.ID).Errorf("record failure outcome: %v", rerr)
		}
		return rejected(http.StatusInternalServerError, cat, "event processing failed")
	}

	if rerr := p.ledger.RecordOutcome(ctx, ev.ID, ledger.Outcome{Success: true}); rerr != nil {
		// The transition is committed; a replay hits the handlers'
		// monotonic guards, so the delivery is still acknowledged.
		p.log.WithField("event_id", ev.ID).Errorf("record success outcome: %v", rerr)
	}
	eventsProcessed.WithLabelValues(string(ev.Type), "success").Inc()

	p.runHooks(ctx, ev, hooks)
	return ack(false)
}

func (p *Pipeline) reject(err error) Result {
	switch {
	case errors.Is(err, signature.ErrMissingSignature):
		return rejected(http.StatusBadRequest, CategoryMissingSignature, "signature header is required")
	case errors.Is(err, signature.ErrVerificationTimeout):
		return rejected(http.StatusBadRequest, CategoryVerificationTimeout, "signature verification timed out")
	default:
		return rejected(http.StatusBadRequest, CategoryInvalidSignature, "signature does not match payload")
	}
}

// runHooks fires staged notifications strictly after the commit. Failures
// are logged and counted, nothing else.
func (p *Pipeline) runHooks(ctx context.Context, ev *event.VerifiedEvent, hooks []notify.Message) {
	for _, msg := range hooks {
		if err := p.notifier.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
			notifierFailures.Inc()
			p.log.WithFields(logrus.Fields{
				"event_id":   ev.ID,
				"message_id": msg.ID,
				"to":         msg.To,
				"error":      err.Error(),
			}).Warn("notification failed, state transition unaffected")
		}
	}
}
