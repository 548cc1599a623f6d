package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/k-code-yt/payment-webhooks/internal/event"
	"github.com/k-code-yt/payment-webhooks/internal/notify"
	"github.com/k-code-yt/payment-webhooks/internal/repo/store"
)

// handle dispatches a verified, admitted event to its handler. The default
// arm acknowledges types this system intentionally ignores.
func (p *Pipeline) handle(ctx context.Context, ev *event.VerifiedEvent) ([]notify.Message, error) {
	switch ev.Type {
	case event.TypeCheckoutSessionCompleted:
		return p.handleCheckoutCompleted(ctx, ev)
	case event.TypePaymentIntentSucceeded:
		return p.handlePaymentSucceeded(ctx, ev)
	case event.TypePaymentIntentFailed:
		return p.handlePaymentFailed(ctx, ev)
	default:
		p.log.WithFields(logrus.Fields{
			"event_id":   ev.ID,
			"event_type": ev.RawType,
		}).Info("unknown event type acknowledged")
		return nil, nil
	}
}

// handleCheckoutCompleted completes the order and decrements inventory in a
// single transaction, staging the confirmation email for after commit.
func (p *Pipeline) handleCheckoutCompleted(ctx context.Context, ev *event.VerifiedEvent) ([]notify.Message, error) {
	cs, err := ev.CheckoutSession()
	if err != nil {
		return nil, err
	}

	var hooks []notify.Message
	err = p.store.WithTransaction(ctx, func(ctx context.Context, tx store.StateTx) error {
		ord, err := tx.OrderBySession(ctx, cs.ID)
		if err != nil {
			return err
		}
		if ord == nil {
			// Out-of-order delivery or an external test event. Provider
			// retries would not resolve a genuinely absent order.
			p.log.WithFields(logrus.Fields{
				"event_id":   ev.ID,
				"session_id": cs.ID,
			}).Warn("checkout completed for unknown order, acknowledged")
			return nil
		}

		if err := tx.CompleteOrder(ctx, ord.ID); err != nil {
			if errors.Is(err, store.ErrOrderNotPending) {
				p.log.WithFields(logrus.Fields{
					"event_id": ev.ID,
					"order_id": ord.ID,
					"status":   string(ord.Status),
				}).Warn("order already terminal, no transition applied")
				return nil
			}
			return err
		}

		items, err := tx.OrderItems(ctx, ord.ID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := tx.DecrementInventory(ctx, it.TicketType, it.Quantity); err != nil {
				return err
			}
		}

		to := cs.CustomerEmail
		if to == "" {
			to = ord.CustomerEmail
		}
		if to != "" {
			hooks = append(hooks, confirmationMessage(to, ord, items))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

func (p *Pipeline) handlePaymentSucceeded(ctx context.Context, ev *event.VerifiedEvent) ([]notify.Message, error) {
	pi, err := ev.PaymentIntent()
	if err != nil {
		return nil, err
	}

	err = p.store.WithTransaction(ctx, func(ctx context.Context, tx store.StateTx) error {
		paym, err := tx.PaymentByIntent(ctx, pi.ID)
		if err != nil {
			return err
		}
		if paym == nil {
			p.log.WithFields(logrus.Fields{
				"event_id":  ev.ID,
				"intent_id": pi.ID,
			}).Warn("payment succeeded for unknown intent, acknowledged")
			return nil
		}
		return tx.SetPaymentSucceeded(ctx, paym.ID)
	})
	return nil, err
}

func (p *Pipeline) handlePaymentFailed(ctx context.Context, ev *event.VerifiedEvent) ([]notify.Message, error) {
	pi, err := ev.PaymentIntent()
	if err != nil {
		return nil, err
	}
	reason := pi.FailureReason()

	var hooks []notify.Message
	err = p.store.WithTransaction(ctx, func(ctx context.Context, tx store.StateTx) error {
		paym, err := tx.PaymentByIntent(ctx, pi.ID)
		if err != nil {
			return err
		}
		if paym == nil {
			p.log.WithFields(logrus.Fields{
				"event_id":  ev.ID,
				"intent_id": pi.ID,
			}).Warn("payment failed for unknown intent, acknowledged")
			return nil
		}
		if err := tx.SetPaymentFailed(ctx, paym.ID, reason); err != nil {
			return err
		}

		if paym.OrderID.Valid {
			ord, err := tx.OrderByID(ctx, paym.OrderID.Int64)
			if err != nil {
				return err
			}
			if ord != nil && ord.CustomerEmail != "" {
				hooks = append(hooks, failureMessage(ord.CustomerEmail, reason))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hooks, nil
}

func confirmationMessage(to string, ord *store.Order, items []store.OrderItem) notify.Message {
	var lines []string
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("  %dx %s", it.Quantity, it.TicketType))
	}
	body := fmt.Sprintf(
		"Your order %d is confirmed.\n\nTickets:\n%s\n\nSee you there!",
		ord.ID, strings.Join(lines, "\n"),
	)
	return notify.NewMessage(to, "Your tickets are confirmed", body)
}

func failureMessage(to, reason string) notify.Message {
	body := fmt.Sprintf(
		"Your payment could not be completed (%s).\nPlease try again with a different payment method.",
		reason,
	)
	return notify.NewMessage(to, "Payment failed", body)
}
