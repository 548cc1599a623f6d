package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeCheckoutSessionCompleted, ParseType("checkout_session_completed"))
	assert.Equal(t, TypePaymentIntentSucceeded, ParseType("payment_intent_succeeded"))
	assert.Equal(t, TypePaymentIntentFailed, ParseType("payment_intent_failed"))

	assert.Equal(t, TypeUnknown, ParseType("charge_refunded"))
	assert.Equal(t, TypeUnknown, ParseType(""))
	assert.Equal(t, TypeUnknown, ParseType("unknown"))
}

func TestParseEnvelope(t *testing.T) {
	body := []byte(`{
		"id": "evt_123",
		"type": "checkout_session_completed",
		"data": {"object": {"id": "cs_1", "customer_email": "fan@example.com"}}
	}`)

	now := time.Now()
	ev, err := Parse(body, now)
	require.NoError(t, err)

	assert.Equal(t, "evt_123", ev.ID)
	assert.Equal(t, TypeCheckoutSessionCompleted, ev.Type)
	assert.Equal(t, "checkout_session_completed", ev.RawType)
	assert.Equal(t, now, ev.VerifiedAt)

	cs, err := ev.CheckoutSession()
	require.NoError(t, err)
	assert.Equal(t, "cs_1", cs.ID)
	assert.Equal(t, "fan@example.com", cs.CustomerEmail)
}

func TestParseMalformed(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{}`,
		`{"id":"evt_1"}`,
		`{"type":"checkout_session_completed"}`,
	} {
		_, err := Parse([]byte(body), time.Now())
		assert.ErrorIs(t, err, ErrMalformedEvent, "body %q", body)
	}
}

func TestUnknownTypePreservesRawType(t *testing.T) {
	body := []byte(`{"id":"evt_9","type":"invoice_paid","data":{"object":{}}}`)
	ev, err := Parse(body, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TypeUnknown, ev.Type)
	assert.Equal(t, "invoice_paid", ev.RawType)
}

func TestPaymentIntentFailureReason(t *testing.T) {
	body := []byte(`{
		"id": "evt_5",
		"type": "payment_intent_failed",
		"data": {"object": {"id": "pi_1", "last_payment_error": {"code": "card_declined", "message": "Your card was declined."}}}
	}`)
	ev, err := Parse(body, time.Now())
	require.NoError(t, err)

	pi, err := ev.PaymentIntent()
	require.NoError(t, err)
	assert.Equal(t, "pi_1", pi.ID)
	assert.Equal(t, "card_declined: Your card was declined.", pi.FailureReason())
}

func TestPaymentIntentNoErrorDetails(t *testing.T) {
	body := []byte(`{"id":"evt_6","type":"payment_intent_failed","data":{"object":{"id":"pi_2"}}}`)
	ev, err := Parse(body, time.Now())
	require.NoError(t, err)

	pi, err := ev.PaymentIntent()
	require.NoError(t, err)
	assert.Equal(t, "unknown", pi.FailureReason())
}

func TestPayloadDecodeErrors(t *testing.T) {
	ev := &VerifiedEvent{ID: "evt_7", Type: TypeCheckoutSessionCompleted, Data: []byte(`{"customer_email":"x@y.z"}`)}
	_, err := ev.CheckoutSession()
	assert.ErrorIs(t, err, ErrMalformedEvent)

	ev = &VerifiedEvent{ID: "evt_8", Type: TypePaymentIntentSucceeded, Data: []byte(`{}`)}
	_, err = ev.PaymentIntent()
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
