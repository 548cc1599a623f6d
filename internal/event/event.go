package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type is the closed set of provider event types this pipeline understands.
// Anything else maps to TypeUnknown and is acknowledged without processing.
type Type string

const (
	TypeCheckoutSessionCompleted Type = "checkout_session_completed"
	TypePaymentIntentSucceeded   Type = "payment_intent_succeeded"
	TypePaymentIntentFailed      Type = "payment_intent_failed"
	TypeUnknown                  Type = "unknown"
)

func ParseType(s string) Type {
	switch Type(s) {
	case TypeCheckoutSessionCompleted, TypePaymentIntentSucceeded, TypePaymentIntentFailed:
		return Type(s)
	default:
		return TypeUnknown
	}
}

var ErrMalformedEvent = errors.New("malformed event payload")

// VerifiedEvent is the immutable result of signature verification plus
// envelope decoding. Data holds the type-specific object untouched.
type VerifiedEvent struct {
	ID         string
	Type       Type
	RawType    string
	Data       json.RawMessage
	VerifiedAt time.Time
}

type envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func Parse(body []byte, verifiedAt time.Time) (*VerifiedEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	return &VerifiedEvent{
		ID:         env.ID,
		Type:       ParseType(env.Type),
		RawType:    env.Type,
		Data:       env.Data.Object,
		VerifiedAt: verifiedAt,
	}, nil
}

// CheckoutSession is the object carried by checkout_session_completed.
type CheckoutSession struct {
	ID            string `json:"id"`
	CustomerEmail string `json:"customer_email"`
}

// PaymentIntent is the object carried by the payment_intent_* events.
type PaymentIntent struct {
	ID        string        `json:"id"`
	LastError *PaymentError `json:"last_payment_error,omitempty"`
}

type PaymentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FailureReason flattens the intent's last error into a storable string.
func (pi *PaymentIntent) FailureReason() string {
	if pi.LastError == nil {
		return "unknown"
	}
	if pi.LastError.Message != "" {
		return fmt.Sprintf("%s: %s", pi.LastError.Code, pi.LastError.Message)
	}
	return pi.LastError.Code
}

func (e *VerifiedEvent) CheckoutSession() (*CheckoutSession, error) {
	var cs CheckoutSession
	if err := json.Unmarshal(e.Data, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if cs.ID == "" {
		return nil, fmt.Errorf("%w: checkout session has no id", ErrMalformedEvent)
	}
	return &cs, nil
}

func (e *VerifiedEvent) PaymentIntent() (*PaymentIntent, error) {
	var pi PaymentIntent
	if err := json.Unmarshal(e.Data, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if pi.ID == "" {
		return nil, fmt.Errorf("%w: payment intent has no id", ErrMalformedEvent)
	}
	return &pi, nil
}
