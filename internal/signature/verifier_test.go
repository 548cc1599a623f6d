package signature

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testSecret = "whsec_test_secret"

func newTestVerifier() *Verifier {
	return NewVerifier(testSecret, 5*time.Minute, 2*time.Second)
}

func TestVerifyValidSignature(t *testing.T) {
	v := newTestVerifier()
	body := []byte(`{"id":"evt_1","type":"checkout_session_completed"}`)
	header := ComputeHeader(testSecret, time.Now(), body)

	err := v.Verify(context.Background(), body, header)
	assert.NoError(t, err)
}

func TestVerifyTamperedBody(t *testing.T) {
	v := newTestVerifier()
	body := []byte(`{"id":"evt_1","type":"checkout_session_completed"}`)
	header := ComputeHeader(testSecret, time.Now(), body)

	for i := range body {
		tampered := make([]byte, len(body))
		copy(tampered, body)
		tampered[i] ^= 0x01

		err := v.Verify(context.Background(), tampered, header)
		assert.ErrorIs(t, err, ErrInvalidSignature, "tampered byte at offset %d must fail", i)
	}
}

func TestVerifyMissingHeader(t *testing.T) {
	v := newTestVerifier()
	err := v.Verify(context.Background(), []byte(`{}`), "")
	assert.ErrorIs(t, err, ErrMissingSignature)

	err = v.Verify(context.Background(), []byte(`{}`), "   ")
	assert.ErrorIs(t, err, ErrMissingSignature)
}

func TestVerifyWrongSecret(t *testing.T) {
	v := newTestVerifier()
	body := []byte(`{"id":"evt_1"}`)
	header := ComputeHeader("whsec_other", time.Now(), body)

	err := v.Verify(context.Background(), body, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyMalformedHeader(t *testing.T) {
	v := newTestVerifier()
	body := []byte(`{"id":"evt_1"}`)

	for _, header := range []string{
		"not-a-signature",
		"t=abc,v1=00",
		"v1=00",
		"t=123",
	} {
		err := v.Verify(context.Background(), body, header)
		assert.ErrorIs(t, err, ErrInvalidSignature, "header %q", header)
	}
}

func TestVerifyStaleTimestamp(t *testing.T) {
	v := newTestVerifier()
	body := []byte(`{"id":"evt_1"}`)
	header := ComputeHeader(testSecret, time.Now().Add(-time.Hour), body)

	err := v.Verify(context.Background(), body, header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyTimeout(t *testing.T) {
	v := newTestVerifier()
	body := []byte(`{"id":"evt_1"}`)
	header := ComputeHeader(testSecret, time.Now(), body)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := v.Verify(ctx, body, header)
	assert.ErrorIs(t, err, ErrVerificationTimeout)
}

func TestVerifySecondV1EntryAccepted(t *testing.T) {
	// Secret rotation sends multiple v1 entries, any valid one passes.
	v := newTestVerifier()
	body := []byte(`{"id":"evt_1"}`)
	valid := ComputeHeader(testSecret, time.Now(), body)
	header := valid + ",v1=deadbeef"

	err := v.Verify(context.Background(), body, header)
	assert.NoError(t, err)
}
