package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingSignature    = errors.New("missing signature header")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrVerificationTimeout = errors.New("signature verification timed out")
)

// Verifier checks the provider's signature header against the exact raw
// request bytes. The header format is "t=<unix>,v1=<hex hmac>" and the
// signed payload is "<t>.<raw body>". The caller must pass the wire bytes
// through untouched; verifying a re-serialized body is a correctness bug.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	timeout   time.Duration
	now       func() time.Time
}

func NewVerifier(secret string, tolerance, timeout time.Duration) *Verifier {
	return &Verifier{
		secret:    []byte(secret),
		tolerance: tolerance,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (v *Verifier) Verify(ctx context.Context, body []byte, header string) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return ErrVerificationTimeout
	}

	done := make(chan error, 1)
	go func() {
		done <- v.check(body, header)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrVerificationTimeout
	}
}

func (v *Verifier) check(body []byte, header string) error {
	ts, sigs, err := parseHeader(header)
	if err != nil {
		return ErrInvalidSignature
	}

	if v.tolerance > 0 {
		skew := v.now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.tolerance {
			return ErrInvalidSignature
		}
	}

	expected := computeMAC(v.secret, ts, body)
	for _, s := range sigs {
		raw, err := hex.DecodeString(s)
		if err != nil {
			continue
		}
		if hmac.Equal(raw, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func parseHeader(header string) (int64, []string, error) {
	var ts int64
	var hasTS bool
	var sigs []string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			v, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("bad timestamp: %w", err)
			}
			ts = v
			hasTS = true
		case "v1":
			sigs = append(sigs, kv[1])
		}
	}

	if !hasTS || len(sigs) == 0 {
		return 0, nil, errors.New("header is missing t= or v1= entries")
	}
	return ts, sigs, nil
}

func computeMAC(secret []byte, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// ComputeHeader builds a valid signature header for the given body. Used by
// tests and local replay tooling.
func ComputeHeader(secret string, t time.Time, body []byte) string {
	ts := t.Unix()
	sig := computeMAC([]byte(secret), ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(sig))
}
