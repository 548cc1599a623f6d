package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type slowNotifier struct {
	delay time.Duration
	err   error
}

func (s *slowNotifier) Send(ctx context.Context, to, subject, body string) error {
	select {
	case <-time.After(s.delay):
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestWithTimeoutPassesThrough(t *testing.T) {
	n := WithTimeout(&slowNotifier{delay: time.Millisecond}, time.Second)
	err := n.Send(context.Background(), "fan@example.com", "subject", "body")
	assert.NoError(t, err)
}

func TestWithTimeoutPropagatesError(t *testing.T) {
	sendErr := errors.New("smtp unreachable")
	n := WithTimeout(&slowNotifier{delay: time.Millisecond, err: sendErr}, time.Second)
	err := n.Send(context.Background(), "fan@example.com", "subject", "body")
	assert.ErrorIs(t, err, sendErr)
}

func TestWithTimeoutExpires(t *testing.T) {
	n := WithTimeout(&slowNotifier{delay: time.Second}, 10*time.Millisecond)
	err := n.Send(context.Background(), "fan@example.com", "subject", "body")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestLogNotifierNeverFails(t *testing.T) {
	err := LogNotifier{}.Send(context.Background(), "fan@example.com", "subject", "body")
	assert.NoError(t, err)
}

func TestNewMessageAssignsID(t *testing.T) {
	m1 := NewMessage("a@b.c", "s", "b")
	m2 := NewMessage("a@b.c", "s", "b")
	assert.NotEmpty(t, m1.ID)
	assert.NotEqual(t, m1.ID, m2.ID)
}
