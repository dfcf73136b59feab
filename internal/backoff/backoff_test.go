package backoff

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Delay(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"first retry", Policy{Base: time.Second}, 1, time.Second},
		{"doubles", Policy{Base: time.Second}, 3, 4 * time.Second},
		{"uncapped grows", Policy{Base: time.Second}, 8, 128 * time.Second},
		{"capped", Policy{Base: 2 * time.Second, Cap: 60 * time.Second}, 6, 60 * time.Second},
		{"below cap", Policy{Base: 2 * time.Second, Cap: 60 * time.Second}, 4, 16 * time.Second},
		{"zero base", Policy{}, 5, 0},
		{"attempt zero", Policy{Base: time.Second}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestPolicy_DelayLargeAttemptDoesNotOverflow(t *testing.T) {
	d := Policy{Base: time.Hour}.Delay(200)
	assert.Greater(t, d, time.Duration(0))
}

func TestPolicy_Jitter(t *testing.T) {
	p := Policy{Base: time.Second, Jitter: 0.5}
	for i := 0; i < 100; i++ {
		d := p.Delay(1)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}

	capped := Policy{Base: time.Second, Cap: time.Second, Jitter: 0.5}
	for i := 0; i < 100; i++ {
		assert.LessOrEqual(t, capped.Delay(4), time.Second)
	}
}

func TestPolicy_Attempts(t *testing.T) {
	assert.Equal(t, 1, Policy{}.Attempts())
	assert.Equal(t, 3, DefaultTransient().Attempts())
	assert.Equal(t, 60*time.Second, DefaultRateLimit().Cap)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
