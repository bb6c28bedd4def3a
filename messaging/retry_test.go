package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRetryPolicyNormalizes(t *testing.T) {
	tests := []struct {
		name         string
		retries      int
		interval     time.Duration
		wantAttempts int
		wantInterval time.Duration
	}{
		{"defaults preserved", 5, time.Second, 5, time.Second},
		{"zero retries allowed", 0, time.Second, 0, time.Second},
		{"negative retries default to 3", -1, time.Second, 3, time.Second},
		{"zero interval defaults to 2s", 2, 0, 2, 2 * time.Second},
		{"negative interval defaults to 2s", 2, -time.Second, 2, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewRetryPolicy(tt.retries, tt.interval)
			assert.Equal(t, tt.wantAttempts, p.MaxAttempts)
			assert.Equal(t, tt.wantInterval, p.Interval)
		})
	}
}

func TestShouldRetryBoundaries(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2}

	assert.True(t, p.ShouldRetry(1))
	assert.True(t, p.ShouldRetry(2))
	assert.False(t, p.ShouldRetry(3))

	zero := RetryPolicy{MaxAttempts: 0}
	assert.False(t, zero.ShouldRetry(1))
}

func TestWaitHonorsContext(t *testing.T) {
	p := RetryPolicy{Interval: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitElapsesInterval(t *testing.T) {
	p := RetryPolicy{Interval: 5 * time.Millisecond}

	start := time.Now()
	err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
