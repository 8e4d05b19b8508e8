package chclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowhouse/pkg/config"
	"github.com/ajitpratap0/arrowhouse/pkg/errors"
)

func TestRetryPolicy(t *testing.T) {
	connErr := errors.New(errors.ErrorTypeConnection, "connection reset")
	queryErr := errors.New(errors.ErrorTypeQuery, "syntax error")

	tests := []struct {
		name      string
		failures  []error
		wantCalls int
		wantErr   errors.ErrorType
	}{
		{"succeeds first time", nil, 1, ""},
		{"recovers after transport failure", []error{connErr, connErr}, 3, ""},
		{"gives up after max attempts", []error{connErr, connErr, connErr, connErr}, 3, errors.ErrorTypeConnection},
		{"does not retry query errors", []error{queryErr}, 1, errors.ErrorTypeQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp := NewRetryPolicy(3, time.Millisecond)
			calls := 0
			err := rp.Execute(context.Background(), func() error {
				calls++
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, errors.TypeOf(err))
		})
	}
}

func TestRetryPolicyCancelled(t *testing.T) {
	rp := NewRetryPolicy(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := rp.Execute(ctx, func() error {
		calls++
		cancel()
		return errors.New(errors.ErrorTypeConnection, "timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	rp := NewRetryPolicy(10, 100*time.Millisecond)
	rp.MaxDelay = time.Second

	for attempt := 0; attempt < 8; attempt++ {
		base := float64(100*time.Millisecond) * float64(int(1)<<attempt)
		if base > float64(time.Second) {
			base = float64(time.Second)
		}
		d := rp.calculateDelay(attempt)
		assert.GreaterOrEqual(t, float64(d), base*0.75-1, "attempt %d", attempt)
		assert.LessOrEqual(t, float64(d), base*1.25+1, "attempt %d", attempt)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	rp := RetryPolicyFromConfig(config.ReliabilityConfig{
		RetryAttempts:   2,
		RetryDelay:      50 * time.Millisecond,
		RetryMultiplier: 3,
		MaxRetryDelay:   time.Second,
	})
	assert.Equal(t, 3, rp.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, rp.InitialDelay)
	assert.Equal(t, 3.0, rp.Multiplier)
	assert.Equal(t, time.Second, rp.MaxDelay)

	rp = RetryPolicyFromConfig(config.ReliabilityConfig{})
	assert.Equal(t, 1, rp.MaxAttempts)
	assert.Equal(t, 2.0, rp.Multiplier)
}
