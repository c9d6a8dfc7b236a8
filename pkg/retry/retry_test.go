package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/rulenet/errors"
)

func fast(attempts int) Policy {
	return Policy{Attempts: attempts, Initial: time.Millisecond, Max: 4 * time.Millisecond, Multiplier: 2}
}

func transient() error {
	return errors.WrapTransient(errors.ErrStorageUnavailable, "test", "op", "bucket down")
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return transient()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), func(context.Context) error {
		calls++
		return transient()
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
}

func TestDo_StopsOnNonTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"invalid", errors.WrapInvalid(errors.ErrInvalidData, "test", "op", "decode")},
		{"fatal", errors.WrapFatal(errors.ErrStructural, "test", "op", "walk")},
		{"plain", stderrors.New("key exists")},
		{"permanent", Permanent(transient())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Do(context.Background(), fast(5), func(context.Context) error {
				calls++
				return tt.err
			})
			assert.Equal(t, 1, calls)
			assert.Equal(t, tt.err, err)
		})
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 10, Initial: time.Hour, Max: time.Hour, Multiplier: 1}

	calls := 0
	err := Do(ctx, p, func(context.Context) error {
		calls++
		cancel()
		return transient()
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
}

func TestDo_InvalidPolicy(t *testing.T) {
	err := Do(context.Background(), Policy{Initial: -1}, func(context.Context) error { return nil })
	assert.True(t, errors.IsInvalid(err))

	err = Do(context.Background(), Policy{Initial: time.Second, Max: time.Millisecond}, func(context.Context) error { return nil })
	assert.True(t, errors.IsInvalid(err))
}

func TestDoValue(t *testing.T) {
	calls := 0
	v, err := DoValue(context.Background(), fast(2), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "partial", transient()
		}
		return "bucket", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "bucket", v)
}

func TestPolicy_Backoff(t *testing.T) {
	p, err := Policy{Attempts: 5, Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 2}.normalize()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Millisecond, p.backoff(1))
	assert.Equal(t, 20*time.Millisecond, p.backoff(2))
	assert.Equal(t, 40*time.Millisecond, p.backoff(3))
	assert.Equal(t, 50*time.Millisecond, p.backoff(4))
	assert.Equal(t, 50*time.Millisecond, p.backoff(10))

	p.Jitter = true
	for i := 0; i < 20; i++ {
		d := p.backoff(1)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 13*time.Millisecond)
	}
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := transient()
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
	assert.False(t, IsPermanent(base))
}
