package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/c360/rulenet/errors"
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so Do returns it without retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return stderrors.As(err, &pe)
}

// Policy describes how often and how far apart attempts are made.
type Policy struct {
	Attempts   int           // total attempts, values below 1 mean one
	Initial    time.Duration // first backoff
	Max        time.Duration // backoff ceiling
	Multiplier float64
	Jitter     bool // add up to a quarter of the backoff at random
}

// DefaultPolicy suits a single bucket operation on a healthy connection.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Initial:    50 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Startup suits dependencies that may still be coming up, like a NATS server
// started alongside the process.
func Startup() Policy {
	return Policy{
		Attempts:   10,
		Initial:    100 * time.Millisecond,
		Max:        2 * time.Second,
		Multiplier: 1.5,
		Jitter:     true,
	}
}

// Once makes a single attempt.
func Once() Policy {
	return Policy{Attempts: 1}
}

func (p Policy) normalize() (Policy, error) {
	if p.Initial < 0 || p.Max < 0 || p.Multiplier < 0 {
		return p, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "negative backoff setting")
	}
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Initial == 0 {
		p.Initial = 50 * time.Millisecond
	}
	if p.Max == 0 {
		p.Max = time.Second
	}
	if p.Max < p.Initial {
		return p, errors.WrapInvalid(errors.ErrInvalidConfig, "retry", "Do", "max backoff below initial backoff")
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Multiplier > 100 {
		p.Multiplier = 100
	}
	return p, nil
}

// backoff returns the wait after the given attempt, counting from 1.
func (p Policy) backoff(attempt int) time.Duration {
	d := float64(p.Initial)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
		if d >= float64(p.Max) {
			d = float64(p.Max)
			break
		}
	}
	wait := time.Duration(d)
	if p.Jitter && wait >= 4 {
		randMu.Lock()
		wait += time.Duration(randSource.Int63n(int64(wait / 4)))
		randMu.Unlock()
	}
	return wait
}

// Do calls fn until it succeeds, returns a non-transient error, or the
// attempts run out.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p, err := p.normalize()
	if err != nil {
		return err
	}

	var last error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if IsPermanent(last) || !errors.IsTransient(last) {
			return last
		}
		if attempt == p.Attempts {
			break
		}

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return stderrors.Join(last, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.Attempts, last)
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			result = v
		}
		return err
	})
	return result, err
}
