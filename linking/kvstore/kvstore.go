// Package kvstore shares segment prototypes between processes through a NATS
// JetStream key/value bucket.
//
// Registration is first-writer-wins across the whole cluster: a prototype is
// written with a create-only operation and a process that loses the race
// reads back the winner's copy.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/linking"
	"github.com/c360/rulenet/natsclient"
	"github.com/c360/rulenet/pkg/retry"
)

// DefaultBucket is the bucket used when none is configured.
const DefaultBucket = "RULENET_PROTOTYPES"

// Store is a linking.PrototypeStore over a JetStream key/value bucket.
type Store struct {
	kv      jetstream.KeyValue
	timeout time.Duration
	retry   retry.Policy
	logger  *slog.Logger
}

var _ linking.PrototypeStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTimeout bounds every bucket operation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithRetry sets the backoff applied to transient bucket failures.
func WithRetry(p retry.Policy) Option {
	return func(s *Store) {
		s.retry = p
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New wraps an open bucket.
func New(kv jetstream.KeyValue, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		timeout: 5 * time.Second,
		retry:   retry.DefaultPolicy(),
		logger:  slog.Default().With("component", "kvstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open gets or creates bucket through client and wraps it.
func Open(ctx context.Context, client *natsclient.Client, bucket string, opts ...Option) (*Store, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}
	kv, err := retry.DoValue(ctx, retry.Startup(), func(ctx context.Context) (jetstream.KeyValue, error) {
		kv, err := client.KeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "rulenet segment prototypes",
			History:     1,
		})
		if errors.Is(err, natsclient.ErrNotConnected) || errors.Is(err, natsclient.ErrCircuitOpen) {
			return nil, retry.Permanent(err)
		}
		return kv, err
	})
	if err != nil {
		return nil, errors.Wrap(err, "kvstore", "Open", fmt.Sprintf("open bucket %s", bucket))
	}
	return New(kv, opts...), nil
}

func (s *Store) context() (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(context.Background(), s.timeout)
	}
	return context.WithCancel(context.Background())
}

// Lookup implements linking.PrototypeStore.
func (s *Store) Lookup(key string) (*linking.Prototype, bool, error) {
	ctx, cancel := s.context()
	defer cancel()

	p, err := s.get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return p, true, nil
}

// Register implements linking.PrototypeStore.
func (s *Store) Register(key string, p *linking.Prototype) (*linking.Prototype, bool, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, false, errors.WrapInvalid(err, "kvstore", "Register", "encode prototype")
	}

	ctx, cancel := s.context()
	defer cancel()

	err = retry.Do(ctx, s.retry, func(ctx context.Context) error {
		_, err := s.kv.Create(ctx, encodeKey(key), data)
		if err != nil && !natsclient.IsKVConflictError(err) {
			return errors.WrapTransient(err, "kvstore", "Register", fmt.Sprintf("create %s", key))
		}
		return err
	})
	if err == nil {
		return p, true, nil
	}
	if !natsclient.IsKVConflictError(err) {
		return nil, false, err
	}

	existing, err := s.get(ctx, key)
	if err != nil {
		return nil, false, errors.WrapTransient(err, "kvstore", "Register", fmt.Sprintf("read back %s", key))
	}
	s.logger.Debug("Prototype already registered", "key", key)
	return existing, false, nil
}

func (s *Store) get(ctx context.Context, key string) (*linking.Prototype, error) {
	entry, err := retry.DoValue(ctx, s.retry, func(ctx context.Context) (jetstream.KeyValueEntry, error) {
		entry, err := s.kv.Get(ctx, encodeKey(key))
		if err != nil && !natsclient.IsKVNotFoundError(err) {
			return nil, errors.WrapTransient(err, "kvstore", "get", fmt.Sprintf("get %s", key))
		}
		return entry, err
	})
	if err != nil {
		return nil, err
	}

	var p linking.Prototype
	if err := json.Unmarshal(entry.Value(), &p); err != nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "kvstore", "get",
			fmt.Sprintf("decode %s: %v", key, err))
	}
	return &p, nil
}

// encodeKey maps a prototype key onto the key alphabet NATS accepts.
// Unsupported bytes, '=' itself and a leading or trailing '.' become "=XX".
func encodeKey(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '/',
			c == '.' && i > 0 && i < len(key)-1:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "=%02X", c)
		}
	}
	return b.String()
}
