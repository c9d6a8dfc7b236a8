// Package natsclient manages the NATS connection used by the shared prototype
// store and the path notification publisher.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/rulenet/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
)

// Client wraps a NATS connection and its JetStream context. Repeated
// connection or bucket failures open a circuit that fails fast until the
// backoff elapses.
type Client struct {
	url    string
	status atomic.Value // ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream

	failures         atomic.Int32
	circuitFailures  atomic.Int32
	circuitThreshold int32
	backoff          atomic.Value // time.Duration
	maxBackoff       time.Duration

	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string

	// cleared on close
	username string
	password string
	token    string

	mu      sync.RWMutex
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a client for url. It does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:              url,
		logger:           slog.Default().With("component", "natsclient"),
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		circuitThreshold: 5,
		maxBackoff:       time.Minute,
		timeout:          5 * time.Second,
		drainTimeout:     30 * time.Second,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.backoff.Store(time.Second)
	return c, nil
}

// URL returns the NATS server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return c.status.Load().(ConnectionStatus)
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
}

// IsHealthy returns true if the connection is healthy
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the total failure count since the last success
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Backoff returns the current circuit backoff
func (c *Client) Backoff() time.Duration {
	return c.backoff.Load().(time.Duration)
}

func (c *Client) recordFailure() {
	total := c.failures.Add(1)
	round := c.circuitFailures.Add(1)
	c.logger.Debug("NATS failure recorded", "failures", total, "round", round)

	if round < c.circuitThreshold {
		return
	}

	current := c.Backoff()
	next := current * 2
	if next > c.maxBackoff {
		next = c.maxBackoff
	}
	c.backoff.Store(next)
	c.circuitFailures.Store(0)

	prev := c.Status()
	if prev == StatusCircuitOpen {
		c.logger.Warn("Circuit breaker still open", "backoff", next)
		return
	}
	if c.status.CompareAndSwap(prev, StatusCircuitOpen) {
		c.logger.Warn("Circuit breaker opened", "failures", round, "backoff", current)
		time.AfterFunc(current, c.halfOpen)
	}
}

func (c *Client) resetCircuit() {
	c.failures.Store(0)
	c.circuitFailures.Store(0)
	c.backoff.Store(time.Second)
	if c.Status() == StatusCircuitOpen {
		c.setStatus(StatusDisconnected)
	}
}

// halfOpen lets the next Connect through after the backoff elapsed.
func (c *Client) halfOpen() {
	c.status.CompareAndSwap(StatusCircuitOpen, StatusDisconnected)
}

func (c *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setStatus(StatusReconnecting)
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.setStatus(StatusConnected)
			c.resetCircuit()
			c.logger.Info("NATS reconnected", "url", c.url)
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.setStatus(StatusDisconnected)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			c.logger.Error("NATS error", "error", err)
		}),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	if c.clientName != "" {
		opts = append(opts, nats.Name(c.clientName))
	}
	return opts
}

// Connect establishes the connection and its JetStream context.
func (c *Client) Connect(ctx context.Context) error {
	if c.Status() == StatusCircuitOpen {
		return ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.connectionOptions()...)
		done <- result{conn, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// a late connection is closed as soon as it arrives
		go func() {
			if late := <-done; late.conn != nil {
				late.conn.Close()
			}
		}()
		res.err = ctx.Err()
	}

	if res.err != nil {
		c.recordFailure()
		if c.Status() == StatusCircuitOpen {
			return ErrCircuitOpen
		}
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(res.err, "Client", "Connect", "establish connection")
	}

	js, err := jetstream.New(res.conn)
	if err != nil {
		res.conn.Close()
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "create JetStream context")
	}

	c.mu.Lock()
	c.conn = res.conn
	c.js = js
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Info("Connected to NATS", "url", c.url)
	return nil
}

// WaitForConnection waits until the client reports connected.
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.IsHealthy() {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "WaitForConnection",
				fmt.Sprintf("wait for %s", c.url))
		case <-ticker.C:
		}
	}
}

// Close drains and closes the connection. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.username = ""
	c.password = ""
	c.token = ""

	if c.conn == nil {
		c.setStatus(StatusDisconnected)
		return nil
	}

	drainTimeout := c.drainTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && remaining < drainTimeout {
			drainTimeout = remaining
		}
	}

	drained := make(chan error, 1)
	go func() {
		drained <- c.conn.Drain()
	}()

	var drainErr error
	select {
	case err := <-drained:
		drainErr = errors.Wrap(err, "Client", "Close", "drain connection")
	case <-time.After(drainTimeout):
		drainErr = errors.WrapTransient(errors.ErrConnectionTimeout, "Client", "Close",
			fmt.Sprintf("drain within %v", drainTimeout))
	case <-ctx.Done():
		drainErr = errors.Wrap(ctx.Err(), "Client", "Close", "drain connection")
	}
	if drainErr != nil {
		c.logger.Error("Drain failed, force closing", "error", drainErr)
	}

	c.conn.Close()
	c.conn = nil
	c.js = nil
	c.setStatus(StatusDisconnected)
	return drainErr
}

// Publish publishes data on subject.
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", fmt.Sprintf("publish to %s", subject))
	}
	return nil
}

// JetStream returns the JetStream context
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.js == nil {
		return nil, errors.WrapTransient(ErrNotConnected, "Client", "JetStream", "get JetStream context")
	}
	return c.js, nil
}

// KeyValueBucket returns the bucket named in cfg, creating it when it does
// not exist. A concurrent creator winning the race is not an error.
func (c *Client) KeyValueBucket(ctx context.Context, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	switch c.Status() {
	case StatusCircuitOpen:
		return nil, ErrCircuitOpen
	case StatusConnected:
	default:
		return nil, ErrNotConnected
	}

	js, err := c.JetStream()
	if err != nil {
		c.recordFailure()
		return nil, err
	}

	bucket, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		c.logger.Debug("Using existing KV bucket", "bucket", cfg.Bucket)
		c.resetCircuit()
		return bucket, nil
	}

	bucket, err = js.CreateKeyValue(ctx, cfg)
	if err != nil && isAlreadyExistsError(err) {
		c.logger.Debug("KV bucket created concurrently", "bucket", cfg.Bucket)
		bucket, err = js.KeyValue(ctx, cfg.Bucket)
	}
	if err != nil {
		c.recordFailure()
		return nil, errors.WrapTransient(err, "Client", "KeyValueBucket",
			fmt.Sprintf("open bucket %s", cfg.Bucket))
	}

	c.logger.Info("KV bucket ready", "bucket", cfg.Bucket)
	c.resetCircuit()
	return bucket, nil
}

func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, jetstream.ErrBucketExists) || stderrors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "bucket name already in use") ||
		strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "stream name already in use")
}
