package agenda

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360/rulenet/errors"
	"github.com/c360/rulenet/linking"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "rulenet.paths"

// Publisher sends a message on a subject. *natsclient.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NATSNotifier publishes path transitions as JSON on
// "<subject>.linked" and "<subject>.unlinked".
type NATSNotifier struct {
	pub      Publisher
	subject  string
	timeout  time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
	failures atomic.Int64
}

// NotifierOption configures a NATSNotifier.
type NotifierOption func(*NATSNotifier)

// WithPublishTimeout bounds each publish.
func WithPublishTimeout(d time.Duration) NotifierOption {
	return func(n *NATSNotifier) {
		n.timeout = d
	}
}

// WithPublishRate caps publishes per second. Events over the rate wait for
// a token within the publish timeout and are counted as failures otherwise.
func WithPublishRate(perSecond float64, burst int) NotifierOption {
	return func(n *NATSNotifier) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			n.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithNotifierLogger sets the notifier's logger.
func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(n *NATSNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNATSNotifier creates a listener publishing through pub.
func NewNATSNotifier(pub Publisher, subject string, opts ...NotifierOption) (*NATSNotifier, error) {
	if pub == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "agenda", "NewNATSNotifier", "publisher required")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	n := &NATSNotifier{
		pub:     pub,
		subject: subject,
		timeout: 2 * time.Second,
		logger:  slog.Default().With("component", "agenda"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Subject returns the subject an event is published on.
func (n *NATSNotifier) Subject(ev linking.PathEvent) string {
	if ev.Linked {
		return n.subject + ".linked"
	}
	return n.subject + ".unlinked"
}

// PathChanged implements linking.Listener. Publish failures are logged and
// counted; they never reach the engine instance.
func (n *NATSNotifier) PathChanged(ev linking.PathEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		n.failures.Add(1)
		n.logger.Error("Failed to encode path event", "path", ev.Path, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	subject := n.Subject(ev)
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			n.failures.Add(1)
			n.logger.Warn("Path event exceeded publish rate",
				"subject", subject, "path", ev.Path, "rule", ev.Rule, "error", err)
			return
		}
	}
	if err := n.pub.Publish(ctx, subject, data); err != nil {
		n.failures.Add(1)
		n.logger.Warn("Failed to publish path event",
			"subject", subject, "path", ev.Path, "rule", ev.Rule, "error", err)
		return
	}
	n.logger.Debug("Published path event", "subject", subject, "path", ev.Path, "linked", ev.Linked)
}

// Failures returns how many events could not be published.
func (n *NATSNotifier) Failures() int64 {
	return n.failures.Load()
}
