// Package natsclient manages the NATS connection behind rulenet's
// cross-process adapters: the JetStream key/value prototype store and the
// path notification publisher.
//
// # Connection lifecycle
//
// A Client moves through Disconnected, Connecting and Connected, and back to
// Reconnecting when the server goes away. Consecutive failures (default 5)
// open a circuit breaker; while it is open Connect and KeyValueBucket fail
// fast with ErrCircuitOpen. The backoff doubles each round up to the
// configured maximum.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithTimeout(2*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
// # Key/value buckets
//
// KeyValueBucket opens a bucket or creates it. Several processes starting at
// once may all try to create the same bucket; the losers of that race open
// the winner's bucket instead of failing.
//
//	kv, err := client.KeyValueBucket(ctx, jetstream.KeyValueConfig{Bucket: "RULENET_PROTOTYPES"})
//
// # Testing
//
// NewTestClient starts a NATS server with testcontainers and returns a
// connected client. Tests that use it should skip under testing.Short().
package natsclient
