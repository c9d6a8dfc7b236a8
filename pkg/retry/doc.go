// Package retry runs an operation with exponential backoff, retrying only
// failures the errors package classifies as transient.
//
// Invalid and fatal errors stop the loop at once, as does an error wrapped
// with Permanent:
//
//	err := retry.Do(ctx, retry.DefaultPolicy(), func(ctx context.Context) error {
//	    _, err := kv.Create(ctx, key, data)
//	    return err
//	})
//
// A cancelled context ends the loop during the backoff wait and the context
// error is returned joined with the last failure.
package retry
