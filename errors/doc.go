// Package errors provides standardized error handling for rulenet.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input documents, non-retryable), and Fatal (the rule network is
// inconsistent and construction must stop).
//
// The segment and path linking core is deterministic computation over an
// already-validated graph, so it only ever produces Fatal errors. A missing
// sub-query or a node with a sink shape that its type does not allow means the
// network was built incorrectly upstream. Transient errors exist for the NATS
// adapters (the key/value prototype store and the notification publisher).
//
// # Quick Start
//
// Return a sentinel for a known condition, wrapped with context:
//
//	if !ok {
//	    return errors.WrapFatal(errors.ErrQueryNotFound, "Instance", "GetQuerySegment",
//	        fmt.Sprintf("resolve query %q", name))
//	}
//
// Check the classification at the boundary:
//
//	if _, err := inst.GetOrCreateSegment(id); err != nil {
//	    if errors.IsFatal(err) {
//	        logger.Error("network is inconsistent", "error", err)
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: <cause>"
//
// The wrapped chain keeps the sentinel reachable through errors.Is.
package errors
