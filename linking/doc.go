// Package linking builds the segment and path memories of a rule network
// for one engine instance and keeps their link state.
//
// # Overview
//
// A segment is a maximal unbranched run of nodes. Every member that can
// hold matchable data owns one bit of the segment's linked mask, and the
// segment is linked once every bit of its all-linked test mask is set. A
// path runs from a root adapter to one terminal or right input adapter and
// is linked once every tested segment on it is linked. Paths ending in a
// right input adapter describe sub-networks; their link state is pushed
// into the beta nodes they gate.
//
// Segments are built lazily:
//
//	inst := linking.NewInstance(net,
//	    linking.WithLogger(logger),
//	    linking.WithListener(listener),
//	)
//	defer inst.Close()
//
//	seg, err := inst.GetOrCreateSegment(nodeID)
//	if err != nil {
//	    return err // fatal: the network is inconsistent
//	}
//
// # Prototypes
//
// The layout of a segment depends only on the topology, so instances of the
// same network can share it through a PrototypeStore. NewCacheStore keeps
// prototypes in process; kvstore.New shares them through NATS JetStream.
// Registration is first-writer-wins and a losing writer keeps its own,
// identical, segment.
//
// # Concurrency
//
// An Instance is safe for concurrent use. Each call holds the instance lock
// while it builds or links, and dispatches the path transitions it caused
// to the Listener after releasing it.
package linking
