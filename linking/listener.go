package linking

import "github.com/c360/rulenet/network"

// PathEvent reports a path transition between unlinked and fully linked.
type PathEvent struct {
	Instance   string         `json:"instance"`
	Network    string         `json:"network"`
	Path       PathID         `json:"path"`
	End        network.NodeID `json:"end"`
	Rule       string         `json:"rule,omitempty"`
	Subnetwork bool           `json:"subnetwork"`
	Linked     bool           `json:"linked"`
}

// Listener receives path transitions. Calls happen after the instance lock
// is released, in the order the transitions occurred, at most once per
// transition.
type Listener interface {
	PathChanged(ev PathEvent)
}
