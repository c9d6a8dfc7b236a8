// Package agenda adapts the path transition callback of an engine instance to
// the consumers that decide what to fire: in-process recorders, fan-out to
// several listeners, plain functions and a NATS publisher.
package agenda

import (
	"sync"

	"github.com/c360/rulenet/linking"
)

// Func adapts a function to linking.Listener.
type Func func(ev linking.PathEvent)

// PathChanged implements linking.Listener.
func (f Func) PathChanged(ev linking.PathEvent) { f(ev) }

// Fanout delivers every event to each listener in order.
type Fanout []linking.Listener

// PathChanged implements linking.Listener.
func (f Fanout) PathChanged(ev linking.PathEvent) {
	for _, l := range f {
		if l != nil {
			l.PathChanged(ev)
		}
	}
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []linking.PathEvent
}

// PathChanged implements linking.Listener.
func (r *Recorder) PathChanged(ev linking.PathEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []linking.PathEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]linking.PathEvent(nil), r.events...)
}

// Linked returns the rules whose paths are currently linked, in the order
// they last became linked. Sub-network paths are not rules and are skipped.
func (r *Recorder) Linked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var order []linking.PathID
	state := make(map[linking.PathID]linking.PathEvent)
	for _, ev := range r.events {
		if ev.Subnetwork {
			continue
		}
		if _, seen := state[ev.Path]; seen {
			for i, id := range order {
				if id == ev.Path {
					order = append(order[:i], order[i+1:]...)
					break
				}
			}
		}
		order = append(order, ev.Path)
		state[ev.Path] = ev
	}

	var rules []string
	for _, id := range order {
		if ev := state[id]; ev.Linked {
			rules = append(rules, ev.Rule)
		}
	}
	return rules
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
