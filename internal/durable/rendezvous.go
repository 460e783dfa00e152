package durable

import (
	"context"
	"sync"
)

// Rendezvous is a process-local registry of per-flow, single-permit signal
// slots carrying a resume payload.
//
// It is not persisted: if the process restarts while a flow is waiting,
// the flow is discoverable via the log store's incomplete-flows query and
// will re-enter WaitingForSignal; a fresh signal must be delivered after
// restart for the flow to progress. A buffered capacity-1 channel per flow
// coalesces repeated wakeups instead of accumulating them.
type Rendezvous struct {
	mu    sync.Mutex
	slots map[string]*rendezvousSlot
}

type rendezvousSlot struct {
	mu      sync.Mutex
	permit  chan struct{}
	payload []byte
}

// NewRendezvous creates an empty registry.
func NewRendezvous() *Rendezvous {
	return &Rendezvous{slots: make(map[string]*rendezvousSlot)}
}

func (r *Rendezvous) slotFor(flowID string) *rendezvousSlot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[flowID]
	if !ok {
		s = &rendezvousSlot{permit: make(chan struct{}, 1)}
		r.slots[flowID] = s
	}
	return s
}

// Signal sets the payload for flowID and releases one permit.
//
// Idempotent within a single release: repeated signals before consumption
// overwrite the payload and do not accumulate permits beyond 1.
func (r *Rendezvous) Signal(flowID string, payload []byte) {
	s := r.slotFor(flowID)

	s.mu.Lock()
	s.payload = payload
	s.mu.Unlock()

	select {
	case s.permit <- struct{}{}:
	default:
	}
}

// Await blocks until a permit is available for flowID, consumes it, and
// returns the payload most recently set by Signal.
func (r *Rendezvous) Await(ctx context.Context, flowID string) ([]byte, error) {
	s := r.slotFor(flowID)

	select {
	case <-s.permit:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payload, nil
}

// Release removes the entry for flowID. Called when the owning flow
// reaches status=Complete at step 0.
func (r *Rendezvous) Release(flowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.slots, flowID)
}
