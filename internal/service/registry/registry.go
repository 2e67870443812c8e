// Package registry holds the single piece of shared mutable state in the
// pipeline: which item is currently on auction. The scheduler is the only
// writer; the intake loop, publisher and HTTP layer read it.
package registry

import (
	"sync"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/auction"
)

// State is an atomic snapshot of the active auction. Queue names are
// always derived from the item id, never stored independently.
type State struct {
	Active          bool
	ItemID          string
	IntakeQueue     string
	ForwardingQueue string
}

// Registry is safe for concurrent use. All reads observe either the fully
// activated or fully deactivated state, never a mix.
type Registry struct {
	mu     sync.RWMutex
	itemID string
}

func New() *Registry {
	return &Registry{}
}

// Activate marks the item as live. Called only by the scheduler.
func (r *Registry) Activate(itemID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemID = itemID
}

// Deactivate clears the active auction. A no-op when already idle.
func (r *Registry) Deactivate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.itemID = ""
}

// CurrentItemID returns the live item, if any.
func (r *Registry) CurrentItemID() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.itemID, r.itemID != ""
}

// IntakeQueue returns the queue raw bids land on while an auction is live.
func (r *Registry) IntakeQueue() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.itemID == "" {
		return "", false
	}
	return auction.IntakeQueueName(r.itemID), true
}

// ForwardingQueue returns the queue validated bids are forwarded to.
func (r *Registry) ForwardingQueue() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.itemID == "" {
		return "", false
	}
	return auction.ForwardingQueueName(r.itemID), true
}

// Snapshot returns the full state under one lock acquisition.
func (r *Registry) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.itemID == "" {
		return State{}
	}
	return State{
		Active:          true,
		ItemID:          r.itemID,
		IntakeQueue:     auction.IntakeQueueName(r.itemID),
		ForwardingQueue: auction.ForwardingQueueName(r.itemID),
	}
}
