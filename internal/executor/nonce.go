package executor

import (
	"context"
	"sync"
)

// nonceTracker hands out sequential nonces for one wallet. The first call
// reads the pending nonce from the node; later calls count locally until
// Reset forces a re-read.
type nonceTracker struct {
	mu    sync.Mutex
	next  uint64
	known bool
	fetch func(ctx context.Context) (uint64, error)
}

func newNonceTracker(fetch func(ctx context.Context) (uint64, error)) *nonceTracker {
	return &nonceTracker{fetch: fetch}
}

// Peek returns the nonce the next transaction must use without consuming it.
func (n *nonceTracker) Peek(ctx context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.known {
		v, err := n.fetch(ctx)
		if err != nil {
			return 0, err
		}
		n.next, n.known = v, true
	}
	return n.next, nil
}

// Consume marks nonce as used.
func (n *nonceTracker) Consume(nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.known && nonce >= n.next {
		n.next = nonce + 1
	}
}

// Reset discards the local counter.
func (n *nonceTracker) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.known = false
}
