package cache

import (
	"context"
	"sync"

	"github.com/DeegaLabs/cronos-shield-x402/types"
)

// Gate serializes concurrent flows on the same paymentId so two UI triggers
// cannot race into two settlement attempts (and two wallet prompts) for one
// charge. Waiters block until the in-flight flow finishes, then re-consult
// the store.
type Gate struct {
	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

func NewGate() *Gate {
	return &Gate{inFlight: make(map[string]chan struct{})}
}

// Acquire claims the paymentId. When another flow already holds it, Acquire
// blocks until that flow releases or ctx is canceled. The returned release
// function must be called exactly once.
func (g *Gate) Acquire(ctx context.Context, paymentID string) (release func(), err error) {
	for {
		g.mu.Lock()
		done, busy := g.inFlight[paymentID]
		if !busy {
			ch := make(chan struct{})
			g.inFlight[paymentID] = ch
			g.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					g.mu.Lock()
					delete(g.inFlight, paymentID)
					g.mu.Unlock()
					close(ch)
				})
			}, nil
		}
		g.mu.Unlock()

		select {
		case <-done:
			// Holder finished; loop and try to claim again.
		case <-ctx.Done():
			return nil, types.E(types.ErrTransientProvider,
				"canceled while waiting for an in-flight payment on the same paymentId")
		}
	}
}
