package postmint

import "sync"

// Guard records the checkout sessions whose pipeline has already started.
type Guard struct {
	mu      sync.Mutex
	started map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{started: make(map[string]struct{})}
}

// TryAcquire reports whether the caller is the first to claim sessionID.
func (g *Guard) TryAcquire(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.started[sessionID]; ok {
		return false
	}
	g.started[sessionID] = struct{}{}
	return true
}

func (g *Guard) Forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.started, sessionID)
}
