package detection

import (
	"sync"

	"token-detector/internal/observability"
)

// Gate tracks whether detection may run: the session is unlocked and at
// least one user surface is open.
type Gate struct {
	mu         sync.Mutex
	unlocked   bool
	open       bool
	onActivate func()
}

// NewGate creates a gate with initial flags.
func NewGate(unlocked, open bool) *Gate {
	g := &Gate{unlocked: unlocked, open: open}
	observability.SetActive(unlocked && open)
	return g
}

// OnActivate sets the callback run when the gate turns active.
func (g *Gate) OnActivate(fn func()) {
	g.mu.Lock()
	g.onActivate = fn
	g.mu.Unlock()
}

// Active reports unlocked AND open.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unlocked && g.open
}

// SetUnlocked updates the session flag.
func (g *Gate) SetUnlocked(unlocked bool) {
	g.update(func() { g.unlocked = unlocked })
}

// SetOpen updates the surface flag.
func (g *Gate) SetOpen(open bool) {
	g.update(func() { g.open = open })
}

func (g *Gate) update(set func()) {
	g.mu.Lock()
	before := g.unlocked && g.open
	set()
	after := g.unlocked && g.open
	fn := g.onActivate
	g.mu.Unlock()

	if before == after {
		return
	}
	observability.SetActive(after)
	if after && fn != nil {
		fn()
	}
}
