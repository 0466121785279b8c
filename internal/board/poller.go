package board

import (
	"context"
	"sync"
	"time"
)

// Poller drives the silent background reload that runs while the embedded
// agent panel is open. Each tick reloads the board without any user-visible
// indicator and invokes onChange only when the fetched task list actually
// differs from the cached one. Stop must be called when the panel closes so
// no background work outlives it.
type Poller struct {
	engine   *Engine
	interval time.Duration
	onChange func()

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPoller creates a Poller. onChange may be nil.
func NewPoller(engine *Engine, interval time.Duration, onChange func()) *Poller {
	return &Poller{engine: engine, interval: interval, onChange: onChange}
}

// Start begins polling. A second Start without an intervening Stop is a
// no-op, preserving the at-most-one-poller invariant.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(ctx, p.done)
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are deliberately swallowed: a silent refresh never
			// surfaces a toast; the next user-initiated load reports them.
			changed, err := p.engine.ReloadIfChanged(ctx)
			if err == nil && changed && p.onChange != nil {
				p.onChange()
			}
		}
	}
}

// Stop cancels polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
