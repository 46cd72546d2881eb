package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/logging"
)

// Callback is a deferred side effect.
type Callback func(ctx context.Context) error

// Outcome reports how one callback went.
type Outcome struct {
	Name     string
	Err      error
	Panicked bool
	Duration time.Duration
}

// OK reports whether the callback returned without error or panic.
func (o Outcome) OK() bool {
	return o.Err == nil
}

type scheduled struct {
	name string
	cb   Callback
}

// PostCommit is an ordered queue of callbacks.
type PostCommit struct {
	mu     sync.Mutex
	queue  []scheduled
	logger *zap.Logger
}

// NewPostCommit returns an empty queue. A nil logger discards output.
func NewPostCommit(logger *zap.Logger) *PostCommit {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostCommit{logger: logger}
}

// Schedule queues cb under name. It is safe to call from several goroutines.
func (p *PostCommit) Schedule(name string, cb Callback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, scheduled{name: name, cb: cb})
}

// Pending reports how many callbacks are queued.
func (p *PostCommit) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Run drains the queue and executes each callback in order. The queue is
// cleared whatever happens, so a second Run only sees callbacks scheduled
// after the first began. Running an empty queue does nothing and logs nothing.
func (p *PostCommit) Run(ctx context.Context) []Outcome {
	p.mu.Lock()
	queue := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(queue) == 0 {
		return nil
	}

	outcomes := make([]Outcome, 0, len(queue))
	for _, s := range queue {
		o := p.runOne(ctx, s)
		if o.Err != nil {
			fields := append(logging.ContextFields(ctx),
				zap.String("callback", o.Name),
				zap.Bool("panicked", o.Panicked),
				zap.Duration("duration", o.Duration),
				zap.Error(o.Err),
			)
			p.logger.Error("post-commit callback failed", fields...)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (p *PostCommit) runOne(ctx context.Context, s scheduled) (o Outcome) {
	o.Name = s.name
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			o.Err = fmt.Errorf("callback %s panicked: %v", s.name, rec)
			o.Panicked = true
		}
		o.Duration = time.Since(start)
	}()
	o.Err = s.cb(ctx)
	return o
}
