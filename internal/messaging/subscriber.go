package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ledgerd/internal/orchestrator"
)

// Handler processes one inbound job.
type Handler interface {
	Handle(ctx context.Context, job orchestrator.Job) error
}

// HandlerFunc adapts a function to Handler, e.g. Pipeline.ProcessAsync.
type HandlerFunc func(ctx context.Context, job orchestrator.Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job orchestrator.Job) error {
	return f(ctx, job)
}

const drainTimeout = 30 * time.Second

// ErrAlreadyStarted is returned by Start on a running subscriber.
var ErrAlreadyStarted = errors.New("subscriber already started")

// Subscriber consumes inbound jobs from NATS and runs them on a worker pool
// of bounded size. When every worker is busy the NATS callback blocks, which
// leaves further messages queued on the connection.
type Subscriber struct {
	nc          *nats.Conn
	handler     Handler
	subject     string
	queue       string
	concurrency int
	timeout     time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	sub     *nats.Subscription
	workers *pool.Pool
	ctx     context.Context
	cancel  context.CancelFunc
}

// SubscriberOption configures a Subscriber.
type SubscriberOption func(*Subscriber)

// WithSubject sets the inbound subject.
func WithSubject(subject string) SubscriberOption {
	return func(s *Subscriber) {
		if subject != "" {
			s.subject = subject
		}
	}
}

// WithQueueGroup sets the queue group shared by all workers.
func WithQueueGroup(queue string) SubscriberOption {
	return func(s *Subscriber) {
		if queue != "" {
			s.queue = queue
		}
	}
}

// WithConcurrency bounds the number of jobs handled at once.
func WithConcurrency(n int) SubscriberOption {
	return func(s *Subscriber) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithJobTimeout bounds each job. Zero disables the bound.
func WithJobTimeout(d time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SubscriberOption {
	return func(s *Subscriber) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSubscriber creates a Subscriber. Call Start to begin consuming.
func NewSubscriber(nc *nats.Conn, h Handler, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		nc:          nc,
		handler:     h,
		subject:     DefaultInboundSubject,
		queue:       DefaultQueueGroup,
		concurrency: 4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the inbound subject. Jobs run with a context derived
// from ctx; cancelling ctx aborts running jobs.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return ErrAlreadyStarted
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.workers = pool.New().WithMaxGoroutines(s.concurrency)

	sub, err := s.nc.QueueSubscribe(s.subject, s.queue, s.onMessage)
	if err != nil {
		s.cancel()
		return fmt.Errorf("subscribe %s: %w", s.subject, err)
	}
	s.sub = sub

	s.logger.Info("inbound subscriber started",
		zap.String("subject", s.subject),
		zap.String("queue", s.queue),
		zap.Int("concurrency", s.concurrency))
	return nil
}

// Stop drains the subscription and waits for running jobs to finish.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	sub, workers, cancel := s.sub, s.workers, s.cancel
	s.sub = nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}

	err := sub.Drain()
	// Drain returns before pending callbacks have run.
	deadline := time.Now().Add(drainTimeout)
	for sub.IsValid() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	workers.Wait()
	cancel()

	if err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	return nil
}

func (s *Subscriber) onMessage(msg *nats.Msg) {
	var job orchestrator.Job
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		s.logger.Warn("dropping malformed inbound job",
			zap.String("subject", msg.Subject),
			zap.Error(err))
		return
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	s.workers.Go(func() {
		s.run(job)
	})
}

func (s *Subscriber) run(job orchestrator.Job) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("inbound job panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r))
		}
	}()

	if err := s.handler.Handle(ctx, job); err != nil {
		s.logger.Error("inbound job failed",
			zap.String("job_id", job.ID),
			zap.String("channel", job.Message.Channel),
			zap.Error(err))
	}
}

// Publisher enqueues inbound channel messages as jobs.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a Publisher for subject, DefaultInboundSubject when
// empty.
func NewPublisher(nc *nats.Conn, subject string) *Publisher {
	if subject == "" {
		subject = DefaultInboundSubject
	}
	return &Publisher{nc: nc, subject: subject}
}

// Enqueue publishes msg as a new job and returns it.
func (p *Publisher) Enqueue(ctx context.Context, msg orchestrator.ChannelMessage) (orchestrator.Job, error) {
	job := orchestrator.Job{ID: uuid.NewString(), Message: msg}
	data, err := json.Marshal(job)
	if err != nil {
		return job, fmt.Errorf("marshal job: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return job, fmt.Errorf("publish job: %w", err)
	}
	if err := flush(ctx, p.nc); err != nil {
		return job, fmt.Errorf("flush job: %w", err)
	}
	return job, nil
}
