package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/district-feed/internal/gateway"
	"github.com/d60-Lab/district-feed/internal/model"
	"github.com/d60-Lab/district-feed/pkg/logger"
)

var ErrDelivery = errors.New("notification delivery failed")

type Options struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	RatePerSecond  float64
	InitialBackoff time.Duration
	JobTimeout     time.Duration
}

type job struct {
	id    string
	msg   Message
	enqAt time.Time
}

// Dispatcher delivers notifications off the caller's path. Enqueue never
// blocks; a full queue drops the message with a warning. Failures are
// logged and reported, never returned to whoever triggered the message.
type Dispatcher struct {
	sender  gateway.Sender
	adminID int64
	opts    Options
	limiter *rate.Limiter
	ch      chan job
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewDispatcher(sender gateway.Sender, adminID int64, opts Options) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 25
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 30 * time.Second
	}
	return &Dispatcher{
		sender:  sender,
		adminID: adminID,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		ch:      make(chan job, opts.QueueSize),
		stopCh:  make(chan struct{}),
	}
}

// Start 启动 worker；返回的停止函数会先处理完已入队的消息，直到 ctx 结束
func (d *Dispatcher) Start() func(context.Context) error {
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.loop()
	}

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(d.stopCh) })
		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("stopping dispatcher with %d queued: %w", len(d.ch), ctx.Err())
		}
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case j := <-d.ch:
			d.process(j)
		case <-d.stopCh:
			for {
				select {
				case j := <-d.ch:
					d.process(j)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) process(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.JobTimeout)
	defer cancel()

	if err := d.Deliver(ctx, j.msg); err != nil {
		logger.Error("notification dropped",
			zap.String("job", j.id),
			zap.Int64("recipient", j.msg.Recipient),
			zap.Duration("queued_for", time.Since(j.enqAt)),
			zap.Error(err),
		)
		sentry.CaptureException(err)
		return
	}
	logger.Debug("notification delivered", zap.String("job", j.id), zap.Int64("recipient", j.msg.Recipient))
}

// NotifyNewPending queues the admin review message for post.
func (d *Dispatcher) NotifyNewPending(post *model.Post) {
	d.Enqueue(RenderPending(post, d.adminID))
}

// NotifyDecision queues the outcome confirmation for the decision-maker.
func (d *Dispatcher) NotifyDecision(post *model.Post, actorID int64) {
	d.Enqueue(RenderDecision(post, actorID))
}

func (d *Dispatcher) Enqueue(msg Message) bool {
	j := job{id: uuid.NewString(), msg: msg, enqAt: time.Now()}
	select {
	case d.ch <- j:
		return true
	default:
		logger.Warn("notify queue full, drop message", zap.String("job", j.id), zap.Int64("recipient", msg.Recipient))
		return false
	}
}

// Deliver sends msg synchronously, rate limited and retried with exponential backoff.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.InitialBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := d.limiter.Wait(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, d.send(ctx, msg)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.opts.MaxAttempts)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}

// DeliverBatch sends msgs in order and returns how many were delivered.
func (d *Dispatcher) DeliverBatch(ctx context.Context, msgs []Message) (int, error) {
	var errs []error
	delivered := 0
	for _, m := range msgs {
		if err := d.Deliver(ctx, m); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

func (d *Dispatcher) send(ctx context.Context, msg Message) error {
	if msg.MediaRef != "" {
		return d.sender.SendMedia(ctx, msg.Recipient, msg.MediaRef, msg.Text, msg.Buttons)
	}
	return d.sender.SendText(ctx, msg.Recipient, msg.Text, msg.Buttons)
}

// QueueLen 返回当前队列长度（采样值）
func (d *Dispatcher) QueueLen() int { return len(d.ch) }
