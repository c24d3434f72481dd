package messenger

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/learnsl/enrollbot/internal/logger"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("messenger: queue closed")
	// ErrQueueFull indicates the queue is saturated and the message was not accepted.
	ErrQueueFull = errors.New("messenger: queue full")
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single message.
	MaxDuration time.Duration
	// OnFailure is invoked once per message that exhausts its retries.
	OnFailure func()
}

type job struct {
	ctx context.Context
	msg Message
}

// Dispatcher executes outbound sends asynchronously with bounded retries.
type Dispatcher struct {
	sender Sender
	opts   Options
	jobs   chan job
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(sender Sender, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{
		sender: sender,
		opts:   opts,
		jobs:   make(chan job, opts.QueueSize),
		stop:   make(chan struct{}),
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}

	return d
}

// Enqueue schedules the message for asynchronous delivery.
func (d *Dispatcher) Enqueue(ctx context.Context, msg Message) error {
	select {
	case <-d.stop:
		return ErrQueueClosed
	default:
	}

	j := job{ctx: ctx, msg: msg}

	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount returns the number of messages that ultimately failed.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops workers and waits for them to finish processing queued messages.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		close(d.jobs)
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handleJob(j)
	}
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	deadlineCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	var lastErr error
	attempts := d.opts.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := deadlineCtx.Err(); err != nil {
			lastErr = err
			break
		}

		err := d.sender.Send(deadlineCtx, j.msg)
		if err == nil {
			attrs := sendLogAttrs(ctx, j.msg)
			if attempt > 1 {
				attrs = append(attrs, slog.Int("attempts", attempt))
			}
			attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))
			logger.WA.LogAttrs(ctx, slog.LevelDebug, "message sent",
				append([]slog.Attr{slog.String("event", "send.success"), slog.String("status", "ok")}, attrs...)...)
			return
		}

		lastErr = err
		if !shouldRetry(err) || attempt == attempts {
			break
		}

		delay := d.opts.RetryBackoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-deadlineCtx.Done():
			timer.Stop()
			lastErr = deadlineCtx.Err()
			attempt = attempts
		case <-timer.C:
		}
	}

	d.errs.Add(1)
	if d.opts.OnFailure != nil {
		d.opts.OnFailure()
	}
	attrs := sendLogAttrs(ctx, j.msg)
	attrs = append(attrs,
		slog.String("err", lastErr.Error()),
		slog.String("err_code", classifyError(lastErr)),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("attempts", attempts),
	)
	logger.WA.LogAttrs(ctx, slog.LevelError, "message delivery failed",
		append([]slog.Attr{slog.String("event", "send.fail"), slog.String("status", "fail")}, attrs...)...)
}

func sendLogAttrs(ctx context.Context, msg Message) []slog.Attr {
	attrs := []slog.Attr{slog.String("wa_id", msg.To)}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	if len(msg.MediaURLs) > 0 {
		attrs = append(attrs, slog.Int("media", len(msg.MediaURLs)))
	}
	return attrs
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return "timeout"
		}
		if opErr.Op == "dial" {
			return "dial"
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout"
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			if kind := classifyError(urlErr.Err); kind != "" && kind != "api" {
				return kind
			}
		}
	}

	return "api"
}
