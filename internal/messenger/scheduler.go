package messenger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/learnsl/enrollbot/internal/logger"
)

// Scheduler fires messages in the future on process-local timers. Pending
// sends are lost on restart; the terminal-state transcript is the durability
// boundary, not the follow-up reminder.
type Scheduler struct {
	dispatcher *Dispatcher

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	closed bool
}

// NewScheduler wires a Scheduler to the dispatcher.
func NewScheduler(dispatcher *Dispatcher) *Scheduler {
	return &Scheduler{
		dispatcher: dispatcher,
		timers:     make(map[*time.Timer]struct{}),
	}
}

// After enqueues msg on the dispatcher once delay elapses.
func (s *Scheduler) After(ctx context.Context, delay time.Duration, msg Message) {
	if delay <= 0 {
		s.enqueue(ctx, msg)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()
		s.enqueue(ctx, msg)
	})
	s.timers[timer] = struct{}{}
	s.mu.Unlock()

	logger.WA.LogAttrs(ctx, slog.LevelDebug, "follow-up scheduled",
		slog.String("event", "send.schedule"),
		slog.String("wa_id", msg.To),
		slog.Duration("delay", delay),
	)
}

func (s *Scheduler) enqueue(ctx context.Context, msg Message) {
	if err := s.dispatcher.Enqueue(ctx, msg); err != nil {
		logger.WA.LogAttrs(ctx, slog.LevelWarn, "follow-up dropped",
			slog.String("event", "send.schedule"),
			slog.String("status", "fail"),
			slog.String("wa_id", msg.To),
			slog.String("err", err.Error()),
		)
	}
}

// Close cancels all pending timers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
}
