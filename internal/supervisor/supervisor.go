package supervisor

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"wagate/internal/bus"
	"wagate/internal/wa"
)

// Supervisor restarts the messaging client after an unexpected
// disconnect: one teardown-and-reinitialize per disconnect event, fired
// after a fixed backoff. A failed restart is logged and not retried; the
// next disconnect event arms a fresh restart.
type Supervisor struct {
	client     wa.MessagingClient
	bus        *bus.Bus
	backoff    time.Duration
	logger     *zap.Logger
	cancel     context.CancelFunc
	restarting atomic.Bool
}

// New creates a supervisor with the given restart backoff.
func New(client wa.MessagingClient, b *bus.Bus, backoff time.Duration, logger *zap.Logger) *Supervisor {
	return &Supervisor{client: client, bus: b, backoff: backoff, logger: logger}
}

// Start begins watching for disconnect events.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	ch, unsub := s.bus.Subscribe(bus.KindDisconnected, 16)

	go func() {
		defer unsub()
		for {
			select {
			case <-ch:
				s.scheduleRestart(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the supervisor. A restart already armed still fires.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Supervisor) scheduleRestart(ctx context.Context) {
	// Disconnect events arriving while a restart is pending collapse
	// into the one already armed.
	if !s.restarting.CompareAndSwap(false, true) {
		return
	}
	s.logger.Warn("client disconnected, restart scheduled", zap.Duration("backoff", s.backoff))

	time.AfterFunc(s.backoff, func() {
		defer s.restarting.Store(false)
		if ctx.Err() != nil {
			return
		}
		s.logger.Info("restarting messaging client")
		s.client.Teardown()
		if err := s.client.Initialize(ctx); err != nil {
			// Single-shot restart: no automatic retry until the next
			// disconnect event.
			s.logger.Error("client restart failed", zap.Error(err))
			return
		}
		s.logger.Info("messaging client restarted")
	})
}
