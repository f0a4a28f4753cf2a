package relay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/businessweb01/dbmiddleware/internal/observability"
	"github.com/businessweb01/dbmiddleware/internal/source"
	"go.uber.org/zap"
)

// ConnectionState describes the health of the source watch subscription.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateDisconnected
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateError:
		return "error"
	}
	return "unknown"
}

const (
	baseReconnectDelay = time.Second
	maxReconnectDelay  = 30 * time.Second
	// maxConsecutiveFailures caps the backoff exponent; once reached the
	// counter resets and supervision keeps going. The relay never
	// self-terminates on connectivity failure.
	maxConsecutiveFailures = 10
)

// EventSource is the watch subscription the supervisor keeps alive.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan source.Event, error)
	Ping(ctx context.Context) error
}

// Supervisor drives the connect / consume / reconnect cycle of the source
// watch. Every successful (re)connection re-runs the catch-up scan before
// live events are consumed, so records that transitioned while disconnected
// are not lost.
type Supervisor struct {
	events   EventSource
	logger   *zap.Logger
	metrics  *observability.Metrics
	state    atomic.Int32
	failures int

	sleep func(ctx context.Context, d time.Duration) error
}

func NewSupervisor(events EventSource, logger *zap.Logger) (*Supervisor, error) {
	if events == nil {
		return nil, fmt.Errorf("event source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Supervisor{
		events: events,
		logger: logger,
		sleep:  sleepWithContext,
	}
	s.state.Store(int32(StateConnecting))
	return s, nil
}

func (s *Supervisor) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// State returns the current connection state.
func (s *Supervisor) State() ConnectionState {
	return ConnectionState(s.state.Load())
}

// Run keeps the subscription alive until ctx is canceled. onConnect runs
// after every successful (re)connection; handle is invoked for each live
// change event. Run only returns on context cancellation.
func (s *Supervisor) Run(ctx context.Context, onConnect func(ctx context.Context) error, handle func(ctx context.Context, event source.Event)) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateConnecting)

		events, err := s.events.Subscribe(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			s.setState(StateError)
			delay := s.nextBackoff()
			s.logger.Error("source watch connect failed",
				zap.Int("consecutiveFailures", s.failures),
				zap.Duration("backoff", delay),
				zap.Error(err),
			)
			s.metrics.IncReconnects()

			if err := s.sleep(ctx, delay); err != nil {
				return nil
			}
			continue
		}

		s.setState(StateConnected)
		s.resetFailures()
		s.logger.Info("source watch connected")

		if onConnect != nil {
			// Catch-up failures are contained; the live stream still runs
			// and the next reconnect retries the scan.
			if err := onConnect(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("catch-up scan failed", zap.Error(err))
			}
		}

		s.consume(ctx, events, handle)

		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateDisconnected)
		delay := s.nextBackoff()
		s.logger.Warn("source watch lost, reconnecting",
			zap.Int("consecutiveFailures", s.failures),
			zap.Duration("backoff", delay),
		)
		s.metrics.IncReconnects()

		if err := s.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

func (s *Supervisor) consume(ctx context.Context, events <-chan source.Event, handle func(ctx context.Context, event source.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if handle != nil {
				handle(ctx, event)
			}
		}
	}
}

func (s *Supervisor) setState(state ConnectionState) {
	s.state.Store(int32(state))
	s.metrics.SetConnectionState(int(state))
}

func (s *Supervisor) nextBackoff() time.Duration {
	delay := baseReconnectDelay << s.failures
	if delay > maxReconnectDelay || delay <= 0 {
		delay = maxReconnectDelay
	}

	s.failures++
	if s.failures >= maxConsecutiveFailures {
		s.failures = 0
	}

	return delay
}

func (s *Supervisor) resetFailures() {
	s.failures = 0
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
