package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/businessweb01/dbmiddleware/internal/domain"
	"github.com/businessweb01/dbmiddleware/internal/observability"
	"github.com/businessweb01/dbmiddleware/internal/ratelimit"
	"github.com/businessweb01/dbmiddleware/internal/sink"
	"github.com/businessweb01/dbmiddleware/internal/source"
	"go.uber.org/zap"
)

const (
	defaultDeliveryConcurrency = 8
	sinkRateLimitScope         = "sink"
)

// Deliverer sends one booking to the downstream sink, retries included.
type Deliverer interface {
	Deliver(ctx context.Context, booking *domain.Booking) (*sink.Response, error)
}

// Remover deletes a relayed booking from the source.
type Remover interface {
	Delete(ctx context.Context, id string) error
}

// RecordSource reads the booking collection.
type RecordSource interface {
	Get(ctx context.Context, id string) (*domain.Booking, error)
	ScanIDs(ctx context.Context) ([]string, error)
}

// Orchestrator runs the relay pipeline. Catch-up scans and live change
// events both funnel through processID, so there is exactly one
// filter → mark → deliver → delete-or-unmark path.
type Orchestrator struct {
	records    RecordSource
	deliverer  Deliverer
	remover    Remover
	cache      *DedupCache
	filter     *Filter
	stats      *Stats
	supervisor *Supervisor
	limiter    ratelimit.RateLimiter
	logger     *zap.Logger
	metrics    *observability.Metrics

	deleteEnabled bool
	sem           chan struct{}
	wg            sync.WaitGroup
}

func NewOrchestrator(
	records RecordSource,
	deliverer Deliverer,
	remover Remover,
	cache *DedupCache,
	stats *Stats,
	supervisor *Supervisor,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if records == nil {
		return nil, fmt.Errorf("record source is required")
	}
	if deliverer == nil {
		return nil, fmt.Errorf("deliverer is required")
	}
	if remover == nil {
		return nil, fmt.Errorf("remover is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("dedup cache is required")
	}
	if stats == nil {
		stats = NewStats()
	}
	if supervisor == nil {
		return nil, fmt.Errorf("supervisor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		records:    records,
		deliverer:  deliverer,
		remover:    remover,
		cache:      cache,
		filter:     NewFilter(cache),
		stats:      stats,
		supervisor: supervisor,
		logger:     logger,
		sem:        make(chan struct{}, defaultDeliveryConcurrency),
	}, nil
}

func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// SetRateLimiter caps outbound sink deliveries.
func (o *Orchestrator) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if o == nil {
		return
	}
	o.limiter = limiter
}

// SetDeleteEnabled records whether post-relay source deletes are active;
// surfaced in the status snapshot only, the gate itself lives in the remover.
func (o *Orchestrator) SetDeleteEnabled(enabled bool) {
	if o == nil {
		return
	}
	o.deleteEnabled = enabled
}

// Run drives the relay until ctx is canceled, then waits for in-flight
// deliveries to finish or time out on their own.
func (o *Orchestrator) Run(ctx context.Context) error {
	err := o.supervisor.Run(ctx, o.catchUp, o.handleEvent)
	o.wg.Wait()
	return err
}

// State exposes the supervisor's connection state.
func (o *Orchestrator) State() ConnectionState {
	return o.supervisor.State()
}

// Snapshot is the operator-facing status of the relay.
type Snapshot struct {
	Status          string    `json:"status"`
	ConnectionState string    `json:"connectionState"`
	StartedAt       time.Time `json:"startedAt"`
	UptimeSeconds   int64     `json:"uptimeSeconds"`
	TotalProcessed  int64     `json:"totalProcessed"`
	TotalFailed     int64     `json:"totalFailed"`
	TotalSkipped    int64     `json:"totalSkipped"`
	DedupEntries    int       `json:"dedupEntries"`
	DeleteEnabled   bool      `json:"deleteEnabled"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	state := o.supervisor.State()

	status := "ok"
	if state != StateConnected {
		status = "degraded"
	}

	return Snapshot{
		Status:          status,
		ConnectionState: state.String(),
		StartedAt:       o.stats.StartedAt(),
		UptimeSeconds:   int64(o.stats.Uptime().Seconds()),
		TotalProcessed:  o.stats.TotalProcessed(),
		TotalFailed:     o.stats.TotalFailed(),
		TotalSkipped:    o.stats.TotalSkipped(),
		DedupEntries:    o.cache.Len(),
		DeleteEnabled:   o.deleteEnabled,
	}
}

// catchUp walks the whole collection once; run at startup and after every
// reconnection so records that transitioned while disconnected are caught.
func (o *Orchestrator) catchUp(ctx context.Context) error {
	ids, err := o.records.ScanIDs(ctx)
	if err != nil {
		return fmt.Errorf("full scan failed: %w", err)
	}

	o.logger.Info("catch-up scan started", zap.Int("records", len(ids)))

	for _, id := range ids {
		if ctx.Err() != nil {
			return nil
		}
		o.processID(ctx, id)
	}

	return nil
}

func (o *Orchestrator) handleEvent(ctx context.Context, event source.Event) {
	o.processID(ctx, event.ID)
}

// processID runs one record through the pipeline. Failures here are contained
// to the record; nothing thrown from this path may take down the watch.
func (o *Orchestrator) processID(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("unexpected panic while processing booking, continuing",
				zap.String("bookingId", id),
				zap.Any("panic", r),
			)
		}
	}()

	ctx = observability.WithBookingID(ctx, id)
	log := observability.WithContextLogger(o.logger, ctx)

	booking, err := o.records.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		log.Debug("booking gone before relay, skipping")
		return
	case errors.Is(err, domain.ErrInvalidRecord):
		o.skip(Decision{Reason: ReasonInvalidRecord}, log)
		return
	case err != nil:
		log.Error("failed to read booking from source", zap.Error(err))
		return
	}

	decision := o.filter.Decide(booking)
	if !decision.Eligible {
		o.skip(decision, log)
		return
	}

	// Marking before the send is the mutual-exclusion gate: a concurrent
	// notification for the same id loses here and is dropped.
	if !o.cache.Mark(booking.ID) {
		o.skip(Decision{Reason: ReasonAlreadyProcessed, Status: booking.Status}, log)
		return
	}
	o.metrics.SetDedupCacheEntries(o.cache.Len())

	select {
	case o.sem <- struct{}{}:
	case <-ctx.Done():
		o.cache.Unmark(booking.ID)
		return
	}

	o.wg.Add(1)
	// Shutdown stops new work but lets this delivery complete or time out
	// naturally, so the POST is never severed mid-flight.
	go o.deliver(context.WithoutCancel(ctx), booking)
}

func (o *Orchestrator) deliver(ctx context.Context, booking *domain.Booking) {
	defer o.wg.Done()
	defer func() { <-o.sem }()
	defer func() {
		if r := recover(); r != nil {
			o.cache.Unmark(booking.ID)
			o.logger.Error("unexpected panic during delivery, continuing",
				zap.String("bookingId", booking.ID),
				zap.Any("panic", r),
			)
		}
	}()

	log := observability.WithContextLogger(o.logger, ctx)

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx, sinkRateLimitScope); err != nil {
			log.Warn("sink rate limiter unavailable, proceeding", zap.Error(err))
		}
	}

	o.metrics.IncDeliveriesInFlight()
	defer o.metrics.DecDeliveriesInFlight()

	start := time.Now()
	resp, err := o.deliverer.Deliver(ctx, booking)
	o.metrics.ObserveDeliveryDuration(time.Since(start))

	if err != nil {
		// Unmarking re-arms the record: the next notification or scan may
		// retry it from scratch.
		o.cache.Unmark(booking.ID)
		o.metrics.SetDedupCacheEntries(o.cache.Len())
		o.stats.IncFailed()
		o.metrics.IncRelayFailed(string(sink.KindOf(err)))
		log.Error("booking relay failed, record retained for future retry",
			zap.String("status", booking.Status.String()),
			zap.Error(err),
		)
		return
	}

	o.stats.IncProcessed()
	o.metrics.IncBookingRelayed()
	log.Info("booking relayed",
		zap.String("status", booking.Status.String()),
		zap.Int("sinkStatus", resp.StatusCode),
	)

	if err := o.remover.Delete(ctx, booking.ID); err != nil {
		// The sink already accepted the record, so the dedup mark stays to
		// avoid a double send; the leftover source record is cleaned up on a
		// later restart's catch-up scan.
		log.Error("failed to delete relayed booking from source", zap.Error(err))
	}
}

func (o *Orchestrator) skip(decision Decision, log *zap.Logger) {
	o.stats.IncSkipped()
	o.metrics.IncBookingSkipped(decision.Reason.String())

	switch decision.Reason {
	case ReasonInvalidRecord:
		log.Warn("skipping invalid booking record")
	case ReasonStatusNotTerminal:
		log.Debug("skipping booking, status not terminal",
			zap.String("status", decision.Status.String()),
		)
	default:
		log.Debug("skipping booking", zap.String("reason", decision.Reason.String()))
	}
}
