// Package activation owns the daily auction lifecycle: on a wall-clock
// schedule it takes one descriptor from the directory queue, provisions
// the per-auction queues, flips the registry and runs the intake loop,
// then tears everything down again at the stop time.
package activation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/auction"
	"github.com/davidleathers/auction-bid-gateway/internal/domain/errors"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/config"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/messaging"
	"github.com/davidleathers/auction-bid-gateway/internal/metrics"
	"github.com/davidleathers/auction-bid-gateway/internal/service/registry"
)

// IntakeRunner is the consumption loop started per active auction.
type IntakeRunner interface {
	Run(ctx context.Context) error
}

// Scheduler is a two-state machine, Idle or Active, advanced by a ticker.
// At most one auction is active at a time.
type Scheduler struct {
	broker         messaging.QueueClient
	registry       *registry.Registry
	intake         IntakeRunner
	logger         *zap.Logger
	directoryQueue string

	startMinute  int
	stopMinute   int
	tickInterval time.Duration

	now func() time.Time

	// Serializes activate/deactivate transitions. The ticker and the admin
	// endpoint call into the same methods; without this, two concurrent
	// activations can both pass the idle check and start two intake loops.
	transition sync.Mutex

	mu           sync.Mutex
	baseCtx      context.Context
	cancelIntake context.CancelFunc
	intakeDone   chan struct{}
	lastTick     time.Time
}

func NewScheduler(
	cfg config.ScheduleConfig,
	directoryQueue string,
	broker messaging.QueueClient,
	reg *registry.Registry,
	intake IntakeRunner,
	logger *zap.Logger,
) (*Scheduler, error) {
	startMin, err := cfg.StartMinute()
	if err != nil {
		return nil, err
	}
	stopMin, err := cfg.StopMinute()
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		broker:         broker,
		registry:       reg,
		intake:         intake,
		logger:         logger,
		directoryQueue: directoryQueue,
		startMinute:    startMin,
		stopMinute:     stopMin,
		tickInterval:   cfg.TickInterval,
		now:            time.Now,
		baseCtx:        context.Background(),
	}, nil
}

// Run advances the state machine until ctx is canceled. On shutdown any
// running intake loop is stopped; queues and broker state are left for
// the next start.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.lastTick = s.now().UTC()
	s.mu.Unlock()

	s.logger.Info("auction scheduler running",
		zap.Int("start_minute", s.startMinute),
		zap.Int("stop_minute", s.stopMinute),
		zap.Duration("tick_interval", s.tickInterval))

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopIntake()
			s.logger.Info("auction scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick evaluates the schedule once. A trigger fires when its configured
// time of day lies in the half-open interval since the previous tick, so
// a delayed tick can never skip over a threshold.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()

	s.mu.Lock()
	last := s.lastTick
	s.lastTick = now
	s.mu.Unlock()

	if _, active := s.registry.CurrentItemID(); !active && crossedThreshold(s.startMinute, last, now) {
		s.logger.Info("daily start threshold crossed, activating auction")
		if err := s.ActivateNow(ctx); err != nil {
			s.logger.Warn("activation did not complete, staying idle", zap.Error(err))
		}
	}

	// Re-read so a single interval spanning both thresholds still evaluates
	// the stop crossing against the just-activated state.
	if _, active := s.registry.CurrentItemID(); active && crossedThreshold(s.stopMinute, last, now) {
		s.logger.Info("daily stop threshold crossed, deactivating auction")
		s.DeactivateNow(ctx)
	}
}

// crossedThreshold reports whether the time of day given in minutes past
// midnight occurs within (last, now], UTC.
func crossedThreshold(minute int, last, now time.Time) bool {
	if !now.After(last) {
		return false
	}
	occ := time.Date(now.Year(), now.Month(), now.Day(), minute/60, minute%60, 0, 0, time.UTC)
	if occ.After(now) {
		occ = occ.AddDate(0, 0, -1)
	}
	return occ.After(last)
}

// ActivateNow performs the Idle -> Active transition: pop one descriptor
// from the directory queue, provision the derived queues, publish the new
// state and start the intake loop. Activating while already Active is a
// no-op. A missing or malformed descriptor leaves the system Idle until
// the next trigger window; there is no retry inside a window.
func (s *Scheduler) ActivateNow(ctx context.Context) error {
	s.transition.Lock()
	defer s.transition.Unlock()

	if _, active := s.registry.CurrentItemID(); active {
		s.logger.Info("auction already active, ignoring activation")
		return nil
	}

	if err := s.broker.DeclareQueue(ctx, s.directoryQueue); err != nil {
		return errors.Wrap(err, "declaring directory queue")
	}

	body, ok, err := s.broker.Get(ctx, s.directoryQueue)
	if err != nil {
		return errors.Wrap(err, "fetching auction descriptor")
	}
	if !ok {
		s.logger.Warn("no auctions available in the directory queue")
		return errors.ErrNoDescriptor
	}

	var desc auction.Descriptor
	if err := json.Unmarshal(body, &desc); err != nil {
		return errors.NewValidationError("MALFORMED_DESCRIPTOR", "undeserializable auction descriptor").WithCause(err)
	}
	if err := desc.Validate(); err != nil {
		return err
	}

	intakeQueue := auction.IntakeQueueName(desc.ItemID)
	forwardingQueue := auction.ForwardingQueueName(desc.ItemID)

	if err := s.broker.DeclareQueue(ctx, intakeQueue); err != nil {
		return errors.Wrap(err, "declaring intake queue")
	}
	if err := s.broker.DeclareQueue(ctx, forwardingQueue); err != nil {
		return errors.Wrap(err, "declaring forwarding queue")
	}

	s.registry.Activate(desc.ItemID)
	s.startIntake()
	metrics.AuctionsActivated.Inc()

	s.logger.Info("auction activated",
		zap.String("item_id", desc.ItemID),
		zap.String("intake_queue", intakeQueue),
		zap.String("forwarding_queue", forwardingQueue),
		zap.Time("window_start", desc.StartTime),
		zap.Time("window_end", desc.EndTime))
	return nil
}

// DeactivateNow performs the Active -> Idle transition. The intake loop is
// stopped before the registry is cleared so a late delivery can never be
// validated against stale state. Deactivating while Idle is a no-op.
func (s *Scheduler) DeactivateNow(ctx context.Context) {
	s.transition.Lock()
	defer s.transition.Unlock()

	itemID, active := s.registry.CurrentItemID()
	if !active {
		s.logger.Info("no active auction to deactivate")
		return
	}

	s.stopIntake()

	intakeQueue := auction.IntakeQueueName(itemID)
	forwardingQueue := auction.ForwardingQueueName(itemID)

	if err := s.broker.DeleteQueue(ctx, intakeQueue); err != nil {
		s.logger.Warn("failed to delete intake queue",
			zap.String("queue", intakeQueue), zap.Error(err))
	}
	if err := s.broker.DeleteQueue(ctx, forwardingQueue); err != nil {
		s.logger.Warn("failed to delete forwarding queue",
			zap.String("queue", forwardingQueue), zap.Error(err))
	}

	s.registry.Deactivate()
	metrics.AuctionsDeactivated.Inc()

	s.logger.Info("auction deactivated", zap.String("item_id", itemID))
}

// startIntake launches the consumption loop for the newly active auction.
// The loop's context descends from the scheduler's run context, not from
// any caller's request context.
func (s *Scheduler) startIntake() {
	s.mu.Lock()
	defer s.mu.Unlock()

	ictx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})
	s.cancelIntake = cancel
	s.intakeDone = done

	go func() {
		defer close(done)
		if err := s.intake.Run(ictx); err != nil {
			s.logger.Error("intake processor exited with error", zap.Error(err))
		}
	}()
}

// stopIntake cancels the running consumption loop and waits for it to
// drain its in-flight message.
func (s *Scheduler) stopIntake() {
	s.mu.Lock()
	cancel := s.cancelIntake
	done := s.intakeDone
	s.cancelIntake = nil
	s.intakeDone = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
