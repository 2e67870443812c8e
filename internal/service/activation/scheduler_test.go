package activation

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/auction"
	"github.com/davidleathers/auction-bid-gateway/internal/domain/errors"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/config"
	"github.com/davidleathers/auction-bid-gateway/internal/service/registry"
	"github.com/davidleathers/auction-bid-gateway/internal/testutil/brokertest"
)

// recordingIntake blocks until its context is canceled and records whether
// the registry was still active at that moment.
type recordingIntake struct {
	registry *registry.Registry

	mu             sync.Mutex
	runs           int
	activeAtCancel bool
}

func (r *recordingIntake) Run(ctx context.Context) error {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()

	<-ctx.Done()

	_, active := r.registry.CurrentItemID()
	r.mu.Lock()
	r.activeAtCancel = active
	r.mu.Unlock()
	return nil
}

func (r *recordingIntake) runCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

type schedulerFixture struct {
	scheduler *Scheduler
	broker    *brokertest.Broker
	registry  *registry.Registry
	intake    *recordingIntake
}

func newFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	broker := brokertest.New()
	reg := registry.New()
	intake := &recordingIntake{registry: reg}

	cfg := config.ScheduleConfig{Start: "07:00", Stop: "18:00", TickInterval: 15 * time.Second}
	s, err := NewScheduler(cfg, "TodaysAuctions", broker, reg, intake, zaptest.NewLogger(t))
	require.NoError(t, err)

	return &schedulerFixture{scheduler: s, broker: broker, registry: reg, intake: intake}
}

func (f *schedulerFixture) seedDescriptor(t *testing.T, itemID string) {
	t.Helper()

	ctx := context.Background()
	desc := auction.Descriptor{
		ItemID:    itemID,
		StartTime: time.Now().UTC(),
		EndTime:   time.Now().Add(8 * time.Hour).UTC(),
	}
	body, err := json.Marshal(desc)
	require.NoError(t, err)
	require.NoError(t, f.broker.DeclareQueue(ctx, "TodaysAuctions"))
	require.NoError(t, f.broker.Publish(ctx, "TodaysAuctions", body))
}

func TestCrossedThreshold(t *testing.T) {
	day := func(h, m int) time.Time {
		return time.Date(2025, 6, 1, h, m, 0, 0, time.UTC)
	}
	const sevenAM = 7 * 60

	tests := []struct {
		name string
		last time.Time
		now  time.Time
		want bool
	}{
		{"threshold inside interval", day(6, 59), day(7, 0), true},
		{"threshold inside long interval", day(6, 30), day(7, 45), true},
		{"interval entirely before", day(5, 0), day(6, 0), false},
		{"interval entirely after", day(7, 1), day(7, 30), false},
		{"tick exactly at threshold", day(6, 59), day(7, 0).Add(30 * time.Second), true},
		{"no time elapsed", day(7, 30), day(7, 30), false},
		{"now before last", day(7, 30), day(7, 0), false},
		{"crossing midnight before threshold", day(23, 50), day(0, 10).AddDate(0, 0, 1), false},
		{"previous day occurrence not re-triggered", day(8, 0), day(9, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, crossedThreshold(sevenAM, tt.last, tt.now))
		})
	}
}

func TestCrossedThreshold_MidnightSchedule(t *testing.T) {
	before := time.Date(2025, 6, 1, 23, 55, 0, 0, time.UTC)
	after := time.Date(2025, 6, 2, 0, 5, 0, 0, time.UTC)

	assert.True(t, crossedThreshold(0, before, after))
	assert.False(t, crossedThreshold(0, after, after.Add(time.Minute)))
}

func TestScheduler_ActivateNow(t *testing.T) {
	f := newFixture(t)
	f.seedDescriptor(t, "X1")

	ctx := context.Background()
	require.NoError(t, f.scheduler.ActivateNow(ctx))

	state := f.registry.Snapshot()
	assert.True(t, state.Active)
	assert.Equal(t, "X1", state.ItemID)
	assert.True(t, f.broker.HasQueue("X1bid"))
	assert.True(t, f.broker.HasQueue("X1Queue"))

	require.Eventually(t, func() bool {
		return f.intake.runCount() == 1
	}, time.Second, 10*time.Millisecond)

	// The descriptor was consumed, not peeked.
	_, ok, err := f.broker.Get(ctx, "TodaysAuctions")
	require.NoError(t, err)
	assert.False(t, ok)

	f.scheduler.DeactivateNow(ctx)
}

func TestScheduler_ActivateNow_EmptyDirectory(t *testing.T) {
	f := newFixture(t)

	err := f.scheduler.ActivateNow(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.False(t, f.registry.Snapshot().Active)
}

func TestScheduler_ActivateNow_MalformedDescriptor(t *testing.T) {
	f := newFixture(t)

	ctx := context.Background()
	require.NoError(t, f.broker.DeclareQueue(ctx, "TodaysAuctions"))
	require.NoError(t, f.broker.Publish(ctx, "TodaysAuctions", []byte("not json")))

	err := f.scheduler.ActivateNow(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	assert.False(t, f.registry.Snapshot().Active)
	assert.Equal(t, 0, f.intake.runCount())
}

func TestScheduler_ActivateNow_InvalidDescriptor(t *testing.T) {
	f := newFixture(t)

	ctx := context.Background()
	require.NoError(t, f.broker.DeclareQueue(ctx, "TodaysAuctions"))
	require.NoError(t, f.broker.Publish(ctx, "TodaysAuctions", []byte(`{"startTime":"2025-06-01T07:00:00Z"}`)))

	err := f.scheduler.ActivateNow(ctx)
	require.Error(t, err)
	assert.False(t, f.registry.Snapshot().Active)
}

func TestScheduler_ActivateNow_AlreadyActive(t *testing.T) {
	f := newFixture(t)
	f.seedDescriptor(t, "X1")
	f.seedDescriptor(t, "X2")

	ctx := context.Background()
	require.NoError(t, f.scheduler.ActivateNow(ctx))
	require.NoError(t, f.scheduler.ActivateNow(ctx))

	assert.Equal(t, "X1", f.registry.Snapshot().ItemID)
	require.Eventually(t, func() bool {
		return f.intake.runCount() == 1
	}, time.Second, 10*time.Millisecond)

	// The second descriptor is still waiting for tomorrow.
	_, ok, err := f.broker.Get(ctx, "TodaysAuctions")
	require.NoError(t, err)
	assert.True(t, ok)

	f.scheduler.DeactivateNow(ctx)
}

func TestScheduler_DeactivateNow(t *testing.T) {
	f := newFixture(t)
	f.seedDescriptor(t, "X1")

	ctx := context.Background()
	require.NoError(t, f.scheduler.ActivateNow(ctx))
	f.scheduler.DeactivateNow(ctx)

	assert.False(t, f.registry.Snapshot().Active)
	assert.False(t, f.broker.HasQueue("X1bid"))
	assert.False(t, f.broker.HasQueue("X1Queue"))
}

func TestScheduler_DeactivateStopsIntakeBeforeClearingRegistry(t *testing.T) {
	f := newFixture(t)
	f.seedDescriptor(t, "X1")

	ctx := context.Background()
	require.NoError(t, f.scheduler.ActivateNow(ctx))
	f.scheduler.DeactivateNow(ctx)

	f.intake.mu.Lock()
	activeAtCancel := f.intake.activeAtCancel
	f.intake.mu.Unlock()
	assert.True(t, activeAtCancel, "intake must be stopped while the registry still holds the item")
}

// gatedBroker stalls Get so concurrent activation callers can be lined up
// against each other.
type gatedBroker struct {
	*brokertest.Broker
	gate chan struct{}

	mu   sync.Mutex
	gets int
}

func (g *gatedBroker) Get(ctx context.Context, queue string) ([]byte, bool, error) {
	g.mu.Lock()
	g.gets++
	g.mu.Unlock()
	<-g.gate
	return g.Broker.Get(ctx, queue)
}

func (g *gatedBroker) getCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gets
}

func TestScheduler_ConcurrentActivationsStartOneAuction(t *testing.T) {
	broker := &gatedBroker{Broker: brokertest.New(), gate: make(chan struct{})}
	reg := registry.New()
	intake := &recordingIntake{registry: reg}

	cfg := config.ScheduleConfig{Start: "07:00", Stop: "18:00", TickInterval: 15 * time.Second}
	s, err := NewScheduler(cfg, "TodaysAuctions", broker, reg, intake, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, broker.Broker.DeclareQueue(ctx, "TodaysAuctions"))
	for _, itemID := range []string{"X1", "X2"} {
		desc := auction.Descriptor{ItemID: itemID, StartTime: time.Now().UTC(), EndTime: time.Now().Add(8 * time.Hour).UTC()}
		body, err := json.Marshal(desc)
		require.NoError(t, err)
		require.NoError(t, broker.Broker.Publish(ctx, "TodaysAuctions", body))
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.ActivateNow(ctx)
		}()
	}

	require.Eventually(t, func() bool { return broker.getCount() >= 1 }, time.Second, 5*time.Millisecond)
	close(broker.gate)
	wg.Wait()

	state := reg.Snapshot()
	assert.True(t, state.Active)
	assert.Equal(t, "X1", state.ItemID)
	require.Eventually(t, func() bool {
		return intake.runCount() == 1
	}, time.Second, 10*time.Millisecond, "only one intake loop may start")
	assert.False(t, broker.HasQueue("X2bid"))
	assert.False(t, broker.HasQueue("X2Queue"))

	// Tomorrow's descriptor survives the race untouched.
	body, ok, err := broker.Broker.Get(ctx, "TodaysAuctions")
	require.NoError(t, err)
	require.True(t, ok)
	var remaining auction.Descriptor
	require.NoError(t, json.Unmarshal(body, &remaining))
	assert.Equal(t, "X2", remaining.ItemID)

	s.DeactivateNow(ctx)
}

func TestScheduler_ConcurrentDeactivations(t *testing.T) {
	f := newFixture(t)
	f.seedDescriptor(t, "X1")

	ctx := context.Background()
	require.NoError(t, f.scheduler.ActivateNow(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.scheduler.DeactivateNow(ctx)
		}()
	}
	wg.Wait()

	assert.False(t, f.registry.Snapshot().Active)
	assert.False(t, f.broker.HasQueue("X1bid"))
	assert.False(t, f.broker.HasQueue("X1Queue"))
}

func TestScheduler_DeactivateNow_WhenIdle(t *testing.T) {
	f := newFixture(t)

	f.scheduler.DeactivateNow(context.Background())
	assert.False(t, f.registry.Snapshot().Active)
}

func TestScheduler_TickDrivenLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedDescriptor(t, "X1")

	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 6, 59, 0, 0, time.UTC)
	f.scheduler.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	setNow := func(t time.Time) {
		mu.Lock()
		now = t
		mu.Unlock()
	}

	ctx := context.Background()
	f.scheduler.mu.Lock()
	f.scheduler.lastTick = now
	f.scheduler.mu.Unlock()

	// Before the start threshold nothing happens.
	setNow(time.Date(2025, 6, 1, 6, 59, 30, 0, time.UTC))
	f.scheduler.Tick(ctx)
	assert.False(t, f.registry.Snapshot().Active)

	// Crossing 07:00 activates.
	setNow(time.Date(2025, 6, 1, 7, 0, 10, 0, time.UTC))
	f.scheduler.Tick(ctx)
	assert.True(t, f.registry.Snapshot().Active)

	// Midday ticks are no-ops.
	setNow(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	f.scheduler.Tick(ctx)
	assert.True(t, f.registry.Snapshot().Active)

	// Crossing 18:00 deactivates, even after a long gap between ticks.
	setNow(time.Date(2025, 6, 1, 18, 4, 0, 0, time.UTC))
	f.scheduler.Tick(ctx)
	assert.False(t, f.registry.Snapshot().Active)
}

func TestScheduler_TickSpanningBothThresholds(t *testing.T) {
	f := newFixture(t)
	f.seedDescriptor(t, "X1")

	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 6, 59, 0, 0, time.UTC)
	f.scheduler.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	f.scheduler.mu.Lock()
	f.scheduler.lastTick = now
	f.scheduler.mu.Unlock()

	// One interval covering 07:00 and 18:00, as after a long stall. The
	// auction both starts and stops within the single tick.
	mu.Lock()
	now = time.Date(2025, 6, 1, 18, 5, 0, 0, time.UTC)
	mu.Unlock()
	f.scheduler.Tick(context.Background())

	assert.False(t, f.registry.Snapshot().Active)
	assert.Equal(t, 1, f.intake.runCount(), "intake ran for the activated auction")
	assert.False(t, f.broker.HasQueue("X1bid"))
	assert.False(t, f.broker.HasQueue("X1Queue"))
}

func TestScheduler_TickActivationFailureStaysIdle(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	now := time.Date(2025, 6, 1, 6, 59, 0, 0, time.UTC)
	f.scheduler.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	f.scheduler.mu.Lock()
	f.scheduler.lastTick = now
	f.scheduler.mu.Unlock()

	mu.Lock()
	now = time.Date(2025, 6, 1, 7, 0, 10, 0, time.UTC)
	mu.Unlock()
	f.scheduler.Tick(context.Background())

	assert.False(t, f.registry.Snapshot().Active, "empty directory leaves the scheduler idle")
}

func TestNewScheduler_InvalidSchedule(t *testing.T) {
	broker := brokertest.New()
	reg := registry.New()

	cfg := config.ScheduleConfig{Start: "7am", Stop: "18:00", TickInterval: 15 * time.Second}
	_, err := NewScheduler(cfg, "TodaysAuctions", broker, reg, &recordingIntake{registry: reg}, zaptest.NewLogger(t))
	assert.Error(t, err)
}
