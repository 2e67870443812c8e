// Package validation decides whether an item is currently auctionable,
// consulting the validity cache before the authority service. Every
// uncertain outcome is treated as not auctionable.
package validation

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/auction"
	"github.com/davidleathers/auction-bid-gateway/internal/metrics"
)

// Outcome is the validator's answer for one item at one instant. When the
// answer came from the cache, WindowStart is the evaluation time rather
// than the true start; callers must only rely on it to assert validity.
type Outcome struct {
	Valid       bool
	WindowStart time.Time
	WindowEnd   time.Time
}

// EndTimeCache is the validity cache surface the validator needs.
type EndTimeCache interface {
	GetEndTime(ctx context.Context, itemID string) (time.Time, bool, error)
	SetEndTime(ctx context.Context, itemID string, end time.Time) error
	Invalidate(ctx context.Context, itemID string) error
}

// AuthorityClient answers auction-window lookups.
type AuthorityClient interface {
	AuctionWindow(ctx context.Context, itemID string) (*auction.Window, error)
}

// Validator implements the cache-then-authority check.
type Validator struct {
	cache     EndTimeCache
	authority AuthorityClient
	logger    *zap.Logger

	// Collapses concurrent authority lookups for the same item. Under a
	// cache-miss race at most one in-flight call per item id survives.
	group singleflight.Group

	now func() time.Time
}

func NewValidator(cache EndTimeCache, authority AuthorityClient, logger *zap.Logger) *Validator {
	return &Validator{
		cache:     cache,
		authority: authority,
		logger:    logger,
		now:       time.Now,
	}
}

// Validate reports whether itemID is auctionable right now.
func (v *Validator) Validate(ctx context.Context, itemID string) Outcome {
	now := v.now().UTC()

	end, hit, err := v.cache.GetEndTime(ctx, itemID)
	if err != nil {
		// A broken cache only costs an extra authority call.
		v.logger.Warn("validity cache lookup failed, falling through to authority",
			zap.String("item_id", itemID), zap.Error(err))
		hit = false
	}

	if hit {
		if !now.After(end) {
			return Outcome{Valid: true, WindowStart: now, WindowEnd: end}
		}
		if err := v.cache.Invalidate(ctx, itemID); err != nil {
			v.logger.Warn("failed to evict stale validity entry",
				zap.String("item_id", itemID), zap.Error(err))
		}
		v.logger.Info("auction window expired, evicted cache entry",
			zap.String("item_id", itemID), zap.Time("end_time", end))
	}

	// The first caller's ctx serves every collapsed caller; if it is
	// canceled mid-flight the shared outcome fails closed for all of them.
	res, _, _ := v.group.Do(itemID, func() (interface{}, error) {
		return v.fetchAndCache(ctx, itemID, now), nil
	})
	return res.(Outcome)
}

// fetchAndCache asks the authority for the item's window and, when the
// item is live, records the end time. Fail-closed: nothing is cached on
// error and the outcome is Invalid.
func (v *Validator) fetchAndCache(ctx context.Context, itemID string, now time.Time) Outcome {
	window, err := v.authority.AuctionWindow(ctx, itemID)
	if err != nil {
		metrics.AuthorityCalls.WithLabelValues("error").Inc()
		v.logger.Warn("authority lookup failed, treating item as not auctionable",
			zap.String("item_id", itemID), zap.Error(err))
		return Outcome{}
	}

	if !window.Contains(now) {
		metrics.AuthorityCalls.WithLabelValues("outside_window").Inc()
		v.logger.Info("item outside its auction window",
			zap.String("item_id", itemID),
			zap.Time("window_start", window.Start),
			zap.Time("window_end", window.End))
		return Outcome{}
	}

	metrics.AuthorityCalls.WithLabelValues("valid").Inc()
	if err := v.cache.SetEndTime(ctx, itemID, window.End); err != nil {
		v.logger.Warn("failed to cache auction end time",
			zap.String("item_id", itemID), zap.Error(err))
	}

	return Outcome{Valid: true, WindowStart: window.Start, WindowEnd: window.End}
}
