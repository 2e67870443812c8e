package auction

import (
	"time"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/errors"
)

// Descriptor names the item going on auction and its window. One descriptor
// per day arrives on the directory queue and is consumed once on activation.
type Descriptor struct {
	ItemID    string    `json:"itemId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Validate rejects descriptors that cannot drive an activation.
func (d *Descriptor) Validate() error {
	if d.ItemID == "" {
		return errors.NewValidationError("INVALID_ITEM_ID", "descriptor item ID is required")
	}
	if !d.EndTime.IsZero() && !d.StartTime.IsZero() && d.EndTime.Before(d.StartTime) {
		return errors.NewValidationError("INVALID_WINDOW", "descriptor end time precedes start time")
	}
	return nil
}

// Window is the interval during which bids on an item are accepted.
type Window struct {
	Start time.Time `json:"startAuctionDateTime"`
	End   time.Time `json:"endAuctionDateTime"`
}

// Contains reports whether t falls inside the window, boundaries included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
