package bid

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/errors"
)

// Bid is a single bid on the item under auction. Bids are created once by
// the submission layer and are read-only everywhere downstream.
type Bid struct {
	ID      string          `json:"id"`
	ItemID  string          `json:"itemId"`
	UserID  string          `json:"userId"`
	Amount  decimal.Decimal `json:"amount"`
	BidTime time.Time       `json:"bidTime"`
}

// NewBid assigns the bid its identity and submission time.
func NewBid(itemID, userID string, amount decimal.Decimal) *Bid {
	return &Bid{
		ID:      uuid.NewString(),
		ItemID:  itemID,
		UserID:  userID,
		Amount:  amount,
		BidTime: time.Now().UTC(),
	}
}

// Validate checks the structural requirements for a bid entering the
// pipeline. Auction-window checks belong to the validator, not the entity.
func (b *Bid) Validate() error {
	if b.ItemID == "" {
		return errors.NewValidationError("INVALID_ITEM_ID", "item ID is required")
	}
	if b.UserID == "" {
		return errors.NewValidationError("INVALID_USER_ID", "user ID is required")
	}
	if !b.Amount.IsPositive() {
		return errors.NewValidationError("INVALID_BID_AMOUNT", "bid amount must be positive")
	}
	return nil
}
