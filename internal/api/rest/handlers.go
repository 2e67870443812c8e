package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/bid"
	"github.com/davidleathers/auction-bid-gateway/internal/domain/errors"
	"github.com/davidleathers/auction-bid-gateway/internal/service/registry"
	"github.com/davidleathers/auction-bid-gateway/internal/service/validation"
)

// RegistryReader exposes the active auction state to the HTTP layer.
type RegistryReader interface {
	Snapshot() registry.State
}

// Enqueuer places a raw bid message on the intake queue.
type Enqueuer interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Validator answers whether an item is currently auctionable.
type Validator interface {
	Validate(ctx context.Context, itemID string) validation.Outcome
}

// Activator exposes the scheduler's manual transitions.
type Activator interface {
	ActivateNow(ctx context.Context) error
	DeactivateNow(ctx context.Context)
}

// Handler contains the HTTP request handlers.
type Handler struct {
	registry  RegistryReader
	enqueuer  Enqueuer
	validator Validator
	activator Activator
	logger    *zap.Logger
	version   string
}

func NewHandler(reg RegistryReader, enq Enqueuer, val Validator, act Activator, version string, logger *zap.Logger) *Handler {
	return &Handler{
		registry:  reg,
		enqueuer:  enq,
		validator: val,
		activator: act,
		logger:    logger,
		version:   version,
	}
}

// BidRequest is the inbound submission payload.
type BidRequest struct {
	ItemID string          `json:"itemId"`
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

// PlaceBid accepts a bid submission, stamps identity and submission time,
// and hands it to the intake queue. The intake consumer re-validates; the
// checks here only reject submissions that can never succeed.
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, errors.NewValidationError("INVALID_BODY", "invalid request body").WithCause(err))
		return
	}

	b := bid.NewBid(req.ItemID, req.UserID, req.Amount)
	if err := b.Validate(); err != nil {
		h.respondError(w, err)
		return
	}

	state := h.registry.Snapshot()
	if !state.Active {
		h.respondError(w, errors.ErrNoActiveAuction)
		return
	}
	if state.ItemID != b.ItemID {
		h.respondError(w, errors.ErrQueueMismatch.WithDetails(map[string]interface{}{
			"item_id":     b.ItemID,
			"active_item": state.ItemID,
		}))
		return
	}

	outcome := h.validator.Validate(r.Context(), b.ItemID)
	if !outcome.Valid {
		h.respondError(w, errors.ErrNotAuctionable)
		return
	}

	body, err := json.Marshal(b)
	if err != nil {
		h.respondError(w, errors.NewInternalError("failed to serialize bid").WithCause(err))
		return
	}

	if err := h.enqueuer.Publish(r.Context(), state.IntakeQueue, body); err != nil {
		h.logger.Error("failed to enqueue bid",
			zap.String("bid_id", b.ID),
			zap.String("queue", state.IntakeQueue),
			zap.Error(err))
		h.respondError(w, errors.NewExternalError("broker", "failed to enqueue bid").WithCause(err))
		return
	}

	h.logger.Info("accepted bid submission",
		zap.String("bid_id", b.ID),
		zap.String("item_id", b.ItemID),
		zap.String("queue", state.IntakeQueue))
	h.respondJSON(w, http.StatusAccepted, b)
}

// GetAuctionable reports whether an item is currently auctionable.
func (h *Handler) GetAuctionable(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")
	if itemID == "" {
		h.respondError(w, errors.NewValidationError("INVALID_ITEM_ID", "item ID is required"))
		return
	}

	outcome := h.validator.Validate(r.Context(), itemID)
	if !outcome.Valid {
		h.respondError(w, errors.ErrNotAuctionable)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"itemId":               itemID,
		"startAuctionDateTime": outcome.WindowStart.Format(time.RFC3339),
		"endAuctionDateTime":   outcome.WindowEnd.Format(time.RFC3339),
	})
}

// Activate triggers the scheduler's daily start transition out of band.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	if err := h.activator.ActivateNow(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, h.registry.Snapshot())
}

// Deactivate triggers the scheduler's daily stop transition out of band.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.activator.DeactivateNow(r.Context())
	h.respondJSON(w, http.StatusOK, h.registry.Snapshot())
}

// HealthCheck reports service liveness and the active auction state.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	state := h.registry.Snapshot()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"activeAuction": state.Active,
		"time":          time.Now().UTC().Format(time.RFC3339),
	})
}

// Version reports the build version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

func (h *Handler) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	status := errors.GetStatusCode(err)

	var appErr *errors.AppError
	if e, ok := err.(*errors.AppError); ok {
		appErr = e
	} else {
		appErr = errors.NewInternalError(err.Error())
	}

	h.respondJSON(w, status, map[string]interface{}{"error": appErr})
}
