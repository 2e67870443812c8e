// Package metrics exposes the pipeline's Prometheus collectors. They are
// registered on the default registry and served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons recorded on BidsDropped.
const (
	DropReasonMalformed      = "malformed"
	DropReasonNotAuctionable = "not_auctionable"
	DropReasonPublishFailed  = "publish_failed"
)

var (
	AuctionsActivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_activations_total",
		Help: "Daily auction activations performed by the scheduler.",
	})

	AuctionsDeactivated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_deactivations_total",
		Help: "Daily auction deactivations performed by the scheduler.",
	})

	BidsConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bids_consumed_total",
		Help: "Bid messages taken off the intake queue.",
	})

	BidsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bids_dropped_total",
		Help: "Bids dropped by the pipeline, by reason.",
	}, []string{"reason"})

	BidsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bids_published_total",
		Help: "Validated bids published to the forwarding queue.",
	})

	AuthorityCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "authority_calls_total",
		Help: "Auctionability lookups against the authority service, by outcome.",
	}, []string{"outcome"})
)
