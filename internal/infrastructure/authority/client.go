// Package authority wraps the auction authority service, the system that
// owns auction windows and ultimately settles bids.
package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/davidleathers/auction-bid-gateway/internal/domain/auction"
	"github.com/davidleathers/auction-bid-gateway/internal/domain/errors"
	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/config"
)

// Client queries the authority's auctionability endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(cfg *config.AuthorityConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("authority base URL is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// AuctionWindow fetches the auction window for an item. Any non-2xx status
// or transport failure comes back as an external error; callers treat that
// as "not auctionable".
func (c *Client) AuctionWindow(ctx context.Context, itemID string) (*auction.Window, error) {
	endpoint := fmt.Sprintf("%s/auctionable/%s", c.baseURL, url.PathEscape(itemID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewInternalError("building authority request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewExternalError("authority", "auctionability check failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewExternalError("authority",
			fmt.Sprintf("auctionability check returned status %d", resp.StatusCode))
	}

	var window auction.Window
	if err := json.NewDecoder(resp.Body).Decode(&window); err != nil {
		return nil, errors.NewExternalError("authority", "malformed auctionability response").WithCause(err)
	}

	if window.End.IsZero() {
		return nil, errors.NewExternalError("authority", "auctionability response missing end time")
	}

	return &window, nil
}
