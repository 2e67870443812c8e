package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidleathers/auction-bid-gateway/internal/infrastructure/config"
)

// Server wraps the HTTP server with routing and graceful shutdown.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	shutdown   func(context.Context) error
}

func NewServer(cfg config.ServerConfig, handler *Handler, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /bid", handler.PlaceBid)
	mux.HandleFunc("GET /auctionable/{itemId}", handler.GetAuctionable)
	mux.HandleFunc("POST /admin/activate", handler.Activate)
	mux.HandleFunc("POST /admin/deactivate", handler.Deactivate)
	mux.HandleFunc("GET /healthz", handler.HealthCheck)
	mux.HandleFunc("GET /version", handler.Version)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      requestLogging(logger)(mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	shutdownTimeout := cfg.ShutdownTimeout

	return &Server{
		httpServer: httpServer,
		logger:     logger,
		shutdown: func(ctx context.Context) error {
			sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return httpServer.Shutdown(sctx)
		},
	}
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		return s.shutdown(context.Background())
	}
}
