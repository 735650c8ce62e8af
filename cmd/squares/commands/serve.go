package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jacentio/squares/board"
	"github.com/jacentio/squares/internal/httpapi"
	"github.com/jacentio/squares/internal/memstore"
	"github.com/jacentio/squares/internal/metrics"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr   string
		memory bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the board, claim and seed endpoints over HTTP until interrupted.

With --memory the state is kept in process memory and lost on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if addr == "" {
				addr = a.cfg.HTTPAddr
			}
			return a.serve(ctx, addr, memory)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default $SQUARES_HTTP_ADDR)")
	cmd.Flags().BoolVar(&memory, "memory", false, "Keep state in memory instead of DynamoDB")
	return cmd
}

func (a *app) serve(ctx context.Context, addr string, memory bool) error {
	var repo board.Repository
	if memory {
		repo = memstore.New()
	} else {
		var err error
		if repo, err = a.repository(ctx); err != nil {
			return a.fail("Cannot open store", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	limiter := httpapi.NewRateLimiter(httpapi.RateLimiterConfig{
		PerMinute: a.cfg.ClaimRatePerMin,
		Burst:     a.cfg.ClaimBurst,
		OnLimited: collector.RecordRateLimited,
	})
	defer limiter.Stop()

	handler := httpapi.NewRouter(httpapi.Deps{
		Reader: board.NewReader(repo),
		Claimer: board.NewClaimer(repo, board.ClaimerOptions{
			Mode:     a.cfg.Mode(),
			Logger:   a.logger,
			Recorder: collector,
		}),
		Provisioner: board.NewProvisioner(repo, a.logger, collector),
		Logger:      a.logger,
		Gatherer:    reg,
		Limiter:     limiter,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()
	a.logger.Info("http server listening",
		"addr", addr,
		"mode", a.cfg.Mode(),
		"memory", memory,
	)

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return a.printer.Error("HTTP server failed", err.Error())
	}
}
