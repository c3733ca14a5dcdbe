package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/polypheny/Polypheny-DB-sub058/internal/api"
	"github.com/polypheny/Polypheny-DB-sub058/internal/middleware"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(f *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the lattice over HTTP",
		Long: "Starts an HTTP API exposing the loaded lattice, its cardinality estimates and its tiles\n" +
			"under /v1, with /healthz and Prometheus /metrics. Stops on SIGINT or SIGTERM.",
		Example: `  latticectl serve --demo
  LISTEN_ADDR=127.0.0.1:9000 latticectl serve --lattice sales.yaml --dsn sales.duckdb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, f, func(ctx context.Context, s *session) error {
				addr := s.cfg.ListenAddr
				if listen != "" {
					addr = listen
				}
				return serve(ctx, cmd, s, addr)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (env LISTEN_ADDR, default :8080)")
	return cmd
}

// serve runs the HTTP API on addr until ctx is done or a signal arrives,
// then shuts the server down gracefully.
func serve(ctx context.Context, cmd *cobra.Command, s *session, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var limiter *middleware.RateLimiter
	if s.cfg.RateLimitRPS > 0 {
		limiter = middleware.NewRateLimiter(ctx, middleware.RateLimitConfig{
			RequestsPerSecond: s.cfg.RateLimitRPS,
			Burst:             s.cfg.RateLimitBurst,
		})
	}
	srv := &http.Server{
		Handler: api.NewRouter(s.app, api.RouterOptions{
			Logger:             s.logger.With("component", "http"),
			Gatherer:           s.registry,
			CORSAllowedOrigins: s.cfg.CORSAllowedOrigins,
			RateLimiter:        limiter,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.logger.Info("http api listening", "addr", ln.Addr().String())
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", ln.Addr()); err != nil {
		_ = ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		s.logger.Info("http api stopped")
		return nil
	})
	return g.Wait()
}
