package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/commentlens/internal/config"
	"github.com/rcliao/commentlens/internal/logger"
	"github.com/rcliao/commentlens/internal/server"
)

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve command for starting the HTTP server
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the commentlens HTTP API.

The server provides:
  • POST /upload to analyze a CSV, HTML or text file
  • Session, narrative, time series and cluster queries under /api
  • Stored chart images under /api/charts
  • A /healthcheck endpoint

Only one analysis runs at a time; a concurrent upload gets 409 Conflict.

Examples:
  # Start server on the configured port (default 8000)
  commentlens serve

  # Start on custom port
  commentlens serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8000)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

func runServe(ctx context.Context, port int, host string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.Get()
	cfg := config.Get()

	serverCfg := cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := buildPipeline(ctx, db)
	if err != nil {
		return err
	}
	defer p.Close()

	srv := server.New(db, p, serverCfg, *log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Printf("🚀 Server listening on http://%s:%d\n", serverCfg.Host, serverCfg.Port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Server shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
