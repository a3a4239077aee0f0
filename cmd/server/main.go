package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bikedash/internal/api"
	"bikedash/internal/config"
	"bikedash/internal/engine"
	"bikedash/internal/logging"
	"bikedash/internal/metrics"
	"bikedash/internal/session"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dataPath   string
	addr       string
)

func main() {
	root := &cobra.Command{
		Use:           "bikedash",
		Short:         "Bike-share dashboard backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	root.Flags().StringVarP(&dataPath, "data", "d", "", "dataset CSV (overrides dataset.path)")
	root.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("bikedash: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	// 1. Configuration and logging
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if dataPath != "" {
		cfg.Dataset.Path = dataPath
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	logger, err := logging.New(cfg.Logging, nil)
	if err != nil {
		return err
	}
	m := metrics.New()

	// 2. Load the dataset (blocking, before anything listens)
	t0 := time.Now()
	store, err := engine.LoadColumnar(cfg.Dataset.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Dataset.Path).Msg("cannot load dataset")
	}
	m.DatasetLoaded(store.Len(), time.Since(t0))

	eng, err := engine.New(store,
		engine.WithResponse(cfg.Dataset.Response),
		engine.WithDefaultAxes(cfg.Dataset.DefaultX, cfg.Dataset.DefaultY),
		engine.WithBins(cfg.Dataset.Bins),
	)
	if err != nil {
		return errors.Wrap(err, "configure engine")
	}

	// 3. Session manager with its idle janitor
	sessions := session.NewManager(eng, session.Config{
		IdleTTL:          cfg.Sessions.IdleTTL,
		SweepInterval:    cfg.Sessions.SweepInterval,
		SubscriberBuffer: cfg.Sessions.SubscriberBuffer,
	}, logger, m)
	janitorDone := make(chan struct{})
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	go func() {
		defer close(janitorDone)
		sessions.Run(janitorCtx)
	}()

	// 4. HTTP server
	h := api.NewHandler(eng, sessions, m, logger)
	e := api.NewServer(cfg.Server, h, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Int("rows", store.Len()).Msg("server ready")
		serveErr <- e.Start(cfg.Server.Addr)
	}()

	// 5. Wait for a signal or a listener failure, then drain
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stopJanitor()
			<-janitorDone
			return errors.Wrap(err, "http server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	stopJanitor()
	<-janitorDone
	if err := e.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown")
	}
	logger.Info().Msg("server stopped")
	return nil
}
