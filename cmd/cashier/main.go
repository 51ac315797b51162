package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lkadlec/cashier/internal/api"
	"github.com/lkadlec/cashier/internal/config"
	"github.com/lkadlec/cashier/internal/fio"
	"github.com/lkadlec/cashier/internal/reconciler"
	"github.com/lkadlec/cashier/internal/storage/sqlite"
	"github.com/lkadlec/cashier/internal/telegram"
	"github.com/lkadlec/cashier/internal/xcontest"
	"github.com/lkadlec/cashier/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "cashier: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// storage
	db, err := sqlite.New(cfg.Storage.Path, log)
	if err != nil {
		return err
	}
	defer db.Close()

	flightStorage, err := sqlite.NewFlightStorage(db, log)
	if err != nil {
		return err
	}
	transactionStorage, err := sqlite.NewTransactionStorage(db, log)
	if err != nil {
		return err
	}
	membershipStorage, err := sqlite.NewMembershipStorage(db, cfg.Membership.DailyAmounts, cfg.Membership.YearlyAmounts, log)
	if err != nil {
		return err
	}

	// flight source
	siteClient, err := xcontest.NewClient(
		cfg.XContest.BaseURL,
		cfg.XContest.Username,
		cfg.XContest.Password,
		cfg.XContest.UserAgent,
		cfg.XContest.Timeout(),
		log,
	)
	if err != nil {
		return err
	}
	parser, err := xcontest.NewParser(cfg.XContest.BaseURL)
	if err != nil {
		return err
	}
	pipeline := xcontest.NewPipeline(siteClient, parser, cfg.XContest.PageSleep(), log)
	resolver := xcontest.NewResolver(siteClient, xcontest.NewIDCache(cfg.XContest.PilotCacheSize), log)

	takeoffs := make([]xcontest.Takeoff, 0, len(cfg.XContest.Takeoffs))
	for _, t := range cfg.XContest.Takeoffs {
		takeoffs = append(takeoffs, xcontest.Takeoff{Name: t.Name, Lat: t.Lat, Lon: t.Lon})
	}

	// collaborators
	bank := fio.NewClient(cfg.Fio.BaseURL, cfg.Fio.Token, cfg.Fio.Timeout(), log)
	notifier := telegram.NewClient(cfg.Telegram.BaseURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.Timeout(), log)

	service := reconciler.NewService(
		pipeline,
		bank,
		resolver,
		flightStorage,
		transactionStorage,
		membershipStorage,
		notifier,
		takeoffs,
		cfg.Reconciler.FlightDaysBack,
		log,
	)

	// an expired session is re-established mid-cycle; the startup login
	// just fails fast on bad credentials
	if cfg.XContest.Username != "" {
		if err := siteClient.Login(ctx); err != nil {
			return fmt.Errorf("initial site login failed: %w", err)
		}
	}

	scheduler := reconciler.NewScheduler(
		service,
		notifier,
		cfg.Reconciler.TransactionInterval(),
		cfg.Reconciler.FlightInterval(),
		cfg.Reconciler.RunOnStartup,
		log,
	)
	scheduler.Start(ctx)

	router := api.NewRouter(service, log)
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router.Routes(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting API server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
