package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/config"
	"github.com/mamadbah2/moulinette/internal/domain/lots"
	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/repository"
	"github.com/mamadbah2/moulinette/internal/repository/memory"
	"github.com/mamadbah2/moulinette/internal/repository/mongodb"
	"github.com/mamadbah2/moulinette/internal/repository/sheets"
	"github.com/mamadbah2/moulinette/internal/repository/sqlite"
	"github.com/mamadbah2/moulinette/internal/scheduler"
	"github.com/mamadbah2/moulinette/internal/server/handlers"
	"github.com/mamadbah2/moulinette/internal/server/router"
	"github.com/mamadbah2/moulinette/internal/service/reconciliation"
	sessionsvc "github.com/mamadbah2/moulinette/internal/service/sessions"
	whatsappsvc "github.com/mamadbah2/moulinette/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/moulinette/pkg/clients/whatsapp"
	"github.com/mamadbah2/moulinette/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.NewWithLevel(cfg.Server.LogLevel))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	store, err := openStore(context.Background(), cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init session store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close session store", zap.Error(err))
		}
	}()

	opts := sessionsvc.Options{
		DataDir:         cfg.Processing.DataDir,
		Encoding:        cfg.Processing.InputEncoding,
		DefaultStrategy: models.Strategy(cfg.Processing.DefaultStrategy),
		Classifier:      lots.NewClassifier(lots.DefaultRegistry(cfg.Processing.SiteCodes...)),
	}

	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		opts.Ledger = sheets.NewRunLedger(sheetsRepo, baseLogger.Named("repo.ledger"))
		baseLogger.Info("run ledger enabled")
	} else {
		baseLogger.Warn("google sheets not configured, run ledger disabled")
	}

	if cfg.WhatsApp.Enabled() {
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		opts.Notifier = whatsappsvc.NewMetaWhatsAppService(whatsClient, cfg.WhatsApp.NotifyTo, baseLogger.Named("svc.whatsapp"))
		baseLogger.Info("whatsapp notifications enabled")
	} else {
		baseLogger.Warn("whatsapp not configured, run notifications disabled")
	}

	engine := reconciliation.NewEngine(baseLogger.Named("svc.reconciliation"))
	sessions, err := sessionsvc.NewService(store, engine, opts, baseLogger.Named("svc.sessions"))
	if err != nil {
		baseLogger.Fatal("failed to init sessions service", zap.Error(err))
	}

	sessionHandler := handlers.NewSessionHandler(sessions, cfg.Server.MaxUploadBytes, baseLogger.Named("handlers.sessions"))
	ginEngine := router.New(sessionHandler, baseLogger.Named("router"))

	sched := scheduler.NewScheduler(cfg.Cleanup, sessions, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      ginEngine,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openStore(ctx context.Context, cfg *config.Config, base *zap.Logger) (repository.SessionStore, error) {
	switch cfg.Store.Driver {
	case config.StoreMongoDB:
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		repo, err := mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, base.Named("repo.mongodb"))
		if err != nil {
			return nil, err
		}
		return repo, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.Store.SQLitePath, base.Named("repo.sqlite"))
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}
