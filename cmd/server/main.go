package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/sefimap/manager/internal/cache"
	"github.com/sefimap/manager/internal/config"
	"github.com/sefimap/manager/internal/db"
	"github.com/sefimap/manager/internal/handlers"
	"github.com/sefimap/manager/internal/logsvc"
	"github.com/sefimap/manager/internal/services"
	"github.com/sefimap/manager/internal/storage"
	"github.com/sefimap/manager/internal/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %+v", err)
	}

	logger := logsvc.New(log.New(os.Stderr, "", log.LstdFlags), cfg.RollbarToken, cfg.Env)
	logsvc.SetDefault(logger)
	defer logger.Close()

	services.DefaultMontantRequis = cfg.MontantRequis
	services.PhonePrefix = cfg.PhonePrefix

	if err := db.Init(cfg.DatabaseURL); err != nil {
		logger.Fatal("db init", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		photos  storage.Storage
		photoFs afero.Fs
	)
	switch cfg.StorageDriver {
	case "b2":
		b2, err := storage.NewB2(ctx, cfg.B2KeyID, cfg.B2AppKey, cfg.B2Bucket)
		if err != nil {
			logger.Fatal("b2 storage", err)
		}
		photos = b2
	default:
		local, err := storage.NewLocal(cfg.StorageDir, cfg.PublicBaseURL)
		if err != nil {
			logger.Fatal("local storage", err)
		}
		photos, photoFs = local, local.Fs()
	}

	provider := cache.New(cache.GormSource{}, cfg.PollInterval, logger)
	provider.Refresh(ctx)
	if msg := provider.Error(); msg != "" {
		logger.Warn(msg)
	}
	provider.Start(ctx)
	defer provider.Stop()

	app := &handlers.App{Cache: provider, Photos: photos, Log: logger}
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: web.Router(app, web.Options{
			APIKey:    cfg.APIKey,
			JWTSecret: []byte(cfg.JWTSecret),
			PhotoFs:   photoFs,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("SEFIMAP manager listening on " + cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", err)
	}
}
