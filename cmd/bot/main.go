package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"halftime_bot/internal/bot"
	"halftime_bot/internal/config"
	"halftime_bot/internal/keepalive"
	"halftime_bot/internal/league"
	"halftime_bot/internal/metrics"
	"halftime_bot/internal/monitor"
	"halftime_bot/internal/sofascore"
	"halftime_bot/internal/state"
	"halftime_bot/internal/storage"
)

func main() {
	// A missing .env is fine: the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log, closeLog := newLogger(cfg)
	defer closeLog()

	if err := run(cfg, log); err != nil {
		log.Error("bot exited", "error", err)
		closeLog()
		os.Exit(1)
	}
	log.Info("bot stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			return err
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		return err
	}
	defer func() { _ = store.Close() }()

	catalog, err := loadCatalog(cfg.LeagueCatalogPath)
	if err != nil {
		log.Error("load league catalog", "path", cfg.LeagueCatalogPath, "error", err)
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := state.New(ctx, store, catalog, log)
	if err != nil {
		log.Error("load state", "error", err)
		return err
	}

	b, err := bot.New(cfg, st, catalog, log)
	if err != nil {
		log.Error("create bot", "error", err)
		return err
	}

	source := sofascore.New(
		&http.Client{Timeout: cfg.RequestTimeout},
		cfg.SofascoreBaseURL,
		cfg.RequestsPerMinute,
		cfg.RequestTimeout,
	)
	met := metrics.New()

	mon := monitor.New(monitor.Config{
		ChatID:        cfg.ChatID,
		Interval:      cfg.PollInterval,
		StartDelay:    cfg.PollStartDelay,
		Retention:     cfg.NotifiedRetention,
		NotifyTimeout: cfg.RequestTimeout,
	}, source, b, st, met, log)
	b.SetPoller(mon)

	srv := keepalive.New(cfg.Port, mon, met.Handler(), log)

	log.Info("starting bot",
		"chat_id", cfg.ChatID,
		"leagues", len(st.Leagues()),
		"interval", cfg.PollInterval,
		"port", cfg.Port,
	)

	var (
		wg     sync.WaitGroup
		errsMu sync.Mutex
		errs   []error
	)
	fail := func(err error) {
		errsMu.Lock()
		errs = append(errs, err)
		errsMu.Unlock()
		cancel()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		b.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := mon.Run(ctx); err != nil {
			fail(err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx); err != nil {
			fail(err)
		}
	}()

	<-ctx.Done()
	wg.Wait()

	// Persist anything a failed write left pending.
	st.Flush(context.Background())

	return errors.Join(errs...)
}

func loadCatalog(path string) (*league.Catalog, error) {
	if path == "" {
		return league.Default()
	}
	return league.Load(path)
}

// newLogger writes to stderr and, when LOG_FILE is set, to a rotated file.
func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		}
		w = io.MultiWriter(os.Stderr, lj)
		closeFn = func() { _ = lj.Close() }
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()})), closeFn
}
