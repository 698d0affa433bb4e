package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"labattend/internal/archive"
	"labattend/internal/attendance"
	"labattend/internal/clock"
	"labattend/internal/config"
	"labattend/internal/directory"
	"labattend/internal/feedback"
	"labattend/internal/httpapi"
	"labattend/internal/logging"
	"labattend/internal/metrics"
	"labattend/internal/queue"
	"labattend/internal/scanner"
	"labattend/internal/session"
	"labattend/internal/store"
)

func main() {
	envFiles, envErr := config.LoadDotEnv()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log, err := logging.New("api", cfg.LogLevel, cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()
	if envErr != nil {
		log.Warn("dotenv", zap.Error(envErr))
	}
	if len(envFiles) > 0 {
		log.Info("loaded env files", zap.Strings("files", envFiles))
	}
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("http server failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed, err := directory.LoadSeed(cfg.SeedFile)
	if err != nil {
		return err
	}
	dir, err := directory.NewMemory(seed)
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}

	health := map[string]httpapi.HealthCheck{}
	repo, closeRepo, err := openRecords(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer closeRepo()
	if history := attendance.FromHistory(seed.Attendance); len(history) > 0 {
		if existing, err := repo.List(ctx, attendance.Filter{Limit: 1}); err == nil && len(existing) == 0 {
			if err := repo.Append(ctx, history); err != nil {
				log.Warn("seeding attendance history failed", zap.Error(err))
			}
		}
	}

	q, closeQueue, err := openQueue(cfg, log, health)
	if err != nil {
		return err
	}
	defer closeQueue()
	if mem, ok := q.(*queue.InMemory); ok {
		// no external worker can see an in-process queue
		go func() { _ = archive.NewWriter(cfg.ExportDir, dir, log).Run(ctx, mem) }()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	clk := clock.Real{}
	board := feedback.NewBoard(clk, 50)
	notifier := feedback.Multi{board, logNotifier{log.Named("feedback")}}

	var transport scanner.Transport = scanner.Unsupported{}
	var sim *scanner.Simulated
	if len(cfg.ScannerDevices) > 0 {
		sim = scanner.NewSimulated(cfg.ScannerDevices...)
		transport = sim
	}
	mgr := scanner.NewManager(transport, scanner.Options{
		ReconnectDelay: cfg.ReconnectDelay,
		ConnectTimeout: cfg.ConnectTimeout,
		AutoReconnect:  cfg.AutoReconnect,
		Clock:          clk,
		Notifier:       deviceBanners{notifier, cfg.DeviceBannerDuration},
		Metrics:        m,
		Logger:         log,
	})

	mat := attendance.NewMaterializer(repo, q, attendance.MaterializerOptions{
		Percentage: cfg.PlaceholderPercentage,
		Metrics:    m,
		Logger:     log,
	})
	engine := session.NewEngine(dir, mat, session.Options{
		Connectivity:   mgr,
		Clock:          clk,
		Notifier:       notifier,
		Metrics:        m,
		Logger:         log,
		BannerDuration: cfg.BannerDuration,
	})

	deps := httpapi.Deps{
		Scanner:    mgr,
		Engine:     engine,
		Directory:  dir,
		Records:    repo,
		Board:      board,
		Gatherer:   reg,
		Health:     health,
		Logger:     log,
		Clock:      clk,
		RatePerMin: cfg.RateLimitPerMin,
		Origins:    cfg.CORSOrigins,
	}
	if sim != nil {
		deps.Simulator = sim
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.Bool("scanner_supported", transport.Supported()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced shutdown", zap.Error(err))
	}
	mgr.Disconnect()
	log.Info("server exited")
	return nil
}

func openRecords(ctx context.Context, cfg config.App, log *zap.Logger, health map[string]httpapi.HealthCheck) (attendance.Repository, func(), error) {
	if cfg.DatabaseDriver == "memory" {
		log.Info("attendance records kept in memory")
		return attendance.NewMemoryRepository(), func() {}, nil
	}
	db, err := store.NewDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	repo := attendance.NewSQLRepository(db.Client)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	health["db"] = db.Healthy
	log.Info("attendance records in database", zap.String("driver", db.Driver))
	return repo, func() { _ = db.Close() }, nil
}

func openQueue(cfg config.App, log *zap.Logger, health map[string]httpapi.HealthCheck) (queue.Queue, func(), error) {
	switch cfg.QueueBackend {
	case "redis":
		rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		health["redis"] = rdb.Healthy
		return queue.NewRedisQueue(rdb.Client, cfg.QueueKey), func() { _ = rdb.Close() }, nil
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("labattend-api"), nats.MaxReconnects(-1))
		if err != nil {
			return nil, nil, fmt.Errorf("nats connect: %w", err)
		}
		health["nats"] = func(context.Context) bool { return nc.IsConnected() }
		return queue.NewNATSQueue(nc, cfg.QueueKey), nc.Close, nil
	default:
		log.Info("using in-process queue")
		return queue.NewInMemory(64), func() {}, nil
	}
}

// deviceBanners stretches scanner notifications to the device banner duration.
type deviceBanners struct {
	next feedback.Notifier
	d    time.Duration
}

func (n deviceBanners) Notify(s feedback.Signal) {
	if n.d > 0 {
		s.Duration = n.d
	}
	n.next.Notify(s)
}

type logNotifier struct{ log *zap.Logger }

func (n logNotifier) Notify(s feedback.Signal) {
	n.log.Debug(s.Message, zap.String("kind", string(s.Kind)), zap.Duration("banner", s.Duration))
}
