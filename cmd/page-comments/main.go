package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/pribylovaa/page-comments/internal/cache"
	"github.com/pribylovaa/page-comments/internal/config"
	"github.com/pribylovaa/page-comments/internal/geo"
	apihttp "github.com/pribylovaa/page-comments/internal/http"
	"github.com/pribylovaa/page-comments/internal/metrics"
	"github.com/pribylovaa/page-comments/internal/ratelimit"
	"github.com/pribylovaa/page-comments/internal/service"
	"github.com/pribylovaa/page-comments/internal/storage"
	pcmongo "github.com/pribylovaa/page-comments/internal/storage/mongo"
	"github.com/pribylovaa/page-comments/internal/storage/postgres"
)

// Константы окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting page-comments", "env", cfg.Env, "db_driver", cfg.DB.Driver)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	dbCtx, dbCancel := context.WithTimeout(rootCtx, 10*time.Second)
	store, err := openStorage(dbCtx, cfg.DB)
	dbCancel()
	if err != nil {
		log.Error(cfg.DB.Driver+"_connect_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}
	log.Info(cfg.DB.Driver + "_connected")

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		c        cache.Cache
		counters ratelimit.CounterStore
	)
	if cfg.Redis.URL != "" {
		redisCtx, redisCancel := context.WithTimeout(rootCtx, 5*time.Second)
		var rdb *redis.Client
		rdb, err = cache.Connect(redisCtx, cfg.Redis.URL)
		redisCancel()
		if err != nil {
			log.Error("redis_connect_failed", slog.String("err", err.Error()))
			rootCancel()
			store.Close()
			os.Exit(1)
		}
		log.Info("redis_connected")

		// Один клиент на кэш и счётчики; закрывает его кэш.
		c = cache.NewRedisCache(rdb, cfg.Redis.Prefix)
		counters = ratelimit.NewRedisStore(rdb, cfg.Redis.Prefix)
	} else {
		log.Warn("redis_disabled_using_memory")
		mem := ratelimit.NewMemoryStore(nil)
		memCache := cache.NewMemory()
		go sweep(rootCtx, time.Minute, mem, memCache)

		c = memCache
		counters = mem
	}

	locator := geo.New(cfg.Geo, &http.Client{}, c, m)
	limiter := ratelimit.New(counters, cfg.RateLimit)

	svc := service.New(service.Deps{
		Storage: store,
		Cache:   c,
		Limiter: limiter,
		Geo:     locator,
		Metrics: m,
	}, *cfg)
	log.Info("service_initialized")

	api := apihttp.NewRouter(svc, apihttp.Options{
		Logger:            log,
		Metrics:           m,
		Timeout:           cfg.Timeouts.Service,
		BasePath:          cfg.HTTP.BasePath,
		CORSOrigins:       cfg.HTTP.CORSOrigins,
		TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
		AdminSecret:       cfg.Admin.JWTSecret,
		AdminIssuer:       cfg.Admin.Issuer,
	})
	if cfg.Admin.JWTSecret == "" {
		log.Warn("admin_routes_disabled")
	}

	// readiness/liveness/metrics + API
	var ready int32 // 1, когда сервис готов принимать трафик

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := svc.Ping(ctx); err != nil {
			log.Warn("healthz_ping_failed", slog.String("err", err.Error()))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Info("http_listen_start", "addr", httpAddr, "base_path", cfg.HTTP.BasePath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_force_stop", slog.String("err", err.Error()))
		_ = httpSrv.Close()
	} else {
		log.Info("http_stopped")
	}
	shutdownCancel()

	rootCancel()
	_ = c.Close()
	store.Close()

	log.Info("service_stopped")
	os.Exit(0)
}

// openStorage подключает хранилище по cfg.Driver.
func openStorage(ctx context.Context, cfg config.DBConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.URL)
	case config.DriverMongo:
		return pcmongo.New(ctx, cfg.URL)
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.Driver)
	}
}

// sweeper — in-memory хранилище с ручной чисткой просроченных записей.
type sweeper interface{ Sweep() }

// sweep периодически чистит истёкшие записи in-memory хранилищ.
func sweep(ctx context.Context, every time.Duration, ss ...sweeper) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, s := range ss {
				s.Sweep()
			}
		}
	}
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
