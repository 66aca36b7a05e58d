package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/coop-ledger/internal/api"
	"github.com/example/coop-ledger/internal/auth"
	"github.com/example/coop-ledger/internal/config"
	"github.com/example/coop-ledger/internal/ledger"
	"github.com/example/coop-ledger/internal/logger"
	"github.com/example/coop-ledger/internal/metrics"
	"github.com/example/coop-ledger/internal/security"
	"github.com/example/coop-ledger/pkg/audit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := ledger.OpenStore(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, cfg.TxTimeout)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	allowlist, err := security.ParseCIDRAllowlist(cfg.MetricsAllowlist)
	if err != nil {
		return err
	}

	deps := api.Dependencies{
		Logger:           log,
		JWTValidator:     &auth.JWTValidator{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer},
		Ledger:           ledger.NewProvisioningService(store, log, m),
		Auditor:          audit.NewChainLogger(audit.WithLogger(log.Named("audit")), audit.WithRetention(10000)),
		OnRateLimited:    func(*http.Request) { m.IncrementRateLimited() },
		Metrics:          promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		MetricsAllowlist: allowlist,
		MaxBodyBytes:     cfg.MaxBodyBytes,
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		deps.RateLimiter = &security.RedisTokenBucket{
			Redis:      rdb,
			Prefix:     "coopledger_api",
			Capacity:   cfg.RateLimitCapacity,
			RefillRate: cfg.RateLimitRefillPerSec,
		}
	} else {
		log.Warn("REDIS_ADDR not set, rate limiting disabled")
	}

	router, err := api.NewRouter(deps)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	useTLS := cfg.TLSCert != ""
	if useTLS {
		if err := security.VerifyTLSFiles(cfg.TLSCert, cfg.TLSKey, cfg.TLSCA); err != nil {
			return err
		}
		tlsCfg, err := security.LoadServerTLSConfig(security.TLSConfig{
			CertFile: cfg.TLSCert,
			KeyFile:  cfg.TLSKey,
			CAFile:   cfg.TLSCA,
		})
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsCfg
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("ledger http api listening", zap.String("addr", cfg.HTTPAddr), zap.Bool("tls", useTLS))
		var err error
		if useTLS {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down http api")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
