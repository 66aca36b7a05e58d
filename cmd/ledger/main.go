package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/coop-ledger/internal/auth"
	"github.com/example/coop-ledger/internal/config"
	"github.com/example/coop-ledger/internal/ledger"
	"github.com/example/coop-ledger/internal/logger"
	"github.com/example/coop-ledger/internal/metrics"
	"github.com/example/coop-ledger/internal/rpc"
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
		log.Fatal("ledger grpc server stopped", zap.Error(err))
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

	validator := &auth.JWTValidator{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer}
	chain := audit.NewChainLogger(audit.WithLogger(log.Named("audit")), audit.WithRetention(10000))

	opts := rpc.ServerOptions(log, validator, chain)
	if cfg.TLSCert != "" {
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
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsCfg)))
	}

	grpcServer := grpc.NewServer(opts...)
	rpc.RegisterProvisioningServer(grpcServer, rpc.NewServer(ledger.NewProvisioningService(store, log, m), log))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	mux := http.NewServeMux()
	mux.Handle("/metrics", security.IPAllowlist(allowlist)(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))
	metricsServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("ledger grpc server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info("metrics listening", zap.String("addr", cfg.HTTPAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down ledger grpc server")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-shutdownCtx.Done():
			grpcServer.Stop()
		}
		return metricsServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
