package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/orgctl/orgctl/internal/auth/authn"
	"github.com/orgctl/orgctl/internal/cache"
	"github.com/orgctl/orgctl/internal/config"
	"github.com/orgctl/orgctl/internal/directory"
	"github.com/orgctl/orgctl/internal/ecosystem"
	"github.com/orgctl/orgctl/internal/instrumentation"
	"github.com/orgctl/orgctl/internal/server"
	"github.com/orgctl/orgctl/pkg/log"
)

func main() {
	log := log.InitLogs()
	log.Println("Starting orgctl API service")
	defer log.Println("orgctl API service stopped")

	cfg, err := config.LoadOrGenerate(config.ConfigFile())
	if err != nil {
		log.Fatalf("reading configuration: %v", err)
	}
	log.Printf("Using config:\n%s", cfg)

	logLvl, err := logrus.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		logLvl = logrus.InfoLevel
	}
	log.SetLevel(logLvl)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	verifier, err := authn.NewJWKSVerifier(ctx, cfg.Directory.Endpoint, nil)
	if err != nil {
		log.Fatalf("initializing token verifier: %v", err)
	}

	metrics := instrumentation.NewMetrics()

	dir, err := directory.NewClient(ctx, directory.Config{
		Endpoint:     cfg.Directory.Endpoint,
		ClientID:     cfg.Directory.ClientID,
		ClientSecret: cfg.Directory.ClientSecret,
		Resource:     cfg.Directory.Resource,
		Timeout:      cfg.DirectoryTimeout(),
	})
	if err != nil {
		log.Fatalf("initializing directory client: %v", err)
	}
	dir.SetMetricsCallback(metrics.DirectoryCallback)

	appCache := cache.NewTTL[[]ecosystem.App](cfg.CacheTTL())
	go appCache.Start(ctx)

	resolver := ecosystem.NewResolver(
		dir,
		appCache,
		log.WithField("pkg", "ecosystem"),
		ecosystem.WithCacheTTL(cfg.CacheTTL()),
		ecosystem.WithScanLimit(cfg.ScanLimit()),
		ecosystem.WithCacheMetrics(metrics.CacheCallback),
	)

	srv := server.New(log, cfg, verifier, authn.NewBuilder(), resolver, metrics)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("running API server: %v", err)
	}
}
