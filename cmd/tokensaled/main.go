package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokensale/audit"
	"tokensale/config"
	"tokensale/core"
	"tokensale/core/events"
	"tokensale/observability"
	"tokensale/observability/logging"
	"tokensale/observability/metrics"
	"tokensale/rpc"
	"tokensale/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("SALE_ENV"))
	logger := logging.Setup("tokensaled", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	node, err := core.NewNode(db, cfg.SaleAccountAddress())
	if err != nil {
		logger.Error("Failed to initialise sale node", "error", err)
		os.Exit(1)
	}

	manifest, err := config.LoadFeedManifest(cfg.FeedManifest)
	if err != nil {
		logger.Error("Failed to load feed manifest", "error", err)
		os.Exit(1)
	}
	if err := manifest.Build(node.Feeds(), http.DefaultClient); err != nil {
		logger.Error("Failed to register price feeds", "error", err)
		os.Exit(1)
	}

	auditStore, err := audit.Open(cfg.AuditDatabase)
	if err != nil {
		logger.Error("Failed to open audit database", "error", err, "path", cfg.AuditDatabase)
		os.Exit(1)
	}
	defer func() { _ = auditStore.Close() }()

	node.SetEmitter(events.MultiEmitter{
		audit.NewEmitter(auditStore, logger),
		observability.NewMetricsEmitter(),
	})

	saleMetrics := metrics.Sale()
	node.SetFallbackHook(func(asset [20]byte, cause error) {
		logger.Warn("Oracle rate unavailable, manual rate used", "asset", fmt.Sprintf("%x", asset), "reason", cause.Error())
		saleMetrics.ObserveOracleFallback(fmt.Sprintf("%x", asset))
	})

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("Serving metrics", "addr", cfg.MetricsAddress)
		if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
			logger.Error("Metrics server stopped", "error", err)
		}
	}()

	adminToken := cfg.AdminToken()
	if adminToken == "" {
		logger.Warn("Admin token not set, admin RPC surface disabled", "env", cfg.AdminTokenEnv)
	}

	server := rpc.NewServer(node,
		rpc.WithAuthToken(adminToken),
		rpc.WithRateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst),
		rpc.WithLogger(logger),
	)
	logger.Info("Sale node ready", "rpc", cfg.RPCAddress, "data", cfg.DataDir)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", "error", err)
		os.Exit(1)
	}
}
