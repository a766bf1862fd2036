package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"commute-annotator/adapters"
	"commute-annotator/annotator"
	"commute-annotator/cache"
	"commute-annotator/commute"
	"commute-annotator/internal/types"
	"commute-annotator/maps"
	"commute-annotator/resolver"
	"commute-annotator/settings"
	"commute-annotator/utils"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	// Parse command line flags
	var (
		urlFlag       = flag.String("url", "", "Host-site page to open")
		settingsPath  = flag.String("settings", "settings.json", "Settings file path")
		resolverURL   = flag.String("resolver-url", "", "Resolver API endpoint (default: resolve in-process)")
		redisAddr     = flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for the geocode cache")
		metricsAddr   = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
		requestDelay  = flag.Duration("delay", 100*time.Millisecond, "Minimum delay between outgoing requests")
		retries       = flag.Int("retries", 2, "Retries for transient commute failures")
		timeout       = flag.Duration("timeout", 30*time.Second, "Request timeout")
		maxConcurrent = flag.Int("concurrent", 3, "Maximum commute resolutions in flight")
		lookahead     = flag.Int("lookahead", 100, "Pixels below the viewport at which cards are processed")
		headful       = flag.Bool("headful", false, "Show the browser window")
		verbose       = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if *urlFlag == "" {
		log.Fatal("--url flag is required")
	}

	// Setup logging
	logger := logrus.New()

	// Set timestamp format with milliseconds
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	// Set log level from LOG_LEVEL env if present
	if levelStr := os.Getenv("LOG_LEVEL"); levelStr != "" {
		if level, err := logrus.ParseLevel(levelStr); err == nil {
			logger.SetLevel(level)
		}
	} else if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Create configuration
	config := types.DefaultConfig()
	config.RequestDelay = *requestDelay
	config.ResolveRetries = *retries
	config.Timeout = *timeout
	config.MaxConcurrentRequests = *maxConcurrent
	config.LookaheadPixels = *lookahead
	config.UseHeadlessBrowser = !*headful

	store, err := settings.Open(*settingsPath, logger)
	if err != nil {
		logger.Fatalf("Failed to load settings: %v", err)
	}
	store.Watch()
	if err := store.Validate(store.Get()); err != nil {
		logger.Warnf("Settings incomplete (%v); listings will show a configuration notice", err)
	}

	tracer := utils.NewTracer(logger, store.Get().DebugMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := utils.NewHTTPClient(config, logger, tracer)
	defer httpClient.Close()

	var backend commute.Resolver
	if *resolverURL != "" {
		logger.Infof("Resolving commutes through %s", *resolverURL)
		backend = utils.NewRemoteResolver(httpClient, *resolverURL, tracer)
	} else {
		geocache := maps.OpenGeocodeCache(ctx, *redisAddr, 24*time.Hour, logger)
		mapsClient := maps.NewClient(httpClient, logger, tracer, "", "")
		backend = resolver.NewService(store, mapsClient, geocache, logger, tracer)
	}
	client := commute.NewClient(backend, config, logger, tracer)

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Infof("Serving metrics on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Errorf("Metrics server stopped: %v", err)
			}
		}()
	}

	browserClient := utils.NewBrowserClient(config, logger)
	page, err := browserClient.Open(ctx, *urlFlag)
	if err != nil {
		logger.Fatalf("Failed to open %s: %v", *urlFlag, err)
	}
	defer page.Close()

	site := adapters.NewStreetEasyAdapter(config, logger, tracer)
	results := cache.New(config.CacheCapacity, config.CacheTTL)
	controller := annotator.NewController(page, site, store, client, results, config, logger, tracer)

	logger.Infof("Annotating %s; press Ctrl+C to stop", *urlFlag)
	if err := controller.Run(ctx); err != nil {
		logger.Errorf("Annotator stopped: %v", err)
	}
	logger.Info("Annotator stopped")
}
