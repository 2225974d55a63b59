package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"quoteflow/config"
	"quoteflow/internal/aggregator"
	"quoteflow/internal/api"
	"quoteflow/internal/capture"
	"quoteflow/internal/model"
	"quoteflow/internal/stream"
	"quoteflow/internal/symbols"
	"quoteflow/internal/venue"
	"quoteflow/internal/venue/binance"
	"quoteflow/internal/venue/bybit"
	"quoteflow/internal/venue/kucoin"
	"quoteflow/internal/venue/mock"
	"quoteflow/internal/venue/okx"
	"quoteflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Quoteflow.Name,
		"version":     cfg.Quoteflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting quoteflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	caps := venue.DefaultCapabilities()
	mapper := symbols.NewMapper(caps)
	registry := venue.NewRegistry(caps)

	var cache *stream.Cache
	var bookTicker *stream.BookTicker
	if cfg.Stream.Enabled {
		cache = stream.NewCache(cfg.Aggregator.MaxAgeMs)
		bookTicker = stream.NewBookTicker(cfg.Stream, cache)
	}

	registerVenues(registry, cfg, mapper, cache, log)
	if len(registry.Venues()) == 0 {
		log.Error("no venues enabled in configuration")
		os.Exit(1)
	}
	log.WithFields(logger.Fields{"venues": registry.Venues()}).Info("venues registered")

	agg := aggregator.New(registry, aggregator.Options{
		MaxAgeMs:     cfg.Aggregator.MaxAgeMs,
		VenueTimeout: cfg.Aggregator.VenueTimeout,
	})

	apiServer := api.NewServer(cfg.API, agg, registry, mapper)

	var recorder *capture.Recorder
	if cfg.Capture.Enabled {
		recorder, err = capture.NewRecorder(cfg.Capture)
		if err != nil {
			log.WithError(err).Error("failed to create quote recorder")
			os.Exit(1)
		}
	}

	var wg sync.WaitGroup

	if bookTicker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := bookTicker.Start(ctx); err != nil {
				log.WithError(err).Warn("stream failed to start")
			}
		}()
	}

	if recorder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Start(ctx); err != nil {
				log.WithError(err).Warn("quote recorder failed to start")
				return
			}
			sampleQuotes(ctx, registry, recorder, cfg, log)
		}()
	}

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Run(ctx); err != nil {
				log.WithError(err).Error("api server failed")
				cancel()
			}
		}()
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if recorder != nil {
		log.Info("stopping quote recorder")
		recorder.Stop()
	}
	if bookTicker != nil {
		log.Info("stopping stream")
		bookTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("quoteflow stopped")
}

func registerVenues(registry *venue.Registry, cfg *config.Config, mapper *symbols.Mapper, cache *stream.Cache, log *logger.Log) {
	if cfg.Venues.Binance.Enabled {
		adapter := binance.New(cfg.Venues.Binance, mapper)
		if cache != nil {
			adapter = adapter.WithCache(cache)
		}
		register(registry, adapter, log)
	}
	if cfg.Venues.Bybit.Enabled {
		register(registry, bybit.New(cfg.Venues.Bybit, mapper), log)
	}
	if cfg.Venues.Kucoin.Enabled {
		register(registry, kucoin.New(cfg.Venues.Kucoin, mapper), log)
	}
	if cfg.Venues.Okx.Enabled {
		register(registry, okx.New(cfg.Venues.Okx, mapper), log)
	}
	if cfg.Venues.Mock.Enabled {
		register(registry, mock.New(), log)
	}
}

func register(registry *venue.Registry, adapter venue.Adapter, log *logger.Log) {
	if err := registry.Register(adapter); err != nil {
		log.WithError(err).WithFields(logger.Fields{"venue": adapter.Name()}).Warn("failed to register venue")
	}
}

// sampleQuotes polls every registered venue for the configured symbols and
// feeds the recorder until the context ends.
func sampleQuotes(ctx context.Context, registry *venue.Registry, recorder *capture.Recorder, cfg *config.Config, log *logger.Log) {
	pairs := make([]model.Pair, 0, len(cfg.Stream.Symbols))
	for _, sym := range cfg.Stream.Symbols {
		pair, err := model.ParsePair(sym)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": sym}).Warn("skipping unparseable capture symbol")
			continue
		}
		pairs = append(pairs, pair)
	}
	if len(pairs) == 0 {
		log.WithComponent("capture").Warn("capture enabled but no symbols configured")
		return
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, venueID := range registry.Venues() {
				adapter, err := registry.Get(venueID)
				if err != nil {
					continue
				}
				for _, pair := range pairs {
					callCtx, cancel := context.WithTimeout(ctx, cfg.Aggregator.VenueTimeout)
					quote, err := adapter.GetBestBidAsk(callCtx, pair)
					cancel()
					if err != nil {
						continue
					}
					recorder.Add(quote)
				}
			}
		}
	}
}
