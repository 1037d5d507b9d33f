package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/joripage/orderentry-dev/config"
	"github.com/joripage/orderentry-dev/pkg/fixsubmit"
	"github.com/joripage/orderentry-dev/pkg/gateway"
	redis_wrapper "github.com/joripage/orderentry-dev/pkg/infra/redis"
	"github.com/joripage/orderentry-dev/pkg/logging"
	"github.com/joripage/orderentry-dev/pkg/orderevent"
	"github.com/joripage/orderentry-dev/pkg/refquote"
	"github.com/joripage/orderentry-dev/pkg/ticket"
	"github.com/joripage/orderentry-dev/pkg/tradeclient"
)

func main() {
	_ = godotenv.Load()

	var configFile string
	flag.StringVar(&configFile, "config-file", "", "Specify config file path")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		panic(err)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel))
	zap.ReplaceGlobals(logger.Zap())
	defer logger.Sync() // nolint

	configBytes, err := json.MarshalIndent(cfg, "", "   ")
	if err != nil {
		zap.S().Warnf("could not convert config to JSON: %v", err)
	} else {
		zap.S().Debugf("load config %s", string(configBytes))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// quotes
	if cfg.Quotes.Redis == nil {
		zap.S().Fatal("quotes.redis must be configured")
	}
	rdb, err := redis_wrapper.InitRedisWithRetry(cfg.Quotes.Redis, 30*time.Second)
	if err != nil {
		zap.S().Errorf("init redis fail with err: %v", err)
		panic(err)
	}
	tracker := refquote.NewTracker(refquote.TrackerConfig{
		Source:   refquote.NewRedisSource(rdb),
		Assets:   cfg.Quotes.Assets,
		Interval: time.Duration(cfg.Quotes.PollIntervalMS) * time.Millisecond,
	})
	tracker.Start(ctx)

	// the trading backend: order book snapshots always come over HTTP,
	// order submission goes over HTTP or FIX depending on the transport.
	trade := tradeclient.New(tradeclient.Config{
		BaseURL: cfg.Upstream.HTTP.BaseURL,
		Timeout: time.Duration(cfg.Upstream.HTTP.TimeoutSeconds) * time.Second,
	})

	var submitter ticket.Submitter = trade
	if cfg.Upstream.Transport == config.TransportFIX {
		if cfg.Upstream.FIX == nil {
			zap.S().Fatal("upstream.fix must be configured for the fix transport")
		}
		fixSub, err := fixsubmit.New(cfg.Upstream.FIX)
		if err != nil {
			zap.S().Errorf("init fix submitter fail with err: %v", err)
			panic(err)
		}
		if err := fixSub.Start(); err != nil {
			zap.S().Errorf("start fix submitter fail with err: %v", err)
			panic(err)
		}
		defer fixSub.Stop()
		submitter = fixSub
	}

	var recorder ticket.Recorder
	if cfg.Events != nil && len(cfg.Events.Brokers) > 0 {
		pub := orderevent.NewPublisher(*cfg.Events)
		defer pub.Close() // nolint
		recorder = pub
	}

	registry := gateway.NewRegistry(gateway.RegistryConfig{
		Submitter:    submitter,
		Recorder:     recorder,
		Tracker:      tracker,
		HistoryLimit: cfg.Ticket.HistoryLimit,
	})

	srv := gateway.NewServer(gateway.Config{
		Addr:         cfg.Server.Addr,
		AllowOrigins: cfg.Server.AllowOrigins,
	}, registry, trade, tracker)
	srv.Start(ctx)
	fmt.Println("Order entry gateway started. Press Ctrl+C to exit.")

	<-sigs
	fmt.Println("Shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.S().Errorf("shutdown http server: %v", err)
	}

	fmt.Println("Exited cleanly.")
}
