// quotefeed stands in for the market data pipeline during development: it
// random walks a mid per asset and maintains the quote:{ASSET} keys the
// gateway polls.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	redis_wrapper "github.com/joripage/orderentry-dev/pkg/infra/redis"
	"github.com/joripage/orderentry-dev/pkg/refquote"
)

func main() {
	var (
		redisURL = flag.String("redis", "redis://localhost:6379", "redis connection url")
		assets   = flag.String("assets", "BTC-USD:64000,ETH-USD:3000", "comma separated ASSET:START pairs")
		interval = flag.Duration("interval", time.Second, "publish interval")
		spreadBp = flag.Int64("spread-bp", 4, "bid/ask spread in basis points")
	)
	flag.Parse()

	mids, err := parseAssets(*assets)
	if err != nil {
		panic(err)
	}

	rdb, err := redis_wrapper.InitRedis(&redis_wrapper.RedisConfig{ConnectionURL: *redisURL})
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	halfSpread := decimal.New(*spreadBp, -4).Div(decimal.NewFromInt(2))

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	fmt.Printf("Publishing quotes for %d assets every %s. Press Ctrl+C to exit.\n", len(mids), *interval)

	for {
		select {
		case <-sigs:
			fmt.Println("Exited cleanly.")
			return
		case <-ticker.C:
			for asset, mid := range mids {
				mids[asset] = step(mid)
				publish(ctx, rdb, asset, mids[asset], halfSpread)
			}
		}
	}
}

func parseAssets(s string) (map[string]decimal.Decimal, error) {
	mids := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(s, ",") {
		name, start, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("bad asset pair %q, want ASSET:START", pair)
		}
		mid, err := decimal.NewFromString(start)
		if err != nil {
			return nil, fmt.Errorf("bad start price in %q: %w", pair, err)
		}
		mids[strings.ToUpper(name)] = mid
	}
	return mids, nil
}

// step moves the mid by up to ±10bp.
func step(mid decimal.Decimal) decimal.Decimal {
	bp := decimal.New(rand.Int63n(21)-10, -4)
	return mid.Add(mid.Mul(bp)).Round(2)
}

func publish(ctx context.Context, rdb *redis.Client, asset string, mid, halfSpread decimal.Decimal) {
	q := refquote.Quote{
		Asset: asset,
		Bid:   mid.Sub(mid.Mul(halfSpread)).Round(2),
		Ask:   mid.Add(mid.Mul(halfSpread)).Round(2),
		Mid:   mid,
		TS:    time.Now().UnixMilli(),
	}
	b, err := json.Marshal(q)
	if err != nil {
		zap.S().Warnf("marshal quote %s: %v", asset, err)
		return
	}
	if err := rdb.Set(ctx, "quote:"+asset, b, 0).Err(); err != nil {
		zap.S().Warnf("publish quote %s: %v", asset, err)
	}
}
