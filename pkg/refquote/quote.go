// Package refquote tracks the reference prices order tickets quote against.
// Mid, bid and ask are produced by the market data pipeline elsewhere; this
// package only reads them, polls for changes and fans updates out.
package refquote

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

var ErrNoQuote = errors.New("no quote for asset")

// Quote is one asset's reference price set as published by the market data
// pipeline.
type Quote struct {
	Asset string          `json:"asset"`
	Bid   decimal.Decimal `json:"bid"`
	Ask   decimal.Decimal `json:"ask"`
	Mid   decimal.Decimal `json:"mid"`
	TS    int64           `json:"ts"`
}

// Source supplies the current quote for an asset.
type Source interface {
	Fetch(ctx context.Context, asset string) (Quote, error)
}

// RedisSource reads quotes from the JSON blobs the market data pipeline
// maintains under quote:{ASSET}.
type RedisSource struct {
	rdb *redis.Client
}

func NewRedisSource(rdb *redis.Client) *RedisSource {
	return &RedisSource{rdb: rdb}
}

func quoteKey(asset string) string {
	return "quote:" + strings.ToUpper(asset)
}

func (s *RedisSource) Fetch(ctx context.Context, asset string) (Quote, error) {
	raw, err := s.rdb.Get(ctx, quoteKey(asset)).Result()
	if err == redis.Nil {
		return Quote{}, ErrNoQuote
	}
	if err != nil {
		return Quote{}, err
	}

	var q Quote
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return Quote{}, err
	}
	if q.Asset == "" {
		q.Asset = strings.ToUpper(asset)
	}
	return q, nil
}
