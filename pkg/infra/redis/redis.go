package redis_wrapper

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisConfig struct {
	ConnectionURL       string `yaml:"connection_url"`
	PoolSize            int    `yaml:"pool_size"`
	DialTimeoutSeconds  int    `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// InitRedis create a redis client from config
func InitRedis(redisCfg *RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisCfg.ConnectionURL)
	if err != nil {
		zap.S().Debugf("parse redis url fail: %+v", err)
		return nil, err
	}

	if redisCfg.PoolSize > 0 {
		opts.PoolSize = redisCfg.PoolSize
	}
	opts.DialTimeout = time.Duration(redisCfg.DialTimeoutSeconds) * time.Second
	opts.ReadTimeout = time.Duration(redisCfg.ReadTimeoutSeconds) * time.Second
	opts.WriteTimeout = time.Duration(redisCfg.WriteTimeoutSeconds) * time.Second

	redisClient := redis.NewClient(opts)

	cmd := redisClient.Ping(context.Background())
	if cmd.Err() != nil {
		return nil, cmd.Err()
	}

	zap.S().Debug("connect to redis successful")
	return redisClient, nil
}

// InitRedisWithRetry keeps dialing until redis answers or the backoff gives
// up. The quote tracker cannot run without its source, so startup waits.
func InitRedisWithRetry(redisCfg *RedisConfig, maxElapsed time.Duration) (*redis.Client, error) {
	var client *redis.Client

	boff := backoff.NewExponentialBackOff()
	if maxElapsed > 0 {
		boff.MaxElapsedTime = maxElapsed
	}

	err := backoff.Retry(func() error {
		var errNested error
		client, errNested = InitRedis(redisCfg)
		if errNested != nil {
			zap.S().Warnf("connect redis error: %v", errNested)
		}
		return errNested
	}, boff)
	if err != nil {
		return nil, err
	}
	return client, nil
}
