package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type RedisConfig struct {
	Addr     string
	DB       int
	Password string
}

// Redis is the process-wide shared store used when several instances run side by side.
type Redis struct {
	rdb *redis.Client
	log *logrus.Entry
}

var _ Store = (*Redis)(nil)

func NewRedis(cfg RedisConfig, log *logrus.Entry) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
	return &Redis{rdb: rdb, log: log}
}

func (c *Redis) Ping(ctx context.Context) error {
	err := c.rdb.Ping(ctx).Err()
	if err != nil {
		c.log.Warnf("PING failed: %v", err)
	} else {
		c.log.Debug("PING ok")
	}
	return err
}

func (c *Redis) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.log.Warnf("error while closing: %v", err)
		return err
	}
	c.log.Debug("closed")
	return nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debugf("GET %q: miss", key)
		return nil, false, nil
	}
	if err != nil {
		c.log.Warnf("GET %q: %v", key, err)
		return nil, false, err
	}
	c.log.Debugf("GET %q: hit (%d bytes)", key, len(b))
	return b, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	err := c.rdb.Set(ctx, key, val, ttl).Err()
	if err != nil {
		c.log.Warnf("SET %q failed: %v", key, err)
	} else {
		c.log.Debugf("SET %q ok (ttl=%s)", key, ttl)
	}
	return err
}
