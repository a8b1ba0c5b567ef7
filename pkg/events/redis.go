// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Redis defaults
const (
	DefaultRedisChannel = "camlink:events"
	DefaultHistoryLen   = 1000
)

// RedisOptions configure a RedisPublisher
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	Channel    string
	HistoryLen int64 // length of the per-device history list, 0 for the default
}

// redisClient is the subset of *redis.Client the publisher uses
type redisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	Close() error
}

// RedisPublisher publishes JSON records on a Redis Pub/Sub channel and keeps
// a bounded history list per device
type RedisPublisher struct {
	client     redisClient
	channel    string
	historyLen int64
	log        *logrus.Entry
}

// NewRedisPublisher connects to Redis and verifies the connection
func NewRedisPublisher(ctx context.Context, opts RedisOptions, logger *logrus.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	p := newRedisPublisher(client, opts, logger)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	p.log.WithField("addr", opts.Addr).Info("redis connected")
	return p, nil
}

func newRedisPublisher(client redisClient, opts RedisOptions, logger *logrus.Logger) *RedisPublisher {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	if opts.Channel == "" {
		opts.Channel = DefaultRedisChannel
	}
	if opts.HistoryLen <= 0 {
		opts.HistoryLen = DefaultHistoryLen
	}
	return &RedisPublisher{
		client:     client,
		channel:    opts.Channel,
		historyLen: opts.HistoryLen,
		log:        logger.WithField("component", "events"),
	}
}

// HistoryKey returns the list key holding a device's recent records
func (p *RedisPublisher) HistoryKey(device string) string {
	if device == "" {
		device = "default"
	}
	return fmt.Sprintf("%s:%s:history", p.channel, device)
}

// Publish sends the record to the channel and appends it to the history
func (p *RedisPublisher) Publish(ctx context.Context, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	key := p.HistoryKey(r.Device)
	if err := p.client.LPush(ctx, key, data).Err(); err != nil {
		p.log.WithError(err).Warn("failed to append event history")
		return nil
	}
	if err := p.client.LTrim(ctx, key, 0, p.historyLen-1).Err(); err != nil {
		p.log.WithError(err).Warn("failed to trim event history")
	}
	return nil
}

// Close closes the Redis client
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
