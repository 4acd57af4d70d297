package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const walletKeyPrefix = "wallet:"

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore persists wallets in Redis, one JSON value per address
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg *RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisStore{rdb: rdb}, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Health checks Redis connectivity
func (s *RedisStore) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get returns the wallet for an address, or nil when it does not exist
func (s *RedisStore) Get(ctx context.Context, address string) (*Wallet, error) {
	data, err := s.rdb.Get(ctx, walletKeyPrefix+address).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	var w Wallet
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet: %w", err)
	}
	return &w, nil
}

// Put creates or replaces a wallet
func (s *RedisStore) Put(ctx context.Context, w *Wallet) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to marshal wallet: %w", err)
	}

	if err := s.rdb.Set(ctx, walletKeyPrefix+w.Address, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set wallet: %w", err)
	}
	return nil
}

// All returns every stored wallet, scanning the wallet key space
func (s *RedisStore) All(ctx context.Context) ([]*Wallet, error) {
	var out []*Wallet

	iter := s.rdb.Scan(ctx, 0, walletKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("failed to get wallet %s: %w", iter.Val(), err)
		}

		var w Wallet
		if err := json.Unmarshal([]byte(data), &w); err != nil {
			return nil, fmt.Errorf("failed to unmarshal wallet %s: %w", iter.Val(), err)
		}
		out = append(out, &w)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan wallets: %w", err)
	}

	return out, nil
}
