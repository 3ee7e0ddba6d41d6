package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/jeovahfialho/mt5-history/internal/config"
)

var ErrCacheMiss = errors.New("chave não encontrada no cache")

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("erro ao parsear URL Redis: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("erro ao conectar Redis: %w", err)
	}

	return NewWithClient(client, cfg.CacheTTL), nil
}

// NewWithClient usa um client já configurado (testes, CLI).
func NewWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("erro ao buscar do cache: %w", err)
	}

	if err := json.Unmarshal(val, dest); err != nil {
		// entrada corrompida: remove para a próxima leitura ir à origem
		_ = c.client.Del(ctx, key).Err()
		return fmt.Errorf("erro ao deserializar: %w", err)
	}

	return nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl ...time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("erro ao serializar: %w", err)
	}

	expiration := c.ttl
	if len(ttl) > 0 {
		expiration = ttl[0]
	}

	if err := c.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("erro ao salvar no cache: %w", err)
	}

	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

var patternEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// EscapePattern neutraliza os metacaracteres de glob do SCAN para que s case apenas com ele mesmo.
func EscapePattern(s string) string {
	return patternEscaper.Replace(s)
}

// DeletePattern remove todas as chaves que casam com pattern e devolve quantas foram removidas.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var cursor uint64
	removed := 0

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return removed, err
		}

		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
