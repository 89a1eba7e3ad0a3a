package redis

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cvtailor/cvtailor/internal/config"
	"github.com/cvtailor/cvtailor/internal/crypto"
	"github.com/cvtailor/cvtailor/internal/domain"
)

// Cache provides Redis caching functionality
type Cache struct {
	client *redis.Client
	sealer *crypto.Sealer
}

// sealedPrefix marks resume values written with a sealer
var sealedPrefix = []byte("enc1:")

// ErrSealedResume is returned when a sealed resume is read without a key
var ErrSealedResume = errors.New("resume is encrypted and no key is configured")

// Key prefixes for different cache types
const (
	PrefixScan      = "cvtailor:scan:"
	PrefixResume    = "cvtailor:resume:"
	PrefixRateLimit = "cvtailor:ratelimit:"
)

// Default TTLs
const (
	ScanTTL         = 10 * time.Minute
	ResumeTTL       = 30 * 24 * time.Hour
	RateLimitWindow = time.Minute
)

// New creates a new Redis cache client
func New(cfg config.RedisConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	cache := NewFromClient(client)
	key, err := crypto.ParseKey(cfg.ResumeKey)
	if err == nil && key != nil {
		err = cache.SetResumeKey(key)
	}
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("resume encryption key: %w", err)
	}
	return cache, nil
}

// NewFromClient wraps an existing client
func NewFromClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// SetResumeKey makes the cache seal resumes at rest. Resumes stored in
// plaintext before the key was set stay readable.
func (c *Cache) SetResumeKey(key []byte) error {
	sealer, err := crypto.NewSealer(key)
	if err != nil {
		return err
	}
	c.sealer = sealer
	return nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Health checks Redis connectivity
func (c *Cache) Health(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client for advanced operations
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Scan result caching

// ScanKey derives the cache key of a scan from the page URL and markup.
// Identical markup scanned at the same URL yields the same result.
func ScanKey(pageURL, html string) string {
	h := sha256.New()
	h.Write([]byte(pageURL))
	h.Write([]byte{0})
	h.Write([]byte(html))
	return hex.EncodeToString(h.Sum(nil))
}

// GetScan retrieves a cached scan result. A miss returns nil, nil.
func (c *Cache) GetScan(ctx context.Context, key string) (*domain.ScanResult, error) {
	var result domain.ScanResult
	found, err := c.getJSON(ctx, PrefixScan+key, &result)
	if err != nil || !found {
		return nil, err
	}
	return &result, nil
}

// SetScan caches a scan result
func (c *Cache) SetScan(ctx context.Context, key string, result *domain.ScanResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ScanTTL
	}
	return c.setJSON(ctx, PrefixScan+key, result, ttl)
}

// Resume store

// GetResume retrieves the selected resume of a user. A miss returns nil, nil.
func (c *Cache) GetResume(ctx context.Context, id string) (*domain.ResumeContent, error) {
	key := PrefixResume + id
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	if bytes.HasPrefix(data, sealedPrefix) {
		if c.sealer == nil {
			return nil, ErrSealedResume
		}
		data, err = c.sealer.Open(data[len(sealedPrefix):], []byte(key))
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", key, err)
		}
	}

	var resume domain.ResumeContent
	if err := json.Unmarshal(data, &resume); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return &resume, nil
}

// SetResume stores the selected resume of a user
func (c *Cache) SetResume(ctx context.Context, resume *domain.ResumeContent) error {
	if resume.ID == "" {
		return fmt.Errorf("resume id is required")
	}
	key := PrefixResume + resume.ID
	if c.sealer == nil {
		return c.setJSON(ctx, key, resume, ResumeTTL)
	}

	data, err := json.Marshal(resume)
	if err != nil {
		return err
	}
	sealed, err := c.sealer.Seal(data, []byte(key))
	if err != nil {
		return fmt.Errorf("sealing %s: %w", key, err)
	}
	return c.client.Set(ctx, key, append(append([]byte(nil), sealedPrefix...), sealed...), ResumeTTL).Err()
}

// DeleteResume removes a stored resume
func (c *Cache) DeleteResume(ctx context.Context, id string) error {
	return c.client.Del(ctx, PrefixResume+id).Err()
}

// Rate limiting

// CheckRateLimit checks and increments rate limit counter
func (c *Cache) CheckRateLimit(ctx context.Context, key string, limit int) (bool, int, error) {
	fullKey := PrefixRateLimit + key

	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, RateLimitWindow)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return false, 0, err
	}

	count := int(incr.Val())
	return count <= limit, count, nil
}

// GetRateLimitRemaining returns remaining rate limit
func (c *Cache) GetRateLimitRemaining(ctx context.Context, key string, limit int) (int, error) {
	fullKey := PrefixRateLimit + key
	count, err := c.client.Get(ctx, fullKey).Int()
	if err != nil {
		if err == redis.Nil {
			return limit, nil
		}
		return 0, err
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return remaining, nil
}

// DeletePattern removes all keys matching a pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}

	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}

	return nil
}

func (c *Cache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

func (c *Cache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}
