package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const tailorKeyPrefix = "cvtailor:tailor:"

// TailorRequest identifies one tailoring answer. The CV is kept only as a
// digest so cache keys never carry resume text.
type TailorRequest struct {
	Model          string
	JobDescription string
	CVHash         string
}

// NewTailorRequest builds the cache identity for tailoring userCV against
// jobDescription on model
func NewTailorRequest(model, jobDescription, userCV string) TailorRequest {
	sum := sha256.Sum256([]byte(userCV))
	return TailorRequest{
		Model:          model,
		JobDescription: jobDescription,
		CVHash:         hex.EncodeToString(sum[:]),
	}
}

func (r TailorRequest) key() string {
	h := sha256.New()
	h.Write([]byte(r.Model))
	h.Write([]byte{0})
	h.Write([]byte(r.JobDescription))
	h.Write([]byte{0})
	h.Write([]byte(r.CVHash))
	return tailorKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// TokenUsage is the estimated size of one tailoring exchange
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type tailorAnswer struct {
	Text    string     `json:"text"`
	Usage   TokenUsage `json:"usage"`
	expires time.Time
}

// TailorCache keeps tailored CVs in memory and, when a client is given, in
// redis. Memory entries expire lazily on read; the oldest entry is dropped
// once maxEntries is reached.
type TailorCache struct {
	rdb        *redis.Client
	ttl        time.Duration
	maxEntries int
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]tailorAnswer
	order   []string
}

// NewTailorCache creates a cache. rdb may be nil.
func NewTailorCache(rdb *redis.Client, ttl time.Duration, maxEntries int, logger *zap.Logger) *TailorCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TailorCache{
		rdb:        rdb,
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
		entries:    make(map[string]tailorAnswer),
	}
}

// Get returns the cached answer for req
func (c *TailorCache) Get(ctx context.Context, req TailorRequest) (string, TokenUsage, bool) {
	key := req.key()

	c.mu.Lock()
	a, ok := c.entries[key]
	if ok && !a.expires.After(c.now()) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if ok {
		return a.Text, a.Usage, true
	}

	if c.rdb == nil {
		return "", TokenUsage{}, false
	}
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("Tailor cache read failed", zap.Error(err))
		}
		return "", TokenUsage{}, false
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return "", TokenUsage{}, false
	}
	c.remember(key, a)
	return a.Text, a.Usage, true
}

// Set stores the answer for req
func (c *TailorCache) Set(ctx context.Context, req TailorRequest, text string, usage TokenUsage) {
	key := req.key()
	a := tailorAnswer{Text: text, Usage: usage}
	c.remember(key, a)

	if c.rdb == nil {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Tailor cache write failed", zap.Error(err))
	}
}

func (c *TailorCache) remember(key string, a tailorAnswer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	a.expires = c.now().Add(c.ttl)
	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = a
}
