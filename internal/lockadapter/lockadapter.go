// Package lockadapter backs internal/mvcc's RemoteCandidateRegistrar
// with real cross-node coordination over Redis: SET NX PX to register a
// remote candidate, a Lua compare-and-delete script to release it.
package lockadapter

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitaliisemenov/gridcache/internal/version"
)

// Config tunes the remote-candidate registrar's Redis key lifetime and
// retry behavior.
type Config struct {
	TTL           time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	KeyPrefix     string
}

// DefaultConfig mirrors the lock defaults used throughout the rest of
// this codebase.
func DefaultConfig() Config {
	return Config{
		TTL:           30 * time.Second,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		KeyPrefix:     "gridcache:cand",
	}
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Registrar implements mvcc.RemoteCandidateRegistrar over a Redis
// client. Each (key, version) pair maps to one Redis key holding an
// opaque token; ownership is proven by matching the token on release.
type Registrar struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[string]string // redisKey -> token held by this process
}

// New constructs a Registrar. logger defaults to slog.Default() if nil.
func New(client *redis.Client, cfg Config, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{client: client, cfg: cfg, logger: logger, tokens: make(map[string]string)}
}

func (r *Registrar) redisKey(key string, v version.Version) string {
	return fmt.Sprintf("%s:%s:%d:%d", r.cfg.KeyPrefix, key, v.Order, v.NodeOrder)
}

// RegisterRemote attempts to record nodeID/threadID as the remote owner
// of key under v, retrying with a linearly growing backoff
// ((attempt+1) * cfg.RetryInterval) up to cfg.MaxRetries times (once if
// that is not positive) if the key is already held.
func (r *Registrar) RegisterRemote(key string, v version.Version, nodeID, threadID uint64) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.TTL)
	defer cancel()

	token := r.token(nodeID, threadID)
	redisKey := r.redisKey(key, v)

	maxRetries := r.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.cfg.TTL).Result()
		if err != nil {
			r.logger.Error("register remote candidate failed", "key", key, "attempt", attempt, "err", err)
			if attempt == maxRetries {
				return false, err
			}
			time.Sleep(r.backoff(attempt))
			continue
		}
		if ok {
			r.mu.Lock()
			r.tokens[redisKey] = token
			r.mu.Unlock()
			return true, nil
		}
		if attempt == maxRetries {
			return false, nil
		}
		time.Sleep(r.backoff(attempt))
	}
	return false, nil
}

// ReleaseRemote releases a previously registered remote candidate via a
// compare-and-delete Lua script, so a process never deletes a key it no
// longer owns (e.g. one that expired and was re-acquired by another
// node).
func (r *Registrar) ReleaseRemote(key string, v version.Version) error {
	redisKey := r.redisKey(key, v)

	r.mu.Lock()
	token, held := r.tokens[redisKey]
	delete(r.tokens, redisKey)
	r.mu.Unlock()
	if !held {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.client.Eval(ctx, releaseScript, []string{redisKey}, token).Err(); err != nil {
		r.logger.Error("release remote candidate failed", "key", key, "err", err)
		return err
	}
	return nil
}

func (r *Registrar) token(nodeID, threadID uint64) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatUint(nodeID, 16) + ":" + strconv.FormatUint(threadID, 16)
	}
	return strconv.FormatUint(nodeID, 16) + ":" + strconv.FormatUint(threadID, 16) + ":" + hex.EncodeToString(buf)
}

func (r *Registrar) backoff(attempt int) time.Duration {
	base := r.cfg.RetryInterval
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return time.Duration(attempt+1) * base
}
