// Package dr implements entry.DRReplicator by publishing every primary
// write onto a single Redis stream, one stream entry per Replicate call.
// A receiving node reads the stream and feeds each record back
// through InitialValue/InnerUpdate, letting the embedded conflict
// version in version.Version drive last-writer-wins resolution on the
// remote side.
package dr

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitaliisemenov/gridcache/internal/version"
)

// Config controls the target stream and the client used to publish to
// it.
type Config struct {
	StreamKey string `mapstructure:"stream_key" validate:"required"`
	MaxLen    int64  `mapstructure:"max_len"` // approximate MAXLEN for XADD trimming, 0 disables
}

// DefaultConfig matches the stream naming used throughout this module.
func DefaultConfig() Config {
	return Config{StreamKey: "gridcache:dr:stream", MaxLen: 100_000}
}

// Record is the wire shape of a replicated write, JSON-encoded into the
// stream entry's single "payload" field.
type Record struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value,omitempty"`
	TTL         time.Duration   `json:"ttl"`
	ExpireAt    time.Time       `json:"expire_at"`
	ConflictVer version.Version `json:"conflict_version"`
	DRType      uint8           `json:"dr_type"`
	TopologyVer int64           `json:"topology_version"`
}

// Replicator publishes records to a Redis stream via XADD.
type Replicator struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

// New constructs a Replicator. logger defaults to slog.Default() if nil.
func New(client *redis.Client, cfg Config, logger *slog.Logger) *Replicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replicator{client: client, cfg: cfg, logger: logger}
}

// Replicate satisfies entry.DRReplicator. It never blocks the caller
// longer than 5 seconds; a publish failure is logged and returned so
// the caller can decide whether to treat DR as best-effort.
func (r *Replicator) Replicate(key string, val any, ttl time.Duration, expireAt time.Time, conflictVer version.Version, drType uint8, topVer int64) error {
	payload, err := json.Marshal(val)
	if err != nil {
		r.logger.Error("dr replicate: marshal value failed", "key", key, "err", err)
		return err
	}

	rec := Record{
		Key:         key,
		Value:       payload,
		TTL:         ttl,
		ExpireAt:    expireAt,
		ConflictVer: conflictVer,
		DRType:      drType,
		TopologyVer: topVer,
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		r.logger.Error("dr replicate: marshal record failed", "key", key, "err", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: r.cfg.StreamKey,
		Values: map[string]any{"payload": encoded},
	}
	if r.cfg.MaxLen > 0 {
		args.MaxLen = r.cfg.MaxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		r.logger.Error("dr replicate: xadd failed", "key", key, "err", err)
		return err
	}
	return nil
}

// Consumer reads replicated records back off the stream for a peer
// data center to apply.
type Consumer struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

// NewConsumer constructs a Consumer sharing the same stream key as a
// Replicator.
func NewConsumer(client *redis.Client, cfg Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{client: client, cfg: cfg, logger: logger}
}

// ReadFrom reads records strictly after lastID (use "0" for the start
// of the stream, "$" to only get new entries going forward), blocking
// up to block for new entries if none are immediately available. A block
// of zero or less does not wait.
func (c *Consumer) ReadFrom(ctx context.Context, lastID string, block time.Duration) ([]Record, string, error) {
	args := &redis.XReadArgs{
		Streams: []string{c.cfg.StreamKey, lastID},
		Block:   block,
		Count:   100,
	}
	if block <= 0 {
		// go-redis sends a zero Block as BLOCK 0 (wait forever); a
		// negative Block leaves BLOCK out of the command.
		args.Block = -1
	}
	res, err := c.client.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, lastID, nil
		}
		return nil, lastID, err
	}

	var records []Record
	nextID := lastID
	for _, stream := range res {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values["payload"].(string)
			if !ok {
				c.logger.Warn("dr consumer: malformed stream entry, skipping", "id", msg.ID)
				continue
			}
			var rec Record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				c.logger.Warn("dr consumer: decode failed, skipping", "id", msg.ID, "err", err)
				continue
			}
			records = append(records, rec)
			nextID = msg.ID
		}
	}
	return records, nextID, nil
}
