// Package engine wires the collaborator packages (row store, version
// generator, expiry policy, interceptor chain, continuous-query
// registry, WAL, external store, event recorder, DR replicator, remote
// lock registrar, metrics) into runnable entry.Entry instances behind a
// partition map, and drives the background TTL scan the entry core
// expects an external caller to run. It is intentionally a
// single-process stand-in for the partition-topology manager spec.md
// leaves out of scope, not a cluster coordinator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitaliisemenov/gridcache/gridconfig"
	"github.com/vitaliisemenov/gridcache/internal/closure"
	"github.com/vitaliisemenov/gridcache/internal/cq"
	"github.com/vitaliisemenov/gridcache/internal/dr"
	"github.com/vitaliisemenov/gridcache/internal/entry"
	"github.com/vitaliisemenov/gridcache/internal/entryerr"
	"github.com/vitaliisemenov/gridcache/internal/events"
	"github.com/vitaliisemenov/gridcache/internal/future"
	"github.com/vitaliisemenov/gridcache/internal/interceptor"
	"github.com/vitaliisemenov/gridcache/internal/lockadapter"
	"github.com/vitaliisemenov/gridcache/internal/metrics"
	"github.com/vitaliisemenov/gridcache/internal/mvcc"
	"github.com/vitaliisemenov/gridcache/internal/store/external"
	"github.com/vitaliisemenov/gridcache/internal/store/rowstore"
	"github.com/vitaliisemenov/gridcache/internal/version"
	"github.com/vitaliisemenov/gridcache/internal/wal"
	"github.com/vitaliisemenov/gridcache/internal/wal/migrations"
)

// closer is satisfied by every optional resource Engine may have
// opened during New, so Close can tear them all down uniformly.
type closer interface {
	Close() error
}

// Engine is the in-process orchestrator. The zero value is not usable;
// construct with New.
type Engine struct {
	cfg    gridconfig.Config
	logger *slog.Logger

	partitions []*partition
	collab     entry.Collaborators // Partition left nil; filled in per-entry

	versionGen *version.LocalGenerator
	rowStore   *rowstore.Store

	closers []closer

	scanStop chan struct{}
	scanDone chan struct{}
}

// New builds every collaborator named in cfg and returns a ready
// Engine. Callers must call Close when done to release the WAL,
// external store, Redis client, and segment index it may have opened.
func New(ctx context.Context, cfg gridconfig.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}

	eng := &Engine{cfg: cfg, logger: logger}

	var entryMetrics *metrics.EntryMetrics
	if cfg.Metrics.Enabled {
		entryMetrics = metrics.NewEntryMetrics(cfg.Metrics.Namespace)
	}

	rowStore, err := rowstore.New(cfg.RowStore, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("engine: row store: %w", err)
	}
	eng.rowStore = rowStore

	eng.versionGen = version.NewLocalGenerator(1, cfg.Engine.NodeOrder, cfg.Engine.DataCenterID, func() int64 {
		return time.Now().UnixNano()
	})

	var expiry entry.ExpiryPolicy = EternalExpiryPolicy{}
	if cfg.Engine.DefaultTTL > 0 {
		expiry = FixedExpiryPolicy{Create: cfg.Engine.DefaultTTL, Update: cfg.Engine.DefaultTTL}
	}

	chain := interceptor.NewChain(logger, interceptor.NewLoggingInterceptor(logger))
	cqRegistry := cq.New(logger)
	eventsRecorder := events.New(events.DefaultConfig(), entryMetrics)

	var walCollab entry.WAL
	if cfg.WAL.Enabled {
		var idx wal.SegmentIndex
		if cfg.WAL.Index != "" {
			db, err := migrations.Open(ctx, cfg.WAL.Index, logger)
			if err != nil {
				return nil, fmt.Errorf("engine: wal segment index: %w", err)
			}
			index := migrations.NewIndex(db)
			idx = index
			eng.closers = append(eng.closers, index)
		}
		w, err := wal.Open(cfg.WAL.Segment, idx, logger)
		if err != nil {
			return nil, fmt.Errorf("engine: wal: %w", err)
		}
		walCollab = w
		eng.closers = append(eng.closers, w)
	}

	var extStore entry.ExternalStore
	if cfg.ExternalStore.Enabled {
		switch cfg.ExternalStore.Backend {
		case "postgres":
			s, err := external.ConnectPostgres(ctx, cfg.ExternalStore.Postgres, logger)
			if err != nil {
				return nil, fmt.Errorf("engine: postgres external store: %w", err)
			}
			extStore = s
			eng.closers = append(eng.closers, s)
		case "sqlite":
			s, err := external.OpenSQLite(ctx, cfg.ExternalStore.SQLite, logger)
			if err != nil {
				return nil, fmt.Errorf("engine: sqlite external store: %w", err)
			}
			extStore = s
			eng.closers = append(eng.closers, s)
		}
	}

	var drReplicator entry.DRReplicator
	var lockRegistrar mvcc.RemoteCandidateRegistrar
	if cfg.DR.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:            cfg.Redis.Addr,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			PoolSize:        cfg.Redis.PoolSize,
			MinIdleConns:    cfg.Redis.MinIdleConns,
			DialTimeout:     cfg.Redis.DialTimeout,
			ReadTimeout:     cfg.Redis.ReadTimeout,
			WriteTimeout:    cfg.Redis.WriteTimeout,
			MaxRetries:      cfg.Redis.MaxRetries,
			MinRetryBackoff: cfg.Redis.MinRetryBackoff,
			MaxRetryBackoff: cfg.Redis.MaxRetryBackoff,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("engine: redis ping: %w", err)
		}
		drReplicator = dr.New(client, cfg.DR.Stream, logger)
		lockRegistrar = lockadapter.New(client, lockadapter.DefaultConfig(), logger)
		eng.closers = append(eng.closers, redisCloser{client})
	}

	eng.collab = entry.Collaborators{
		RowStore:       rowStore,
		VersionGen:     eng.versionGen,
		ExpiryPolicy:   expiry,
		Interceptor:    chain,
		CQ:             cqRegistry,
		WAL:            walCollab,
		ExternalStore:  extStore,
		Events:         eventsRecorder,
		DR:             drReplicator,
		Metrics:        entryMetrics,
		LockRegistrar:  lockRegistrar,
		NodeOrder:      cfg.Engine.NodeOrder,
		Primary:        true,
		WriteThrough:   cfg.Engine.WriteThrough,
		ReadThrough:    cfg.Engine.ReadThrough,
		DeferredDelete: cfg.Engine.DeferredDelete,
		NearCache:      cfg.Engine.NearCache,
		Logger:         logger,
	}

	eng.partitions = make([]*partition, cfg.Engine.Partitions)
	for i := range eng.partitions {
		eng.partitions[i] = newPartition(i)
	}

	eng.scanStop = make(chan struct{})
	eng.scanDone = make(chan struct{})
	go eng.runTTLScanner()

	return eng, nil
}

type redisCloser struct{ client *redis.Client }

func (c redisCloser) Close() error { return c.client.Close() }

// Close stops the TTL scanner and releases every opened resource,
// collecting (not short-circuiting on) any Close errors.
func (e *Engine) Close() error {
	close(e.scanStop)
	<-e.scanDone

	var errs []error
	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, err := range errs[1:] {
		joined = fmt.Errorf("%w; %w", joined, err)
	}
	return joined
}

func (e *Engine) partitionFor(key string) *partition {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	idx := int(h.Sum32()) % len(e.partitions)
	if idx < 0 {
		idx += len(e.partitions)
	}
	return e.partitions[idx]
}

func (e *Engine) entryFor(key string) *entry.Entry {
	p := e.partitionFor(key)
	return p.getOrCreate(key, func() *entry.Entry {
		collab := e.collab
		collab.Partition = p
		return entry.New(key, p.id, collab)
	})
}

// Get reads key, read-through to the external store if configured and
// absent locally. An entry that has gone obsolete is dropped from its
// partition map and the read is repeated once through a fresh entry.
func (e *Engine) Get(ctx context.Context, key string) (any, bool, error) {
	params := entry.GetParams{
		ReadThrough: e.cfg.Engine.ReadThrough,
		Record:      true,
		Now:         time.Now(),
	}
	ent := e.entryFor(key)
	result, err := ent.InnerGet(ctx, params)
	if errors.Is(err, entryerr.ErrEntryRemoved) {
		p := e.partitionFor(key)
		p.mu.Lock()
		if p.entries[key] == ent {
			delete(p.entries, key)
		}
		p.mu.Unlock()
		result, err = e.entryFor(key).InnerGet(ctx, params)
	}
	if err != nil {
		return nil, false, err
	}
	return result.Value, result.Found, nil
}

// Put writes val under key, minting a fresh version from the engine's
// generator.
func (e *Engine) Put(ctx context.Context, key string, val any) error {
	ent := e.entryFor(key)
	fut := future.New()
	result, err := ent.InnerSet(ctx, entry.SetParams{Value: val, Now: time.Now(), AttachedFuture: fut})
	e.waitFuture(ctx, fut)
	if err != nil {
		return err
	}
	if result.Success {
		e.recordCounterGap(key, result.UpdateCounter)
	}
	return nil
}

// Remove deletes key, reporting whether a value was actually present.
func (e *Engine) Remove(ctx context.Context, key string) (bool, error) {
	ent := e.entryFor(key)
	fut := future.New()
	result, err := ent.InnerRemove(ctx, entry.RemoveParams{Now: time.Now(), AttachedFuture: fut})
	e.waitFuture(ctx, fut)
	if err != nil {
		return false, err
	}
	if result.Success {
		e.recordCounterGap(key, result.UpdateCounter)
	}
	return result.Success, nil
}

// waitFuture blocks on fut the way an external caller attaching its own
// future would, recording how long the wait took. InnerSet/InnerRemove/
// InnerUpdate complete fut before returning, so in this single-process
// engine the wait is always effectively immediate; the metric still
// reflects genuine Future.GetCtx latency rather than a synthetic value.
func (e *Engine) waitFuture(ctx context.Context, fut *future.Future) {
	start := time.Now()
	_, _ = fut.GetCtx(ctx, true)
	e.collab.Metrics.RecordFutureWait(time.Since(start))
}

// recordCounterGap observes the partition update counter minted for key
// and records how far it jumped past the previous observation.
func (e *Engine) recordCounterGap(key string, counter int64) {
	gap := e.partitionFor(key).observeCounterGap(counter)
	e.collab.Metrics.RecordUpdateCounterGap(gap)
}

// Invoke runs processor against key's current value through the
// closure-based update pipeline, returning the closure's full verdict.
func (e *Engine) Invoke(ctx context.Context, key string, processor closure.EntryProcessor) (closure.UpdateResult, error) {
	ent := e.entryFor(key)
	fut := future.New()
	result, err := ent.InnerUpdate(ctx, entry.UpdateParams{
		Kind:           closure.KindTransform,
		Processor:      processor,
		AttachedFuture: fut,
		Now:            time.Now(),
	})
	e.waitFuture(ctx, fut)
	if err != nil {
		return closure.UpdateResult{}, err
	}
	if result.Outcome == closure.OutcomeSuccess {
		e.recordCounterGap(key, result.UpdateCounter)
	}
	return result, nil
}

// Stats reports how many entries each partition currently holds, for
// the CLI's stats verb.
func (e *Engine) Stats() []int {
	counts := make([]int, len(e.partitions))
	for i, p := range e.partitions {
		counts[i] = p.count()
	}
	return counts
}

// runTTLScanner periodically sweeps every partition's entries and
// fires OnTTLExpired on whichever ones are past their expire-time,
// the external TTL-scanner role spec.md's Expiration section assigns
// to a caller outside the entry core itself.
func (e *Engine) runTTLScanner() {
	defer close(e.scanDone)

	interval := e.cfg.Engine.TTLScanInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.scanStop:
			return
		case <-ticker.C:
			e.sweepExpired()
		}
	}
}

func (e *Engine) sweepExpired() {
	now := time.Now()
	for _, p := range e.partitions {
		for _, ent := range p.snapshot() {
			snap := ent.PeekExpiry()
			if !snap.Present || snap.ExpireAt.IsZero() || snap.ExpireAt.After(now) {
				continue
			}
			obsoleteVer := e.versionGen.NextFor(snap.Version)
			if err := ent.OnTTLExpired(obsoleteVer); err != nil {
				e.logger.Warn("ttl scanner: expire failed", "key", ent.Key(), "err", err)
			}
		}
	}
}

