package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-integrity/internal/config"
	"github.com/stemsi/exstem-integrity/internal/model"
	"github.com/stemsi/exstem-integrity/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// RedisEventQueue pushes anti-cheat events onto the persistence queue. It
// implements service.EventQueue.
type RedisEventQueue struct {
	rdb redis.Cmdable
	key string
}

// NewRedisEventQueue creates a queue on config.WorkerKey.PersistAntiCheatQueue.
func NewRedisEventQueue(rdb redis.Cmdable) *RedisEventQueue {
	return &RedisEventQueue{rdb: rdb, key: config.WorkerKey.PersistAntiCheatQueue}
}

// Enqueue appends ev to the queue.
func (q *RedisEventQueue) Enqueue(ctx context.Context, ev *model.AntiCheatEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, q.key, data).Err()
}

// AntiCheatWorker drains the anti-cheat queue into Postgres in batches.
type AntiCheatWorker struct {
	events       repository.AntiCheatStore
	rdb          redis.Cmdable
	log          zerolog.Logger
	drainTimeout time.Duration
	backoff      time.Duration
}

func NewAntiCheatWorker(events repository.AntiCheatStore, rdb redis.Cmdable, cfg *config.Config, log zerolog.Logger) *AntiCheatWorker {
	drain := cfg.WorkerDrainTimeout
	if drain <= 0 {
		drain = 5 * time.Second
	}
	return &AntiCheatWorker{
		events:       events,
		rdb:          rdb,
		log:          log.With().Str("component", "anticheat_worker").Logger(),
		drainTimeout: drain,
		backoff:      2 * time.Second,
	}
}

// Start blocks until ctx is cancelled, then flushes what it holds.
func (w *AntiCheatWorker) Start(ctx context.Context) {
	w.log.Info().Msg("AntiCheatWorker started")

	buffer := make([]model.AntiCheatEvent, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check Flush Conditions (Time or Size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Check Context (Graceful Shutdown)
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. Returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAntiCheatQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // queue empty, loop back to check flush timer
			}
			if ctx.Err() != nil {
				w.shutdown(buffer)
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var ev model.AntiCheatEvent
		if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
			// Malformed JSON cannot be retried.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed anti-cheat event")
			continue
		}

		buffer = append(buffer, ev)
	}
}

// flushSafe attempts bulk insert, then row inserts, then requeue.
func (w *AntiCheatWorker) flushSafe(ctx context.Context, batch []model.AntiCheatEvent) {
	n, err := w.events.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("count", n).Msg("Anti-cheat batch persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	w.fallbackInsert(ctx, batch)
}

func (w *AntiCheatWorker) fallbackInsert(ctx context.Context, batch []model.AntiCheatEvent) {
	requeueList := make([]model.AntiCheatEvent, 0)

	for i := range batch {
		ev := &batch[i]
		err := w.events.Insert(ctx, ev)
		switch {
		case err == nil:
		case repository.IsUniqueViolation(err):
			// Already stored by an earlier flush.
			w.log.Debug().Str("event_id", ev.ID.String()).Msg("Skipping duplicate anti-cheat event")
		default:
			w.log.Error().Err(err).Str("event_id", ev.ID.String()).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, *ev)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *AntiCheatWorker) requeue(ctx context.Context, items []model.AntiCheatEvent) {
	// Requeue must survive a cancelled worker context.
	ctx = context.WithoutCancel(ctx)

	pipe := w.rdb.Pipeline()
	for _, ev := range items {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, config.WorkerKey.PersistAntiCheatQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue anti-cheat events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed events back to Redis")
	// Avoid thrashing if the DB is down hard.
	sleepCtx(ctx, w.backoff)
}

func (w *AntiCheatWorker) shutdown(buffer []model.AntiCheatEvent) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
