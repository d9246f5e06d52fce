package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/model"
)

// DefaultKeyPrefix namespaces every key the queue writes.
const DefaultKeyPrefix = "flipradar"

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: redis.ParseURL(%q): %w", model.ErrInvalidArgument, redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w: %w", model.ErrUpstreamUnavailable, err)
	}
	return client, nil
}

// KEYS: job hash, pending list, recent zset
// ARGV: id, category, submitted_at, recent score, max pending,
// prune cutoff ms ("" disables), prune cutoff ns, job key prefix
var luaSubmit = redis.NewScript(`
local max = tonumber(ARGV[5])
if max > 0 and redis.call("LLEN", KEYS[2]) >= max then
	return 0
end
if redis.call("EXISTS", KEYS[1]) == 1 then
	return -1
end
if ARGV[6] ~= "" then
	local old = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", "(" .. ARGV[6], "LIMIT", 0, 100)
	for _, oid in ipairs(old) do
		local okey = ARGV[8] .. oid
		local st = redis.call("HGET", okey, "status")
		if not st then
			redis.call("ZREM", KEYS[3], oid)
		elseif (st == "completed" or st == "failed")
			and tonumber(redis.call("HGET", okey, "finished_at") or "0") < tonumber(ARGV[7]) then
			redis.call("DEL", okey)
			redis.call("ZREM", KEYS[3], oid)
		end
	end
end
redis.call("HSET", KEYS[1], "id", ARGV[1], "category", ARGV[2], "status", "queued",
	"submitted_at", ARGV[3], "attempts", "0", "found", "0")
redis.call("RPUSH", KEYS[2], ARGV[1])
redis.call("ZADD", KEYS[3], ARGV[4], ARGV[1])
return 1`)

// KEYS: pending list, running zset
// ARGV: job key prefix, started_at, running score
var luaClaim = redis.NewScript(`
while true do
	local id = redis.call("LPOP", KEYS[1])
	if not id then
		return false
	end
	local key = ARGV[1] .. id
	if redis.call("HGET", key, "status") == "queued" then
		redis.call("HSET", key, "status", "running", "started_at", ARGV[2])
		redis.call("HINCRBY", key, "attempts", 1)
		redis.call("ZADD", KEYS[2], ARGV[3], id)
		return id
	end
end`)

// KEYS: job hash, running zset
// ARGV: id, final status, finished_at, found ("" keeps current), error
var luaFinish = redis.NewScript(`
local status = redis.call("HGET", KEYS[1], "status")
if not status then
	return -1
end
if status ~= "running" then
	return 0
end
redis.call("HSET", KEYS[1], "status", ARGV[2], "finished_at", ARGV[3], "error", ARGV[5])
if ARGV[4] ~= "" then
	redis.call("HSET", KEYS[1], "found", ARGV[4])
end
redis.call("ZREM", KEYS[2], ARGV[1])
return 1`)

// RedisQueue keeps jobs in Redis so API and workers can run in separate
// processes. Each job is a hash; ids move through a pending list and a
// running sorted set, and a recent sorted set indexes submissions.
type RedisQueue struct {
	client *redis.Client
	prefix string
	opts   options
}

var _ interfaces.JobQueue = (*RedisQueue)(nil)

func NewRedisQueue(client *redis.Client, prefix string, opts ...Option) *RedisQueue {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisQueue{client: client, prefix: prefix, opts: buildOptions(opts)}
}

func (q *RedisQueue) jobKeyPrefix() string { return q.prefix + ":job:" }
func (q *RedisQueue) jobKey(id string) string { return q.jobKeyPrefix() + id }
func (q *RedisQueue) pendingKey() string { return q.prefix + ":pending" }
func (q *RedisQueue) runningKey() string { return q.prefix + ":running" }
func (q *RedisQueue) recentKey() string { return q.prefix + ":recent" }

func (q *RedisQueue) Submit(ctx context.Context, job model.ScanJob) (string, error) {
	job = prepare(job, q.opts.now())

	cutoffMs, cutoffNs := "", ""
	if q.opts.retention > 0 {
		cutoff := q.opts.now().Add(-q.opts.retention)
		cutoffMs = strconv.FormatInt(cutoff.UnixMilli(), 10)
		cutoffNs = strconv.FormatInt(cutoff.UnixNano(), 10)
	}
	res, err := luaSubmit.Run(ctx, q.client,
		[]string{q.jobKey(job.ID), q.pendingKey(), q.recentKey()},
		job.ID, job.Category, job.SubmittedAt.UnixNano(), job.SubmittedAt.UnixMilli(), q.opts.maxPending,
		cutoffMs, cutoffNs, q.jobKeyPrefix(),
	).Int()
	if err != nil {
		return "", unavailable("submit", err)
	}
	switch res {
	case 0:
		return "", fmt.Errorf("%w: queue full (%d pending)", model.ErrUpstreamUnavailable, q.opts.maxPending)
	case -1:
		return "", fmt.Errorf("job %s: %w", job.ID, model.ErrAlreadyExists)
	}

	q.opts.logger.Info("scan job queued", logging.F("job_id", job.ID), logging.F("category", job.Category))
	return job.ID, nil
}

func (q *RedisQueue) Status(ctx context.Context, id string) (model.ScanJob, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return model.ScanJob{}, unavailable("status", err)
	}
	if len(fields) == 0 {
		return model.ScanJob{}, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}
	return decodeJob(fields)
}

func (q *RedisQueue) Recent(ctx context.Context, limit int) ([]model.ScanJob, error) {
	limit = recentLimit(limit)
	ids, err := q.client.ZRevRange(ctx, q.recentKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, unavailable("recent", err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, q.jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("recent", err)
	}

	out := make([]model.ScanJob, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		job, err := decodeJob(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

func (q *RedisQueue) Claim(ctx context.Context) (model.ScanJob, error) {
	now := q.opts.now().UTC()
	id, err := luaClaim.Run(ctx, q.client,
		[]string{q.pendingKey(), q.runningKey()},
		q.jobKeyPrefix(), now.UnixNano(), now.UnixMilli(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return model.ScanJob{}, model.ErrNoJob
	}
	if err != nil {
		return model.ScanJob{}, unavailable("claim", err)
	}

	job, err := q.Status(ctx, id)
	if err != nil {
		return model.ScanJob{}, err
	}
	q.opts.emit(ctx, model.EventScanStarted, job)
	return job, nil
}

func (q *RedisQueue) Complete(ctx context.Context, id string, res model.ScanResult) error {
	if res.Found < 0 {
		return fmt.Errorf("%w: found must not be negative", model.ErrInvalidArgument)
	}
	return q.finish(ctx, id, model.JobCompleted, strconv.Itoa(res.Found), "")
}

func (q *RedisQueue) Fail(ctx context.Context, id string, reason string) error {
	return q.finish(ctx, id, model.JobFailed, "", reason)
}

func (q *RedisQueue) ExpireRunning(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.runningKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, unavailable("expire", err)
	}

	expired := 0
	for _, id := range ids {
		err := q.Fail(ctx, id, TimedOutReason)
		if err == nil {
			expired++
			continue
		}
		if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, model.ErrNotFound) {
			continue
		}
		return expired, err
	}
	return expired, nil
}

// Close releases the underlying client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) finish(ctx context.Context, id string, status model.JobStatus, found, reason string) error {
	now := q.opts.now().UTC()
	res, err := luaFinish.Run(ctx, q.client,
		[]string{q.jobKey(id), q.runningKey()},
		id, string(status), now.UnixNano(), found, reason,
	).Int()
	if err != nil {
		return unavailable("finish", err)
	}
	switch res {
	case -1:
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	case 0:
		return fmt.Errorf("job %s is not running, cannot become %s: %w", id, status, model.ErrInvalidTransition)
	}

	job, err := q.Status(ctx, id)
	if err != nil {
		return err
	}
	q.opts.logger.Info("scan job finished",
		logging.F("job_id", id), logging.F("status", string(status)), logging.F("found", job.Found))
	q.opts.emit(ctx, model.EventScanCompleted, job)
	return nil
}

func decodeJob(f map[string]string) (model.ScanJob, error) {
	job := model.ScanJob{
		ID:       f["id"],
		Category: f["category"],
		Status:   model.JobStatus(f["status"]),
		Error:    f["error"],
	}
	if !job.Status.Valid() {
		return model.ScanJob{}, fmt.Errorf("job %s has unknown status %q", job.ID, f["status"])
	}
	var err error
	if job.SubmittedAt, err = parseNanos(f["submitted_at"]); err != nil {
		return model.ScanJob{}, fmt.Errorf("job %s submitted_at: %w", job.ID, err)
	}
	if v := f["started_at"]; v != "" {
		t, err := parseNanos(v)
		if err != nil {
			return model.ScanJob{}, fmt.Errorf("job %s started_at: %w", job.ID, err)
		}
		job.StartedAt = &t
	}
	if v := f["finished_at"]; v != "" {
		t, err := parseNanos(v)
		if err != nil {
			return model.ScanJob{}, fmt.Errorf("job %s finished_at: %w", job.ID, err)
		}
		job.FinishedAt = &t
	}
	job.Found, _ = strconv.Atoi(f["found"])
	job.Attempts, _ = strconv.Atoi(f["attempts"])
	return job, nil
}

func parseNanos(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, n).UTC(), nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("redis %s: %w", op, err)
	}
	return fmt.Errorf("redis %s: %w: %w", op, model.ErrUpstreamUnavailable, err)
}
