// Package queue provides the durable work queue between the event server
// and the answer workers.
//
// Jobs are JSON documents on a Redis Stream consumed through a consumer
// group, which gives at-least-once delivery across worker restarts: a
// message stays pending until a worker acknowledges it. There is no
// ordering guarantee between jobs and no deduplication — re-sending the
// same question produces two independent jobs.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Job is one admitted question awaiting an answer.
type Job struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	Question   string    `json:"question"`
	ThreadID   string    `json:"threadId"`
	ChannelID  string    `json:"channelId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

// Message is a claimed job plus the stream bookkeeping needed to ack it.
type Message struct {
	ID  string // stream message id, for Ack
	Job Job
}

// Config holds queue connection settings.
type Config struct {
	// Stream is the stream key jobs are written to.
	Stream string

	// Group is the consumer group name.
	Group string

	// BlockTimeout is how long Next waits for a job before returning nil.
	// Default: 5s.
	BlockTimeout time.Duration
}

// Queue wraps the Redis Stream operations for enqueue and consume.
type Queue struct {
	client       *redis.Client
	stream       string
	group        string
	consumer     string
	blockTimeout time.Duration
	logger       *slog.Logger
}

// New creates a Queue. Call Connect before use.
func New(cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Stream == "" {
		cfg.Stream = "answerbot:jobs"
	}
	if cfg.Group == "" {
		cfg.Group = "answerbot-workers"
	}
	if cfg.BlockTimeout == 0 {
		cfg.BlockTimeout = 5 * time.Second
	}

	return &Queue{
		stream:       cfg.Stream,
		group:        cfg.Group,
		consumer:     fmt.Sprintf("answerbot-%s", uuid.New().String()[:8]),
		blockTimeout: cfg.BlockTimeout,
		logger:       logger,
	}
}

// Connect establishes the Redis connection and ensures the consumer group
// exists. Creating an already-existing group is not an error.
func (q *Queue) Connect(ctx context.Context, url string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return fmt.Errorf("parsing Redis URL: %w", err)
	}

	q.client = redis.NewClient(opts)
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to Redis: %w", err)
	}

	if err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err(); err != nil {
		if !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("creating consumer group: %w", err)
		}
	}

	return nil
}

// ConnectClient attaches an existing Redis client instead of dialing.
// Used by tests running against miniredis.
func (q *Queue) ConnectClient(ctx context.Context, client *redis.Client) error {
	q.client = client
	if err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err(); err != nil {
		if !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("creating consumer group: %w", err)
		}
	}
	return nil
}

// Enqueue appends the job to the stream and returns once the broker has
// acknowledged the write. A zero job ID is assigned here.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]any{"job": payload},
	}).Err(); err != nil {
		return fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}

	q.logger.Debug("job enqueued", "job", job.ID, "user", job.UserID)
	return nil
}

// Next blocks until a job is available or the block timeout elapses.
// Returns nil (no error) when no job arrived in time. The job is claimed
// by this consumer and must be acknowledged with Ack once processed.
func (q *Queue) Next(ctx context.Context) (*Message, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    1,
		Block:    q.blockTimeout,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	msg := streams[0].Messages[0]
	raw, ok := msg.Values["job"].(string)
	if !ok {
		// Malformed message: ack it away so it cannot wedge the group.
		q.logger.Warn("dropping malformed stream message", "message", msg.ID)
		_ = q.client.XAck(ctx, q.stream, q.group, msg.ID).Err()
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.logger.Warn("dropping undecodable job", "message", msg.ID, "error", err)
		_ = q.client.XAck(ctx, q.stream, q.group, msg.ID).Err()
		return nil, nil
	}

	return &Message{ID: msg.ID, Job: job}, nil
}

// Ack acknowledges a processed message, removing it from the pending list.
func (q *Queue) Ack(ctx context.Context, messageID string) error {
	if err := q.client.XAck(ctx, q.stream, q.group, messageID).Err(); err != nil {
		return fmt.Errorf("acking message %s: %w", messageID, err)
	}
	return nil
}

// Pending returns the number of claimed-but-unacknowledged messages.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	info, err := q.client.XPending(ctx, q.stream, q.group).Result()
	if err != nil {
		return 0, fmt.Errorf("reading pending info: %w", err)
	}
	return info.Count, nil
}

// Close releases the Redis connection.
func (q *Queue) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
