// Package queue is the Redis-backed handoff between the orchestrator's poll
// loop and its call workers. Jobs are serialized JSON pushed onto a list;
// workers block-pop with a short timeout so shutdown stays responsive.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobsKey      = "dialer:jobs"
	controlChan  = "dialer:control"
	heartbeatKey = "dialer:worker:heartbeat:"
	heartbeatTTL = 90 * time.Second
)

// ErrEmpty is returned by Pop when no job arrived within the wait window.
var ErrEmpty = errors.New("queue: empty")

// StopSignal is published on the control channel to shut workers down.
const StopSignal = "stop"

// DispatchPayload is a single scheduled call handed to a worker.
type DispatchPayload struct {
	CampaignID   string    `json:"campaignId"`
	ContactID    string    `json:"contactId"`
	ScheduledFor time.Time `json:"scheduledFor"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
}

// Queue wraps the Redis client with the dialer's queue conventions.
type Queue struct {
	client *redis.Client
}

func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Push enqueues a job. The orchestrator is the only producer.
func (q *Queue) Push(ctx context.Context, p DispatchPayload) error {
	if p.EnqueuedAt.IsZero() {
		p.EnqueuedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal dispatch payload: %w", err)
	}
	if err := q.client.LPush(ctx, jobsKey, data).Err(); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop blocks up to wait for the next job. Returns ErrEmpty on timeout so the
// worker loop can re-check its shutdown flag.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (*DispatchPayload, error) {
	res, err := q.client.BRPop(ctx, wait, jobsKey).Result()
	if err == redis.Nil {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}
	// BRPop returns [key, value].
	var p DispatchPayload
	if err := json.Unmarshal([]byte(res[1]), &p); err != nil {
		return nil, fmt.Errorf("unmarshal dispatch payload: %w", err)
	}
	return &p, nil
}

// Depth reports how many jobs are waiting.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, jobsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// PublishStop tells every subscribed worker process to shut down.
func (q *Queue) PublishStop(ctx context.Context) error {
	if err := q.client.Publish(ctx, controlChan, StopSignal).Err(); err != nil {
		return fmt.Errorf("publish stop: %w", err)
	}
	return nil
}

// SubscribeControl returns a channel of control messages. Callers must invoke
// the returned close func when done.
func (q *Queue) SubscribeControl(ctx context.Context) (<-chan string, func(), error) {
	sub := q.client.Subscribe(ctx, controlChan)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("subscribe control: %w", err)
	}
	out := make(chan string, 4)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			out <- msg.Payload
		}
	}()
	return out, func() { sub.Close() }, nil
}

// Heartbeat refreshes this worker's liveness key.
func (q *Queue) Heartbeat(ctx context.Context, workerID string) error {
	key := heartbeatKey + workerID
	if err := q.client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), heartbeatTTL).Err(); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	return nil
}

// LiveWorkers lists worker IDs with an unexpired heartbeat.
func (q *Queue) LiveWorkers(ctx context.Context) ([]string, error) {
	keys, err := q.client.Keys(ctx, heartbeatKey+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(heartbeatKey):])
	}
	return out, nil
}
