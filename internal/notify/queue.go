package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"refill-api-server/internal/logger"
)

const (
	DefaultQueueKey = "notify:queue"
	sentKeyPrefix   = "notify:sent:"
	sentKeyTTL      = 24 * time.Hour
)

// Envelope is one queued email to a single recipient.
type Envelope struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	HTML      string    `json:"html"`
	Text      string    `json:"text"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"createdAt"`
}

// Queue is a Gateway that hands messages to the worker through a Redis list.
type Queue struct {
	client        *redis.Client
	key           string
	deadLetterKey string
	log           *logger.Logger
}

func NewQueue(client *redis.Client, key string, log *logger.Logger) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Queue{
		client:        client,
		key:           key,
		deadLetterKey: key + ":dead",
		log:           log.WithComponent("notify.queue"),
	}
}

// Notify enqueues one envelope per recipient in a single round trip.
func (q *Queue) Notify(ctx context.Context, recipients []string, subject, html, text string) bool {
	if len(recipients) == 0 {
		return true
	}
	now := time.Now().UTC()
	payloads := make([]any, 0, len(recipients))
	for _, to := range recipients {
		body, err := json.Marshal(Envelope{
			ID:        uuid.NewString(),
			To:        to,
			Subject:   subject,
			HTML:      html,
			Text:      text,
			CreatedAt: now,
		})
		if err != nil {
			q.log.Errorw("encode notification", "to", to, "error", err)
			return false
		}
		payloads = append(payloads, body)
	}
	if err := q.client.LPush(ctx, q.key, payloads...).Err(); err != nil {
		q.log.Errorw("enqueue notification", "recipients", len(recipients), "error", err)
		return false
	}
	return true
}

// Pop blocks up to timeout for the next envelope. It returns nil, nil when
// the wait times out.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// Requeue puts env back at the tail for another attempt.
func (q *Queue) Requeue(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, body).Err()
}

// DeadLetter parks env after its last failed attempt.
func (q *Queue) DeadLetter(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.deadLetterKey, body).Err()
}

// MarkSent records a delivered envelope. It reports false when the envelope
// was already marked, so redelivered duplicates can be dropped.
func (q *Queue) MarkSent(ctx context.Context, id string) (bool, error) {
	return q.client.SetNX(ctx, sentKeyPrefix+id, 1, sentKeyTTL).Result()
}

// WasSent reports whether id has already been delivered.
func (q *Queue) WasSent(ctx context.Context, id string) (bool, error) {
	n, err := q.client.Exists(ctx, sentKeyPrefix+id).Result()
	return n > 0, err
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
