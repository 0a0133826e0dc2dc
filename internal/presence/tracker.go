package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyTTL bounds how long a counter survives a crashed process that never
// got to decrement it.
const keyTTL = 24 * time.Hour

// Tracker counts live sessions per user in Redis. A user is online while
// the counter is positive; several tabs or devices each hold one count.
type Tracker struct {
	client *redis.Client
}

func NewTracker(client *redis.Client) *Tracker {
	return &Tracker{client: client}
}

func presenceKey(userID int) string {
	return fmt.Sprintf("presence:user:%d", userID)
}

// Connected records one more live session for userID.
func (t *Tracker) Connected(ctx context.Context, userID int) error {
	key := presenceKey(userID)
	pipe := t.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Disconnected releases one session and deletes the key once none remain.
func (t *Tracker) Disconnected(ctx context.Context, userID int) error {
	key := presenceKey(userID)
	n, err := t.client.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return t.client.Del(ctx, key).Err()
	}
	return nil
}

// Online reports whether userID has at least one live session.
func (t *Tracker) Online(ctx context.Context, userID int) (bool, error) {
	n, err := t.client.Get(ctx, presenceKey(userID)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
