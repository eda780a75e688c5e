package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// queueKey is the Redis list used as a durable FIFO so a restarted
// notification dispatcher (or a websocket gateway process on another host)
// never loses a violation/promotion/scaling event that was queued while it
// was down.
const queueKey = "challenge_engine:notifications"

// RedisQueue is a durable Sink: Publish pushes onto a Redis list (LPUSH),
// and Drain blocks for the next entry (BRPOP) so a single dispatcher
// goroutine can fan messages out to the in-process Bus and any other
// delivery channel.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue dials Redis using a redis://host:port/db URL.
func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisQueue{client: redis.NewClient(opt)}, nil
}

// Publish enqueues a notification. Failures are logged, not returned: a
// dropped notification must never block the orchestrator tick that raised
// it (§5 concurrency model — notification delivery is best-effort).
func (q *RedisQueue) Publish(n Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		log.Printf("notify: marshal failed: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.client.LPush(ctx, queueKey, body).Err(); err != nil {
		log.Printf("notify: enqueue failed: %v", err)
	}
}

// Drain blocks (up to timeout) for the next queued notification. Intended
// to run in a single dispatcher goroutine that re-publishes to the
// in-process Bus for connected websocket clients.
func (q *RedisQueue) Drain(ctx context.Context, timeout time.Duration) (Notification, bool, error) {
	res, err := q.client.BRPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return Notification{}, false, nil
	}
	if err != nil {
		return Notification{}, false, err
	}
	// BRPop returns [key, value]
	var n Notification
	if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
		return Notification{}, false, err
	}
	return n, true, nil
}

// Close releases the underlying Redis connection pool.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

var _ Sink = (*RedisQueue)(nil)
