package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// connectTimeout bounds broker reachability checks so a down broker
// fails fast instead of stalling dispatch.
const connectTimeout = 2 * time.Second

// RedisBroker carries job references over a single Redis list.
type RedisBroker struct {
	client *redis.Client
	key    string
}

// NewRedisBroker parses a redis:// URL and returns a broker pushing to
// the named list key. The connection is lazy; Enqueue surfaces broker
// unavailability.
func NewRedisBroker(url, key string) (*RedisBroker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = connectTimeout
	opts.ReadTimeout = connectTimeout
	opts.WriteTimeout = connectTimeout
	return &RedisBroker{client: redis.NewClient(opts), key: key}, nil
}

// Enqueue pushes one job reference.
func (b *RedisBroker) Enqueue(ctx context.Context, ref JobRef) error {
	payload, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, b.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s/%d: %w", ref.CaseID, ref.Seq, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job reference.
func (b *RedisBroker) Dequeue(ctx context.Context, timeout time.Duration) (JobRef, bool, error) {
	var zero JobRef

	// BRPOP needs a read timeout larger than its block timeout.
	res, err := b.client.WithTimeout(timeout + connectTimeout).BRPop(ctx, timeout, b.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, false, nil
		}
		return zero, false, err
	}
	if len(res) != 2 {
		return zero, false, fmt.Errorf("unexpected brpop reply of %d values", len(res))
	}

	var ref JobRef
	if err := json.Unmarshal([]byte(res[1]), &ref); err != nil {
		return zero, false, fmt.Errorf("decode job ref: %w", err)
	}
	return ref, true, nil
}

// Close releases the underlying client.
func (b *RedisBroker) Close() error {
	return b.client.Close()
}

var _ Broker = (*RedisBroker)(nil)
