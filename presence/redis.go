package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores presence under <prefix>:presence:<user> ("1" while online) and
// <prefix>:last_seen:<user> (unix millis).
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Dial connects to Redis and checks the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (r *Redis) presenceKey(userID string) string { return r.prefix + ":presence:" + userID }
func (r *Redis) lastSeenKey(userID string) string { return r.prefix + ":last_seen:" + userID }

func (r *Redis) Online(ctx context.Context, userID string) error {
	if err := r.client.Set(ctx, r.presenceKey(userID), "1", 0).Err(); err != nil {
		return fmt.Errorf("set presence: %w", err)
	}
	return nil
}

func (r *Redis) Offline(ctx context.Context, userID string, at time.Time) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.presenceKey(userID))
		pipe.Set(ctx, r.lastSeenKey(userID), strconv.FormatInt(at.UnixMilli(), 10), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set last seen: %w", err)
	}
	return nil
}

func (r *Redis) LastSeen(ctx context.Context, userIDs []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = r.lastSeenKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get last seen: %w", err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			continue
		}
		out[userIDs[i]] = time.UnixMilli(ms).UTC()
	}
	return out, nil
}
