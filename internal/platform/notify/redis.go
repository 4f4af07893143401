package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisNotifier publishes every event on one channel and keeps a capped inbox list per user.
type RedisNotifier struct {
	rdb       *redis.Client
	channel   string
	inboxSize int
	logger    *slog.Logger
}

type RedisConfig struct {
	Addr      string
	Password  string
	Channel   string
	InboxSize int
}

func NewRedisNotifier(rdb *redis.Client, channel string, inboxSize int, logger *slog.Logger) *RedisNotifier {
	if inboxSize <= 0 {
		inboxSize = 50
	}
	return &RedisNotifier{rdb: rdb, channel: channel, inboxSize: inboxSize, logger: logger}
}

// Dial connects and pings once so misconfiguration shows up at start-up.
func Dial(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*RedisNotifier, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisNotifier(rdb, cfg.Channel, cfg.InboxSize, logger), nil
}

func inboxKey(userID string) string { return "notify:user:" + userID }

func (n *RedisNotifier) Notify(ctx context.Context, e Event) {
	b, err := json.Marshal(e)
	if err != nil {
		n.logger.WarnContext(ctx, "failed to encode notification", "err", err)
		return
	}
	key := inboxKey(e.UserID)
	_, err = n.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, b)
		p.LTrim(ctx, key, 0, int64(n.inboxSize-1))
		p.Publish(ctx, n.channel, b)
		return nil
	})
	if err != nil {
		n.logger.WarnContext(ctx, "failed to deliver notification", "type", string(e.Type), "user_id", e.UserID, "err", err)
	}
}

func (n *RedisNotifier) Inbox(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 || limit > n.inboxSize {
		limit = n.inboxSize
	}
	raw, err := n.rdb.LRange(ctx, inboxKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(raw))
	for _, s := range raw {
		var e Event
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			// 壊れた要素は飛ばす
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (n *RedisNotifier) Close() error { return n.rdb.Close() }
