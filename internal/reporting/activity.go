package reporting

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	platformredis "github.com/ibad121don/talenttrust-verified-vault-sub001/internal/platform/redis"
	"github.com/ibad121don/talenttrust-verified-vault-sub001/pkg/domain"
)

const lastLoginKey = "vault:last_login"

// RedisActivity tracks last-login timestamps in a sorted set scored by
// unix time. Writers record on token validation; the reporter counts the
// trailing window with a single ZCOUNT.
type RedisActivity struct {
	client *platformredis.Client
}

func NewRedisActivity(client *platformredis.Client) *RedisActivity {
	return &RedisActivity{client: client}
}

// RecordLogin stamps the user's latest activity.
func (a *RedisActivity) RecordLogin(ctx context.Context, userID domain.UserID, at time.Time) error {
	err := a.client.ZAdd(ctx, lastLoginKey, redis.Z{
		Score:  float64(at.Unix()),
		Member: userID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	return nil
}

// CountActiveSince counts distinct users seen at or after since.
func (a *RedisActivity) CountActiveSince(ctx context.Context, since time.Time) (int, error) {
	n, err := a.client.ZCount(ctx, lastLoginKey,
		strconv.FormatInt(since.Unix(), 10), "+inf",
	).Result()
	if err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}
	return int(n), nil
}
