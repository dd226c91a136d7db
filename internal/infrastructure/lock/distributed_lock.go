package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis 账户锁
//
// 一个账户对应一个 key，value 是本次加锁的 token：
//   - 加锁 SET key token NX PX ttl，进程崩溃后锁随 ttl 过期
//   - 释放时只删除 value 仍是自己 token 的 key
//
// ttl 必须大于一次余额变动（加锁到事务提交）的最长耗时，
// 否则锁提前过期，另一实例可能基于旧的限额/余额做校验；
// 这种情况由账户版本号兜底，冲突的一方回滚重试。

var ErrLockFailed = errors.New("获取账户锁失败")

// releaseScript 比较 token 后删除，返回 1 表示删掉的是自己的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AccountLock 单个账户在 Redis 上的锁
type AccountLock struct {
	client    *redis.Client
	accountID int64
	key       string
	token     string
	ttl       time.Duration
}

// accountLockKey 账户锁的 key，所有改动该账户余额的操作共用
func accountLockKey(accountID int64) string {
	return fmt.Sprintf("bank:lock:account:%d", accountID)
}

func NewAccountLock(client *redis.Client, accountID int64, token string, ttl time.Duration) *AccountLock {
	return &AccountLock{
		client:    client,
		accountID: accountID,
		key:       accountLockKey(accountID),
		token:     token,
		ttl:       ttl,
	}
}

// TryAcquire 非阻塞加锁，账户已被他人持有时返回 false
func (l *AccountLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Acquire 每隔 interval 尝试一次，最多 attempts 次
// 都没拿到返回 ErrLockFailed，由上层决定是否整体重试
func (l *AccountLock) Acquire(ctx context.Context, interval time.Duration, attempts int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < attempts; i++ {
		ok, err := l.TryAcquire(ctx)
		if err != nil {
			return fmt.Errorf("账户 %d 加锁失败: %w", l.accountID, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return fmt.Errorf("%w: 账户 %d", ErrLockFailed, l.accountID)
}

// Release 释放锁；锁已过期或已被他人持有时返回 false，不影响对方
func (l *AccountLock) Release(ctx context.Context) (bool, error) {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
