package lock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Locker 账户级互斥
//
// Acquire 按账户 ID 升序依次加锁（重复 ID 只锁一次），
// 两笔方向相反的转账 A->B、B->A 因此不会互相死锁。
// 返回的 release 必须调用且只调用一次。
type Locker interface {
	Acquire(ctx context.Context, accountIDs ...int64) (release func(), err error)
}

func normalize(ids []int64) []int64 {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}

// ============================================================================
// 进程内实现
// ============================================================================

type localEntry struct {
	ch   chan struct{}
	refs int
}

// LocalLocker 进程内账户锁，单实例部署或测试使用
// 每个账户一个容量为 1 的 channel，等待可被 ctx 取消；无人引用的条目会被回收
type LocalLocker struct {
	mu      sync.Mutex
	entries map[int64]*localEntry
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[int64]*localEntry)}
}

func (l *LocalLocker) Acquire(ctx context.Context, accountIDs ...int64) (func(), error) {
	ids := normalize(accountIDs)
	held := make([]int64, 0, len(ids))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, id := range ids {
		if err := l.lock(ctx, id); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *LocalLocker) lock(ctx context.Context, id int64) error {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(id, e)
		return ctx.Err()
	}
}

func (l *LocalLocker) unlock(id int64) {
	l.mu.Lock()
	e := l.entries[id]
	l.mu.Unlock()

	<-e.ch
	l.unref(id, e)
}

func (l *LocalLocker) unref(id int64, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

// ============================================================================
// Redis 实现
// ============================================================================

// RedisLocker 基于 AccountLock 的多实例账户锁
type RedisLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, ttl, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, accountIDs ...int64) (func(), error) {
	// 同一次加锁的所有 key 共用一个 token，便于排查是哪次请求持有锁
	token := uuid.NewString()
	held := make([]*AccountLock, 0, len(accountIDs))

	release := func() {
		// 释放不使用请求 ctx：请求超时后仍要尽量删掉自己的锁
		unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			owned, err := held[i].Release(unlockCtx)
			switch {
			case err != nil:
				logrus.WithError(err).WithField("key", held[i].key).Warn("释放账户锁失败，等待过期")
			case !owned:
				logrus.WithField("key", held[i].key).Warn("账户锁已过期，持有时间超过 ttl")
			}
		}
	}

	for _, id := range normalize(accountIDs) {
		lk := NewAccountLock(l.client, id, token, l.ttl)
		if err := lk.Acquire(ctx, l.retryInterval, l.maxRetries); err != nil {
			release()
			return nil, err
		}
		held = append(held, lk)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}
