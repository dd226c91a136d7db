package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"banksystem/internal/infrastructure/lock"
	"banksystem/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// mutator 所有余额变动共用的原子执行器
//
// 执行顺序：
//  1. 按账户 ID 升序加锁（Locker），只覆盖本次变动
//  2. 开启数据库事务，fn 在事务内完成校验、改余额、记流水、写 outbox
//  3. fn 返回 ErrOptimisticLock 或加锁失败时整体回滚，指数退避后重试
//
// 重试次数耗尽返回 ErrContention；业务拒绝（余额不足、超限额等）直接返回，不重试。
type mutator struct {
	db          *gorm.DB
	locker      lock.Locker
	maxAttempts int
	backoff     time.Duration
}

func (m *mutator) run(ctx context.Context, op string, accountIDs []int64, fn func(tx *gorm.DB) error) error {
	delay := m.backoff
	for attempt := 1; ; attempt++ {
		err := m.attempt(ctx, accountIDs, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return m.classify(ctx, op, accountIDs, err)
		}
		if attempt >= m.maxAttempts {
			logrus.WithFields(logrus.Fields{
				"op":       op,
				"accounts": accountIDs,
				"attempts": attempt,
			}).WithError(err).Warn("账户冲突，重试次数耗尽")
			return ErrContention
		}

		logrus.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
		}).WithError(err).Debug("账户冲突，退避重试")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jitter(delay)):
		}
		delay *= 2
	}
}

func (m *mutator) attempt(ctx context.Context, accountIDs []int64, fn func(tx *gorm.DB) error) error {
	release, err := m.locker.Acquire(ctx, accountIDs...)
	if err != nil {
		return err
	}
	defer release()

	return m.db.WithContext(ctx).Transaction(fn)
}

func retryable(err error) bool {
	return errors.Is(err, repository.ErrOptimisticLock) || errors.Is(err, lock.ErrLockFailed)
}

// classify 业务错误原样返回；超时/取消返回 ctx 错误；其余视为存储故障，记录完整上下文
func (m *mutator) classify(ctx context.Context, op string, accountIDs []int64, err error) error {
	if isBusinessError(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"op":       op,
		"accounts": accountIDs,
	}).WithError(err).Error("存储操作失败")
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func isBusinessError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrAccountNotFound,
		ErrSenderNotFound,
		ErrRecipientNotFound,
		ErrSelfTransfer,
		ErrInsufficientBalance,
		ErrLimitExceeded,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// jitter 在 [d/2, d) 之间取随机等待时间，避免冲突双方同时重试
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + rand.N(half)
}
