package service

import (
	"errors"
	"fmt"

	"banksystem/internal/model"
	"banksystem/internal/policy"
)

// 业务错误分类
// 除 ErrContention 和 ErrStoreUnavailable 外都是终态错误，重试无意义
var (
	ErrInvalidAmount       = errors.New("金额不合法")
	ErrAccountNotFound     = errors.New("账户不存在")
	ErrSenderNotFound      = errors.New("转出账户不存在")
	ErrRecipientNotFound   = errors.New("收款账户不存在")
	ErrSelfTransfer        = errors.New("不能向本账户转账")
	ErrInsufficientBalance = errors.New("余额不足")
	ErrLimitExceeded       = errors.New("超出转账限额")
	ErrContention          = errors.New("账户繁忙，请稍后重试")
	ErrStoreUnavailable    = errors.New("系统繁忙，请稍后重试")
)

// AmountError 金额越界，Max 为 0 表示无上限
type AmountError struct {
	Amount int64
	Min    int64
	Max    int64
}

func (e *AmountError) Error() string {
	switch {
	case e.Amount < e.Min:
		return fmt.Sprintf("金额 %d 低于最小值 %d", e.Amount, e.Min)
	case e.Max > 0 && e.Amount > e.Max:
		return fmt.Sprintf("金额 %d 超过最大值 %d", e.Amount, e.Max)
	}
	return fmt.Sprintf("金额 %d 不合法", e.Amount)
}

func (e *AmountError) Is(target error) bool { return target == ErrInvalidAmount }

// BalanceError 余额不足，带出所需金额和可用余额
type BalanceError struct {
	Required  int64
	Available int64
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("余额不足: 需要 %d，可用 %d", e.Required, e.Available)
}

func (e *BalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// LimitError 超出等级限额
type LimitError struct {
	Tier      model.Tier
	Window    policy.Window
	Limit     int64
	Used      int64
	Requested int64
}

// Remaining 窗口内剩余可转额度
func (e *LimitError) Remaining() int64 {
	if e.Used >= e.Limit {
		return 0
	}
	return e.Limit - e.Used
}

func (e *LimitError) Error() string {
	window := "日"
	if e.Window == policy.WindowMonthly {
		window = "月"
	}
	return fmt.Sprintf("超出%s转账限额: %s 等级限额 %d，已用 %d，本次 %d，剩余可转 %d",
		window, e.Tier, e.Limit, e.Used, e.Requested, e.Remaining())
}

func (e *LimitError) Is(target error) bool { return target == ErrLimitExceeded }
