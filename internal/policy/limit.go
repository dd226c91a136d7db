// Package policy 实现按账户等级的转账限额规则。
// 纯函数，不做任何 I/O，窗口内已用额度由调用方查询后传入。
package policy

import (
	"time"

	"banksystem/internal/model"
)

// Window 限额窗口
type Window string

const (
	WindowDaily   Window = "daily"
	WindowMonthly Window = "monthly"
)

// Unlimited 表示该窗口不限额
const Unlimited int64 = 0

// Limits 单个等级的日/月限额
type Limits struct {
	Daily   int64
	Monthly int64
}

// Table 等级 -> 限额
type Table map[model.Tier]Limits

// DefaultTable 默认限额表
func DefaultTable() Table {
	return Table{
		model.TierStandard: {Daily: 100_000, Monthly: 500_000},
		model.TierPremium:  {Daily: 500_000, Monthly: 5_000_000},
		model.TierBusiness: {Daily: Unlimited, Monthly: Unlimited},
	}
}

// Decision 限额判定结果
// 拒绝时 Window/Limit/Used 描述触发的窗口，便于给出具体提示
type Decision struct {
	Allowed bool
	Window  Window
	Limit   int64
	Used    int64
}

// Evaluate 判断一笔出账是否超出限额
// 恰好用满剩余额度是允许的（<=）；先检查日限额，再检查月限额。
// 未登记的等级按 standard 处理。
func (t Table) Evaluate(tier model.Tier, todayDebitTotal, monthDebitTotal, proposed int64) Decision {
	limits, ok := t[tier]
	if !ok {
		limits = t[model.TierStandard]
	}

	if exceeds(limits.Daily, todayDebitTotal, proposed) {
		return Decision{Window: WindowDaily, Limit: limits.Daily, Used: todayDebitTotal}
	}
	if exceeds(limits.Monthly, monthDebitTotal, proposed) {
		return Decision{Window: WindowMonthly, Limit: limits.Monthly, Used: monthDebitTotal}
	}
	return Decision{Allowed: true}
}

func exceeds(limit, used, proposed int64) bool {
	if limit == Unlimited {
		return false
	}
	// used 不为负，limit-used 不会溢出
	return proposed > limit-used
}

// DayStart 返回 now 所在日在 loc 时区的零点
func DayStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// MonthStart 返回 now 所在月 1 日在 loc 时区的零点
func MonthStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
}
