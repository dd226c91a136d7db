package model

import (
	"time"
)

// Direction 资金方向
type Direction string

const (
	DirectionCredit Direction = "credit" // 入账
	DirectionDebit  Direction = "debit"  // 出账
)

// 流水分类
const (
	CategoryTransfer   = "transfer"
	CategoryFunding    = "funding"
	CategoryWithdrawal = "withdrawal"
)

// LedgerEntry 账户流水表
//
// 流水设计原则：
// 1. 只追加，不修改，不删除
// 2. Amount 恒为正数，方向由 Direction 表示
// 3. 与余额变更在同一个数据库事务中写入
type LedgerEntry struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"`
	AccountID    int64     `gorm:"not null;index:idx_entry_account_time,priority:1" json:"account_id"`
	Direction    Direction `gorm:"type:varchar(8);not null" json:"direction"`
	Amount       int64     `gorm:"not null" json:"amount"`
	BalanceAfter int64     `gorm:"not null" json:"balance_after"`
	Description  string    `gorm:"type:varchar(256)" json:"description"`
	Counterparty string    `gorm:"type:varchar(10)" json:"counterparty,omitempty"` // 对方账号
	Category     string    `gorm:"type:varchar(32)" json:"category,omitempty"`
	Reference    string    `gorm:"type:varchar(64);index;not null" json:"reference"` // 同一笔业务的流水共用
	CreatedAt    time.Time `gorm:"not null;index:idx_entry_account_time,priority:2" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
