package model

import (
	"time"
)

// Tier 账户等级，决定转账限额
type Tier string

const (
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
	TierBusiness Tier = "business"
)

// ParseTier 解析账户等级，空字符串视为 standard
func ParseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case "", TierStandard:
		return TierStandard, true
	case TierPremium:
		return TierPremium, true
	case TierBusiness:
		return TierBusiness, true
	}
	return "", false
}

// Account 账户表
// Balance 是冗余存储的余额，只能通过 AccountRepository.AdjustBalance 修改，
// 任意时刻满足 SeedBalance + 入账合计 - 出账合计 = Balance
type Account struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountNumber string    `gorm:"type:varchar(10);uniqueIndex;not null" json:"account_number"` // 10 位账号，开户后不可变
	OwnerID       string    `gorm:"type:varchar(64);index;not null" json:"owner_id"`
	Email         string    `gorm:"type:varchar(128);not null" json:"email"`
	DisplayName   string    `gorm:"type:varchar(128);not null" json:"display_name"`
	Tier          Tier      `gorm:"type:varchar(16);not null;default:standard" json:"tier"`
	Balance       int64     `gorm:"not null;default:0" json:"balance"`
	SeedBalance   int64     `gorm:"not null;default:0" json:"seed_balance"` // 开户赠送的初始余额
	Version       int       `gorm:"not null;default:0" json:"version"`      // 乐观锁版本号
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
