package repository

import (
	"context"
	"iter"
	"time"

	"banksystem/internal/model"

	"gorm.io/gorm"
)

// EntryRepository 账户流水，只提供追加和查询
type EntryRepository struct {
	db *gorm.DB
}

func NewEntryRepository(db *gorm.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// Append 追加一条流水，只应在余额变更的同一事务内调用
func (r *EntryRepository) Append(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) (string, error) {
	if tx == nil {
		tx = r.db
	}
	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return "", err
	}
	return entry.EntryNo, nil
}

// SumDebitsSince 统计 since 之后（含）的出账合计，走 (account_id, created_at) 索引
func (r *EntryRepository) SumDebitsSince(ctx context.Context, tx *gorm.DB, accountID int64, since time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var total int64
	err := tx.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("account_id = ? AND direction = ? AND created_at >= ?", accountID, model.DirectionDebit, since.UTC()).
		Scan(&total).Error
	return total, err
}

// DirectionTotals 按方向汇总
type DirectionTotals struct {
	Credits int64
	Debits  int64
}

// SumByDirection 统计账户全部入账和出账，用于对账
func (r *EntryRepository) SumByDirection(ctx context.Context, tx *gorm.DB, accountID int64) (DirectionTotals, error) {
	if tx == nil {
		tx = r.db
	}
	var rows []struct {
		Direction model.Direction
		Total     int64
	}
	err := tx.WithContext(ctx).
		Model(&model.LedgerEntry{}).
		Select("direction, COALESCE(SUM(amount), 0) AS total").
		Where("account_id = ?", accountID).
		Group("direction").
		Scan(&rows).Error
	if err != nil {
		return DirectionTotals{}, err
	}

	var totals DirectionTotals
	for _, row := range rows {
		switch row.Direction {
		case model.DirectionCredit:
			totals.Credits = row.Total
		case model.DirectionDebit:
			totals.Debits = row.Total
		}
	}
	return totals, nil
}

// ListByAccount 按时间倒序惰性遍历账户流水
//
// 以 (created_at, id) 做游标分页，每次 range 都从最新一条重新开始，
// 遍历过程中新写入的流水不会导致重复或跳页。
func (r *EntryRepository) ListByAccount(ctx context.Context, accountID int64, pageSize int) iter.Seq2[*model.LedgerEntry, error] {
	if pageSize <= 0 {
		pageSize = 50
	}

	return func(yield func(*model.LedgerEntry, error) bool) {
		var cursor *model.LedgerEntry
		for {
			query := r.db.WithContext(ctx).
				Where("account_id = ?", accountID)
			if cursor != nil {
				query = query.Where("created_at < ? OR (created_at = ? AND id < ?)",
					cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
			}

			var page []*model.LedgerEntry
			err := query.
				Order("created_at DESC").
				Order("id DESC").
				Limit(pageSize).
				Find(&page).Error
			if err != nil {
				yield(nil, err)
				return
			}

			for _, entry := range page {
				if !yield(entry, nil) {
					return
				}
			}

			if len(page) < pageSize {
				return
			}
			cursor = page[len(page)-1]
		}
	}
}
