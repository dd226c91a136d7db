package repository

import (
	"context"
	"errors"

	"banksystem/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
	ErrOptimisticLock   = errors.New("乐观锁冲突，请重试")
	ErrDuplicateNumber  = errors.New("账号已存在")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AccountRepository) Create(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	err := r.conn(tx).WithContext(ctx).Create(account).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateNumber
	}
	return err
}

func (r *AccountRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Account, error) {
	return r.first(ctx, tx, "id = ?", id)
}

func (r *AccountRepository) GetByNumber(ctx context.Context, tx *gorm.DB, accountNumber string) (*model.Account, error) {
	return r.first(ctx, tx, "account_number = ?", accountNumber)
}

func (r *AccountRepository) first(ctx context.Context, tx *gorm.DB, query string, arg interface{}) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where(query, arg).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// AdjustBalance 原子地执行 balance += delta，返回变更后的余额
//
// 【关键点】余额检查和写入是同一条 UPDATE：
//
//	UPDATE account SET balance = balance + ?, version = version + 1
//	WHERE id = ? AND balance + ? >= 0
//
// 不存在"先查后改"的窗口，并发扣款不会把余额扣成负数。
func (r *AccountRepository) AdjustBalance(ctx context.Context, tx *gorm.DB, id int64, delta int64) (int64, error) {
	return r.adjust(ctx, r.conn(tx), id, delta, nil)
}

// AdjustBalanceAt 在 AdjustBalance 的基础上要求版本号等于 version，
// 用于"读取后校验再扣款"的场景：读到的余额/限额一旦过期，更新影响 0 行并返回 ErrOptimisticLock
func (r *AccountRepository) AdjustBalanceAt(ctx context.Context, tx *gorm.DB, id int64, delta int64, version int) (int64, error) {
	return r.adjust(ctx, r.conn(tx), id, delta, &version)
}

func (r *AccountRepository) adjust(ctx context.Context, db *gorm.DB, id int64, delta int64, version *int) (int64, error) {
	query := db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND balance + ? >= 0", id, delta)
	if version != nil {
		query = query.Where("version = ?", *version)
	}

	result := query.Updates(map[string]interface{}{
		"balance": gorm.Expr("balance + ?", delta),
		"version": gorm.Expr("version + 1"),
	})
	if result.Error != nil {
		return 0, result.Error
	}

	// 在同一个事务里读回，失败原因和新余额都以数据库为准
	account, err := r.first(ctx, db, "id = ?", id)
	if err != nil {
		return 0, err
	}

	if result.RowsAffected == 0 {
		if account.Balance+delta < 0 {
			return 0, ErrBalanceNotEnough
		}
		return 0, ErrOptimisticLock
	}

	return account.Balance, nil
}

// SumBalances 全部账户余额合计，用于守恒校验
func (r *AccountRepository) SumBalances(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Select("COALESCE(SUM(balance), 0)").
		Scan(&total).Error
	return total, err
}

// ListIDsAfter 按 ID 升序分批返回账户 ID
func (r *AccountRepository) ListIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
