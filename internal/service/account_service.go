package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"

	"banksystem/internal/config"
	"banksystem/internal/model"
	"banksystem/internal/repository"
	"banksystem/pkg/idgen"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// 账号随机生成，撞号时重新生成的次数
const openAttempts = 5

type AccountService struct {
	accountRepo *repository.AccountRepository
	entryRepo   *repository.EntryRepository
	seedMin     int64
	seedMax     int64
	db          *gorm.DB
}

func NewAccountService(db *gorm.DB, cfg *config.Config) *AccountService {
	return &AccountService{
		accountRepo: repository.NewAccountRepository(db),
		entryRepo:   repository.NewEntryRepository(db),
		seedMin:     cfg.Business.SeedMin,
		seedMax:     cfg.Business.SeedMax,
		db:          db,
	}
}

type OpenAccountRequest struct {
	OwnerID     string `json:"owner_id" binding:"required,max=64"`
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"display_name" binding:"required,max=128"`
	Tier        string `json:"tier"`
}

// Open 开户：生成 10 位账号，赠送 [seedMin, seedMax] 之间的随机初始余额
func (s *AccountService) Open(ctx context.Context, req *OpenAccountRequest) (*model.Account, error) {
	tier, ok := model.ParseTier(req.Tier)
	if !ok {
		return nil, fmt.Errorf("未知的账户等级: %s", req.Tier)
	}

	seed := s.seedMin + rand.Int64N(s.seedMax-s.seedMin+1)

	for i := 0; i < openAttempts; i++ {
		account := &model.Account{
			AccountNumber: idgen.GenerateAccountNumber(),
			OwnerID:       req.OwnerID,
			Email:         req.Email,
			DisplayName:   req.DisplayName,
			Tier:          tier,
			Balance:       seed,
			SeedBalance:   seed,
		}

		err := s.accountRepo.Create(ctx, nil, account)
		if err == nil {
			logrus.WithFields(logrus.Fields{
				"account": account.AccountNumber,
				"owner":   account.OwnerID,
				"tier":    account.Tier,
				"seed":    seed,
			}).Info("开户成功")
			return account, nil
		}
		if !errors.Is(err, repository.ErrDuplicateNumber) {
			return nil, storeErr(ctx, "open", err)
		}
	}

	return nil, ErrContention
}

func (s *AccountService) GetAccount(ctx context.Context, accountID int64) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, storeErr(ctx, "get_account", err)
	}
	return account, nil
}

// Entries 账户流水，按时间倒序惰性遍历
func (s *AccountService) Entries(ctx context.Context, accountID int64) iter.Seq2[*model.LedgerEntry, error] {
	return s.entryRepo.ListByAccount(ctx, accountID, 0)
}

// History 返回最近 limit 条流水
func (s *AccountService) History(ctx context.Context, accountID int64, limit int) ([]*model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	entries := make([]*model.LedgerEntry, 0, limit)
	for entry, err := range s.entryRepo.ListByAccount(ctx, accountID, limit) {
		if err != nil {
			return nil, storeErr(ctx, "history", err)
		}
		entries = append(entries, entry)
		if len(entries) >= limit {
			break
		}
	}
	return entries, nil
}

// ReconcileReport 对账结果
// Expected = Seed + Credits - Debits，一致时应等于 Balance
type ReconcileReport struct {
	AccountID     int64  `json:"account_id"`
	AccountNumber string `json:"account_number"`
	Seed          int64  `json:"seed"`
	Credits       int64  `json:"credits"`
	Debits        int64  `json:"debits"`
	Expected      int64  `json:"expected"`
	Balance       int64  `json:"balance"`
	Consistent    bool   `json:"consistent"`
}

// Reconcile 校验账户余额与流水是否一致
// 余额和流水在同一事务内读取，保证看到的是同一时刻的快照
func (s *AccountService) Reconcile(ctx context.Context, accountID int64) (*ReconcileReport, error) {
	var report *ReconcileReport

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByID(ctx, tx, accountID)
		if err != nil {
			return notFound(err)
		}

		totals, err := s.entryRepo.SumByDirection(ctx, tx, accountID)
		if err != nil {
			return err
		}

		expected := account.SeedBalance + totals.Credits - totals.Debits
		report = &ReconcileReport{
			AccountID:     account.ID,
			AccountNumber: account.AccountNumber,
			Seed:          account.SeedBalance,
			Credits:       totals.Credits,
			Debits:        totals.Debits,
			Expected:      expected,
			Balance:       account.Balance,
			Consistent:    expected == account.Balance,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, storeErr(ctx, "reconcile", err)
	}
	return report, nil
}
