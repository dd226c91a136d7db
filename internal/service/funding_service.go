package service

import (
	"context"
	"errors"
	"fmt"

	"banksystem/internal/config"
	"banksystem/internal/infrastructure/lock"
	"banksystem/internal/model"
	"banksystem/internal/repository"
	"banksystem/pkg/idgen"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FundingService 单账户充值/提现，与转账共用同一套原子执行器
type FundingService struct {
	*ledger
	fundingMin    int64
	fundingMax    int64
	withdrawalMin int64
}

func NewFundingService(db *gorm.DB, locker lock.Locker, cfg *config.Config) *FundingService {
	return &FundingService{
		ledger:        newLedger(db, locker, cfg),
		fundingMin:    cfg.Business.FundingMin,
		fundingMax:    cfg.Business.FundingMax,
		withdrawalMin: cfg.Business.WithdrawalMin,
	}
}

type FundingRequest struct {
	Amount int64  `json:"amount"`
	Method string `json:"method" binding:"required,max=32"`
}

// Fund 充值，金额需在 [fundingMin, fundingMax] 之间
func (s *FundingService) Fund(ctx context.Context, accountID int64, amount int64, method string) (int64, error) {
	if amount < s.fundingMin || amount > s.fundingMax {
		return 0, &AmountError{Amount: amount, Min: s.fundingMin, Max: s.fundingMax}
	}

	reference := idgen.GenerateFundingRef()
	var newBalance int64

	err := s.run(ctx, "fund", []int64{accountID}, func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByID(ctx, tx, accountID)
		if err != nil {
			return notFound(err)
		}

		balance, err := s.accountRepo.AdjustBalance(ctx, tx, accountID, amount)
		if err != nil {
			return fmt.Errorf("入账失败: %w", err)
		}

		_, err = s.record(ctx, tx, reference, s.timestamp(), posting{
			account:      account,
			direction:    model.DirectionCredit,
			amount:       amount,
			balanceAfter: balance,
			category:     model.CategoryFunding,
			description:  fmt.Sprintf("Funding via %s", method),
		})
		if err != nil {
			return err
		}

		newBalance = balance
		return nil
	})
	if err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{
		"reference": reference,
		"account":   accountID,
		"amount":    amount,
		"method":    method,
	}).Info("充值成功")

	return newBalance, nil
}

// Withdraw 提现，金额不低于 withdrawalMin 且不超过余额
func (s *FundingService) Withdraw(ctx context.Context, accountID int64, amount int64, method string) (int64, error) {
	if amount < s.withdrawalMin {
		return 0, &AmountError{Amount: amount, Min: s.withdrawalMin}
	}

	reference := idgen.GenerateWithdrawalRef()
	var newBalance int64

	err := s.run(ctx, "withdraw", []int64{accountID}, func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByID(ctx, tx, accountID)
		if err != nil {
			return notFound(err)
		}

		if account.Balance < amount {
			return &BalanceError{Required: amount, Available: account.Balance}
		}

		balance, err := s.accountRepo.AdjustBalanceAt(ctx, tx, accountID, -amount, account.Version)
		if err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return &BalanceError{Required: amount, Available: account.Balance}
			}
			return fmt.Errorf("扣款失败: %w", err)
		}

		_, err = s.record(ctx, tx, reference, s.timestamp(), posting{
			account:      account,
			direction:    model.DirectionDebit,
			amount:       amount,
			balanceAfter: balance,
			category:     model.CategoryWithdrawal,
			description:  fmt.Sprintf("Withdrawal via %s", method),
		})
		if err != nil {
			return err
		}

		newBalance = balance
		return nil
	})
	if err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{
		"reference": reference,
		"account":   accountID,
		"amount":    amount,
		"method":    method,
	}).Info("提现成功")

	return newBalance, nil
}

func notFound(err error) error {
	if errors.Is(err, repository.ErrAccountNotFound) {
		return ErrAccountNotFound
	}
	return err
}
