package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"banksystem/internal/config"
	"banksystem/internal/infrastructure/lock"
	"banksystem/internal/model"
	"banksystem/internal/policy"
	"banksystem/internal/repository"
	"banksystem/pkg/idgen"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type TransferService struct {
	*ledger
}

func NewTransferService(db *gorm.DB, locker lock.Locker, cfg *config.Config) *TransferService {
	return &TransferService{ledger: newLedger(db, locker, cfg)}
}

type TransferRequest struct {
	SenderNumber    string `json:"-"`
	RecipientNumber string `json:"recipient_account_number" binding:"required"`
	Amount          int64  `json:"amount"`
	Description     string `json:"description" binding:"max=256"`
}

type TransferResult struct {
	Reference        string             `json:"reference"`
	NewSenderBalance int64              `json:"new_sender_balance"`
	Transaction      *model.LedgerEntry `json:"transaction"`
}

// Transfer 在两个账户之间转账
//
// 校验顺序（任一失败立即返回，且不产生任何写入）：
//  1. 金额 > 0
//  2. 不能转给自己（不访问存储）
//  3. 转出账户存在
//  4. 日/月限额
//  5. 余额充足
//  6. 收款账户存在
//
// 3-6 在账户锁和事务内重新读取后校验，扣款、入账、两条流水和通知消息同事务提交。
func (s *TransferService) Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	if req.Amount <= 0 {
		return nil, &AmountError{Amount: req.Amount, Min: 1}
	}
	if req.SenderNumber == req.RecipientNumber {
		return nil, ErrSelfTransfer
	}

	// 先解析账号拿到要加锁的账户 ID；收款账户不存在时推迟到余额校验之后再报错
	from, err := s.accountRepo.GetByNumber(ctx, nil, req.SenderNumber)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrSenderNotFound
		}
		return nil, storeErr(ctx, "transfer", err)
	}
	senderID := from.ID
	lockIDs := []int64{senderID}

	recipientID := int64(0)
	to, err := s.accountRepo.GetByNumber(ctx, nil, req.RecipientNumber)
	switch {
	case err == nil:
		recipientID = to.ID
		lockIDs = append(lockIDs, recipientID)
	case !errors.Is(err, repository.ErrAccountNotFound):
		return nil, storeErr(ctx, "transfer", err)
	}

	reference := idgen.GenerateTransferRef()
	var result *TransferResult

	err = s.run(ctx, "transfer", lockIDs, func(tx *gorm.DB) error {
		now := s.timestamp()

		sender, err := s.accountRepo.GetByID(ctx, tx, senderID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrSenderNotFound
			}
			return err
		}

		if err := s.checkLimit(ctx, tx, sender, req.Amount, now); err != nil {
			return err
		}

		if sender.Balance < req.Amount {
			return &BalanceError{Required: req.Amount, Available: sender.Balance}
		}

		if recipientID == 0 {
			return ErrRecipientNotFound
		}
		recipient, err := s.accountRepo.GetByID(ctx, tx, recipientID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrRecipientNotFound
			}
			return err
		}

		// 版本号保证上面的限额/余额校验基于最新数据，否则整体回滚重试
		senderBalance, err := s.accountRepo.AdjustBalanceAt(ctx, tx, sender.ID, -req.Amount, sender.Version)
		if err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return &BalanceError{Required: req.Amount, Available: sender.Balance}
			}
			return fmt.Errorf("扣款失败: %w", err)
		}

		recipientBalance, err := s.accountRepo.AdjustBalance(ctx, tx, recipient.ID, req.Amount)
		if err != nil {
			return fmt.Errorf("入账失败: %w", err)
		}

		entries, err := s.record(ctx, tx, reference, now,
			posting{
				account:      sender,
				direction:    model.DirectionDebit,
				amount:       req.Amount,
				balanceAfter: senderBalance,
				counterparty: recipient.AccountNumber,
				category:     model.CategoryTransfer,
				description:  req.Description,
			},
			posting{
				account:      recipient,
				direction:    model.DirectionCredit,
				amount:       req.Amount,
				balanceAfter: recipientBalance,
				counterparty: sender.AccountNumber,
				category:     model.CategoryTransfer,
				description:  req.Description,
			},
		)
		if err != nil {
			return err
		}

		result = &TransferResult{
			Reference:        reference,
			NewSenderBalance: senderBalance,
			Transaction:      entries[0],
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"reference": reference,
		"sender":    req.SenderNumber,
		"recipient": req.RecipientNumber,
		"amount":    req.Amount,
	}).Info("转账成功")

	return result, nil
}

// checkLimit 在事务内汇总窗口出账并按等级判定
func (s *TransferService) checkLimit(ctx context.Context, tx *gorm.DB, sender *model.Account, amount int64, now time.Time) error {
	limits, ok := s.limits[sender.Tier]
	if !ok {
		limits = s.limits[model.TierStandard]
	}
	if limits.Daily == policy.Unlimited && limits.Monthly == policy.Unlimited {
		return nil
	}

	today, err := s.entryRepo.SumDebitsSince(ctx, tx, sender.ID, policy.DayStart(now, s.loc))
	if err != nil {
		return fmt.Errorf("统计日出账失败: %w", err)
	}
	month, err := s.entryRepo.SumDebitsSince(ctx, tx, sender.ID, policy.MonthStart(now, s.loc))
	if err != nil {
		return fmt.Errorf("统计月出账失败: %w", err)
	}

	decision := s.limits.Evaluate(sender.Tier, today, month, amount)
	if decision.Allowed {
		return nil
	}
	return &LimitError{
		Tier:      sender.Tier,
		Window:    decision.Window,
		Limit:     decision.Limit,
		Used:      decision.Used,
		Requested: amount,
	}
}
