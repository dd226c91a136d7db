package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"banksystem/internal/config"
	"banksystem/internal/infrastructure/lock"
	"banksystem/internal/infrastructure/notify"
	"banksystem/internal/model"
	"banksystem/internal/policy"
	"banksystem/internal/repository"
	"banksystem/pkg/idgen"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ledger 转账和充值/提现共用的记账部件
type ledger struct {
	*mutator
	accountRepo *repository.AccountRepository
	entryRepo   *repository.EntryRepository
	outboxRepo  *repository.OutboxRepository
	limits      policy.Table
	loc         *time.Location
	eventTopic  string // 为空时不投递账务事件
	now         func() time.Time
}

func newLedger(db *gorm.DB, locker lock.Locker, cfg *config.Config) *ledger {
	loc, err := cfg.Business.Location()
	if err != nil {
		loc = time.Local
	}

	var eventTopic string
	if cfg.Kafka.Enabled {
		eventTopic = cfg.Kafka.Topic.LedgerEvents
	}

	return &ledger{
		mutator: &mutator{
			db:          db,
			locker:      locker,
			maxAttempts: cfg.Business.MaxAttempts,
			backoff:     cfg.Business.RetryBackoff,
		},
		accountRepo: repository.NewAccountRepository(db),
		entryRepo:   repository.NewEntryRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		limits:      LimitTable(cfg.Business.Limits),
		loc:         loc,
		eventTopic:  eventTopic,
		now:         time.Now,
	}
}

// LimitTable 以默认限额表为基础，用配置覆盖指定等级
func LimitTable(overrides map[string]config.TierLimitConfig) policy.Table {
	table := policy.DefaultTable()
	for name, l := range overrides {
		tier, ok := model.ParseTier(name)
		if !ok {
			logrus.WithField("tier", name).Warn("忽略未知等级的限额配置")
			continue
		}
		table[tier] = policy.Limits{Daily: l.Daily, Monthly: l.Monthly}
	}
	return table
}

// posting 一次余额变动对应的一条流水
type posting struct {
	account      *model.Account
	direction    model.Direction
	amount       int64
	balanceAfter int64
	counterparty string
	category     string
	description  string
}

// LedgerEvent 投递到 Kafka 的账务事件
type LedgerEvent struct {
	Reference  string             `json:"reference"`
	Category   string             `json:"category"`
	OccurredAt time.Time          `json:"occurred_at"`
	Entries    []LedgerEventEntry `json:"entries"`
}

type LedgerEventEntry struct {
	EntryNo       string          `json:"entry_no"`
	AccountNumber string          `json:"account_number"`
	Direction     model.Direction `json:"direction"`
	Amount        int64           `json:"amount"`
	BalanceAfter  int64           `json:"balance_after"`
	Counterparty  string          `json:"counterparty,omitempty"`
}

// record 在事务内追加流水并写入 outbox
// 同一笔业务的所有流水共用 reference 和时间戳 at
func (l *ledger) record(ctx context.Context, tx *gorm.DB, reference string, at time.Time, postings ...posting) ([]*model.LedgerEntry, error) {
	entries := make([]*model.LedgerEntry, 0, len(postings))
	msgs := make([]*model.OutboxMessage, 0, len(postings)+1)
	event := LedgerEvent{Reference: reference, OccurredAt: at}

	for _, p := range postings {
		entry := &model.LedgerEntry{
			EntryNo:      idgen.GenerateEntryNo(),
			AccountID:    p.account.ID,
			Direction:    p.direction,
			Amount:       p.amount,
			BalanceAfter: p.balanceAfter,
			Description:  p.description,
			Counterparty: p.counterparty,
			Category:     p.category,
			Reference:    reference,
			CreatedAt:    at,
		}
		if _, err := l.entryRepo.Append(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("记录流水失败: %w", err)
		}
		entries = append(entries, entry)

		event.Category = p.category
		event.Entries = append(event.Entries, LedgerEventEntry{
			EntryNo:       entry.EntryNo,
			AccountNumber: p.account.AccountNumber,
			Direction:     p.direction,
			Amount:        p.amount,
			BalanceAfter:  p.balanceAfter,
			Counterparty:  p.counterparty,
		})

		payload, err := json.Marshal(notify.Notification{
			Email:         p.account.Email,
			DisplayName:   p.account.DisplayName,
			AccountNumber: p.account.AccountNumber,
			Direction:     p.direction,
			Amount:        p.amount,
			Description:   p.description,
			Balance:       p.balanceAfter,
			Reference:     reference,
			OccurredAt:    at,
		})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, &model.OutboxMessage{
			MessageKey: entry.EntryNo,
			Topic:      model.TopicEmailNotification,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	}

	if l.eventTopic != "" {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, &model.OutboxMessage{
			MessageKey: reference,
			Topic:      l.eventTopic,
			Payload:    string(payload),
			Status:     model.OutboxStatusPending,
		})
	}

	if err := l.outboxRepo.Create(ctx, tx, msgs...); err != nil {
		return nil, fmt.Errorf("写入消息失败: %w", err)
	}
	return entries, nil
}

// timestamp 本次提交使用的时间，入库统一 UTC
func (l *ledger) timestamp() time.Time {
	return l.now().UTC()
}

// storeErr 锁和事务之外的读操作失败时使用
func storeErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	logrus.WithField("op", op).WithError(err).Error("存储操作失败")
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
