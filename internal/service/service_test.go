package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"banksystem/internal/config"
	"banksystem/internal/infrastructure/database"
	"banksystem/internal/infrastructure/lock"
	"banksystem/internal/model"
	"banksystem/internal/repository"

	"gorm.io/gorm"
)

// 2026-03-15 10:00 UTC，月中，便于构造日/月窗口
var fixedNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Enabled: true,
			Topic:   config.KafkaTopicConfig{LedgerEvents: "ledger_events"},
		},
		Business: config.BusinessConfig{
			Timezone:      "UTC",
			FundingMin:    100,
			FundingMax:    10_000_000,
			WithdrawalMin: 1_000,
			SeedMin:       1_000,
			SeedMax:       50_000,
			MaxAttempts:   3,
			RetryBackoff:  time.Millisecond,
		},
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

type testEnv struct {
	db       *gorm.DB
	transfer *TransferService
	funding  *FundingService
	accounts *AccountService
	outbox   *repository.OutboxRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	cfg := testConfig()
	locker := lock.NewLocalLocker()

	env := &testEnv{
		db:       db,
		transfer: NewTransferService(db, locker, cfg),
		funding:  NewFundingService(db, locker, cfg),
		accounts: NewAccountService(db, cfg),
		outbox:   repository.NewOutboxRepository(db),
	}
	clock := func() time.Time { return fixedNow }
	env.transfer.now = clock
	env.funding.now = clock
	return env
}

var accountSeq atomic.Int64

func (e *testEnv) createAccount(t *testing.T, tier model.Tier, balance int64) *model.Account {
	t.Helper()
	n := accountSeq.Add(1)
	account := &model.Account{
		AccountNumber: formatNumber(n),
		OwnerID:       "owner",
		Email:         "holder@example.com",
		DisplayName:   "Holder",
		Tier:          tier,
		Balance:       balance,
		SeedBalance:   balance,
	}
	if err := repository.NewAccountRepository(e.db).Create(context.Background(), nil, account); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return account
}

func formatNumber(n int64) string {
	return fmt.Sprintf("2%09d", n)
}

func (e *testEnv) balance(t *testing.T, id int64) int64 {
	t.Helper()
	account, err := repository.NewAccountRepository(e.db).GetByID(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	return account.Balance
}

func (e *testEnv) entries(t *testing.T, id int64) []*model.LedgerEntry {
	t.Helper()
	var out []*model.LedgerEntry
	for entry, err := range repository.NewEntryRepository(e.db).ListByAccount(context.Background(), id, 0) {
		if err != nil {
			t.Fatalf("ListByAccount failed: %v", err)
		}
		out = append(out, entry)
	}
	return out
}

// seedDebit 直接写入一条历史出账流水，用于构造限额窗口内的已用额度
func (e *testEnv) seedDebit(t *testing.T, account *model.Account, amount int64, at time.Time) {
	t.Helper()
	entry := &model.LedgerEntry{
		EntryNo:   "SEED" + formatNumber(accountSeq.Add(1)),
		AccountID: account.ID,
		Direction: model.DirectionDebit,
		Amount:    amount,
		Reference: "SEED",
		CreatedAt: at.UTC(),
	}
	if _, err := repository.NewEntryRepository(e.db).Append(context.Background(), nil, entry); err != nil {
		t.Fatalf("seed debit failed: %v", err)
	}
}

// countStatements 统计 db 上执行的所有语句
func countStatements(db *gorm.DB) *atomic.Int64 {
	var n atomic.Int64
	inc := func(*gorm.DB) { n.Add(1) }
	db.Callback().Query().Before("gorm:query").Register("test:count_query", inc)
	db.Callback().Create().Before("gorm:create").Register("test:count_create", inc)
	db.Callback().Update().Before("gorm:update").Register("test:count_update", inc)
	db.Callback().Row().Before("gorm:row").Register("test:count_row", inc)
	db.Callback().Raw().Before("gorm:raw").Register("test:count_raw", inc)
	return &n
}
