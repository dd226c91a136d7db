package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"banksystem/internal/config"
	"banksystem/internal/infrastructure/database"
	"banksystem/internal/infrastructure/lock"
	"banksystem/internal/infrastructure/notify"
	"banksystem/internal/model"
	"banksystem/internal/repository"
	"banksystem/internal/service"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

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

func testConfig() *config.Config {
	return &config.Config{
		Kafka: config.KafkaConfig{
			Enabled: true,
			Topic:   config.KafkaTopicConfig{LedgerEvents: "ledger_events"},
		},
		Business: config.BusinessConfig{
			Timezone:        "UTC",
			FundingMin:      100,
			FundingMax:      10_000_000,
			WithdrawalMin:   1_000,
			SeedMin:         1_000,
			SeedMax:         50_000,
			MaxAttempts:     3,
			RetryBackoff:    time.Millisecond,
			MaxRetryCount:   2,
			OutboxInterval:  10 * time.Millisecond,
			OutboxBatchSize: 100,
		},
	}
}

type recordingNotifier struct {
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) NotifyTransaction(_ context.Context, notification notify.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

type recordingPublisher struct {
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(_, key, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	return nil
}

func openAccount(t *testing.T, accounts *service.AccountService, owner string) *model.Account {
	t.Helper()
	account, err := accounts.Open(context.Background(), &service.OpenAccountRequest{
		OwnerID: owner, Email: owner + "@example.com", DisplayName: owner,
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return account
}

func TestOutboxSender_RoutesMessages(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	ctx := context.Background()

	accounts := service.NewAccountService(db, cfg)
	transfers := service.NewTransferService(db, lock.NewLocalLocker(), cfg)
	a := openAccount(t, accounts, "alice")
	b := openAccount(t, accounts, "bob")

	result, err := transfers.Transfer(ctx, &service.TransferRequest{
		SenderNumber: a.AccountNumber, RecipientNumber: b.AccountNumber, Amount: 500, Description: "lunch",
	})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}

	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}
	sender := NewOutboxSender(db, cfg, notifier, publisher)
	sender.processPendingMessages(ctx)

	if len(notifier.sent) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifier.sent))
	}
	if notifier.sent[0].AccountNumber != a.AccountNumber || notifier.sent[0].Direction != model.DirectionDebit {
		t.Errorf("first notification = %+v", notifier.sent[0])
	}
	if notifier.sent[1].Description != "lunch" || notifier.sent[1].Amount != 500 {
		t.Errorf("second notification = %+v", notifier.sent[1])
	}
	if len(publisher.keys) != 1 || publisher.keys[0] != result.Reference {
		t.Errorf("published keys = %v", publisher.keys)
	}

	pending, _ := repository.NewOutboxRepository(db).GetPendingMessages(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("pending after send = %d", len(pending))
	}
}

func TestOutboxSender_RetryThenFail(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	ctx := context.Background()
	repo := repository.NewOutboxRepository(db)

	msg := &model.OutboxMessage{MessageKey: "TRF1", Topic: "ledger_events", Payload: "{}", Status: model.OutboxStatusPending}
	if err := repo.Create(ctx, nil, msg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sender := NewOutboxSender(db, cfg, &recordingNotifier{}, &recordingPublisher{err: errors.New("broker down")})

	sender.processPendingMessages(ctx)
	pending, _ := repo.GetPendingMessages(ctx, 10)
	if len(pending) != 1 || pending[0].RetryCount != 1 {
		t.Fatalf("after first failure: %+v", pending)
	}

	sender.processPendingMessages(ctx)
	pending, _ = repo.GetPendingMessages(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("message still pending after max retries")
	}
	all, _ := repo.ListByTopic(ctx, "ledger_events")
	if all[0].Status != model.OutboxStatusFailed || all[0].RetryCount != 2 {
		t.Errorf("final message = %+v", all[0])
	}
}

func TestOutboxSender_NoPublisher(t *testing.T) {
	db := setupTestDB(t)
	sender := NewOutboxSender(db, testConfig(), &recordingNotifier{}, nil)

	err := sender.deliver(context.Background(), &model.OutboxMessage{Topic: "ledger_events"})
	if !errors.Is(err, errNoPublisher) {
		t.Fatalf("expected errNoPublisher, got %v", err)
	}
}

func TestOutboxSender_StartStop(t *testing.T) {
	db := setupTestDB(t)
	sender := NewOutboxSender(db, testConfig(), &recordingNotifier{}, &recordingPublisher{})

	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	sender.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender did not stop")
	}
}

func TestReconcileJob_Run(t *testing.T) {
	db := setupTestDB(t)
	cfg := testConfig()
	ctx := context.Background()

	accounts := service.NewAccountService(db, cfg)
	funding := service.NewFundingService(db, lock.NewLocalLocker(), cfg)
	job := NewReconcileJob(db, accounts)
	job.batchSize = 2

	var opened []*model.Account
	for _, owner := range []string{"a", "b", "c", "d", "e"} {
		opened = append(opened, openAccount(t, accounts, owner))
	}
	if _, err := funding.Fund(ctx, opened[0].ID, 1_000, "card"); err != nil {
		t.Fatalf("Fund failed: %v", err)
	}

	summary, err := job.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Checked != 5 || len(summary.Drifted) != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	db.Model(&model.Account{}).Where("id = ?", opened[3].ID).Update("balance", gorm.Expr("balance + 1"))

	summary, err = job.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Drifted) != 1 || summary.Drifted[0].AccountID != opened[3].ID {
		t.Errorf("drifted = %+v", summary.Drifted)
	}
}

func TestReconcileJob_Schedule(t *testing.T) {
	db := setupTestDB(t)
	job := NewReconcileJob(db, service.NewAccountService(db, testConfig()))
	c := cron.New()

	if _, err := job.Schedule(c, "@every 10m"); err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := job.Schedule(c, "not a cron spec"); err == nil {
		t.Fatal("expected error for invalid spec")
	}
	if len(c.Entries()) != 1 {
		t.Errorf("entries = %d, want 1", len(c.Entries()))
	}
}
