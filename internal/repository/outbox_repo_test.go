package repository

import (
	"context"
	"testing"

	"banksystem/internal/model"
)

func TestOutboxRepository_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOutboxRepository(db)
	ctx := context.Background()

	msgs := []*model.OutboxMessage{
		{MessageKey: "TRF1", Topic: model.TopicEmailNotification, Payload: `{"a":1}`, Status: model.OutboxStatusPending},
		{MessageKey: "TRF1", Topic: "ledger_events", Payload: `{"b":2}`, Status: model.OutboxStatusPending},
		{MessageKey: "TRF2", Topic: "ledger_events", Payload: `{"c":3}`, Status: model.OutboxStatusPending},
	}
	if err := repo.Create(ctx, nil, msgs...); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.Create(ctx, nil); err != nil {
		t.Fatalf("Create with no messages failed: %v", err)
	}

	pending, err := repo.GetPendingMessages(ctx, 2)
	if err != nil {
		t.Fatalf("GetPendingMessages failed: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != msgs[0].ID || pending[1].ID != msgs[1].ID {
		t.Fatalf("pending = %+v", pending)
	}

	if err := repo.UpdateStatus(ctx, msgs[0].ID, model.OutboxStatusSent); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := repo.IncrementRetryCount(ctx, msgs[1].ID); err != nil {
		t.Fatalf("IncrementRetryCount failed: %v", err)
	}
	if err := repo.MarkAsFailed(ctx, msgs[2].ID); err != nil {
		t.Fatalf("MarkAsFailed failed: %v", err)
	}

	pending, _ = repo.GetPendingMessages(ctx, 10)
	if len(pending) != 1 || pending[0].ID != msgs[1].ID || pending[0].RetryCount != 1 {
		t.Fatalf("pending after updates = %+v", pending)
	}

	events, err := repo.ListByTopic(ctx, "ledger_events")
	if err != nil {
		t.Fatalf("ListByTopic failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ledger events = %d, want 2", len(events))
	}
	if events[1].Status != model.OutboxStatusFailed || events[1].RetryCount != 1 {
		t.Errorf("failed message = %+v", events[1])
	}
}
