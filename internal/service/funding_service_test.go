package service

import (
	"context"
	"errors"
	"testing"

	"banksystem/internal/model"
)

func TestFund_Bounds(t *testing.T) {
	env := newTestEnv(t)
	account := env.createAccount(t, model.TierStandard, 5_000)

	_, err := env.funding.Fund(context.Background(), account.ID, 50, "card")
	var amountErr *AmountError
	if !errors.As(err, &amountErr) || !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected AmountError, got %v", err)
	}
	if amountErr.Min != 100 || amountErr.Max != 10_000_000 {
		t.Errorf("amount error = %+v", amountErr)
	}

	if _, err := env.funding.Fund(context.Background(), account.ID, 10_000_001, "card"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount above max, got %v", err)
	}
	if len(env.entries(t, account.ID)) != 0 {
		t.Error("entries written for rejected funding")
	}

	balance, err := env.funding.Fund(context.Background(), account.ID, 100, "card")
	if err != nil {
		t.Fatalf("Fund failed: %v", err)
	}
	if balance != 5_100 || env.balance(t, account.ID) != 5_100 {
		t.Errorf("balance = %d, want 5100", balance)
	}

	entries := env.entries(t, account.ID)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if e := entries[0]; e.Direction != model.DirectionCredit || e.Amount != 100 || e.Category != model.CategoryFunding {
		t.Errorf("entry = %+v", e)
	}
}

func TestFund_UnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.funding.Fund(context.Background(), 424242, 1_000, "card"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestWithdraw(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	account := env.createAccount(t, model.TierStandard, 5_000)

	if _, err := env.funding.Withdraw(ctx, account.ID, 999, "atm"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount below min, got %v", err)
	}

	_, err := env.funding.Withdraw(ctx, account.ID, 6_000, "atm")
	var balanceErr *BalanceError
	if !errors.As(err, &balanceErr) || balanceErr.Available != 5_000 || balanceErr.Required != 6_000 {
		t.Errorf("expected BalanceError{6000, 5000}, got %v", err)
	}

	balance, err := env.funding.Withdraw(ctx, account.ID, 5_000, "atm")
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}

	entries := env.entries(t, account.ID)
	if len(entries) != 1 || entries[0].Direction != model.DirectionDebit || entries[0].Category != model.CategoryWithdrawal {
		t.Errorf("entries = %+v", entries)
	}

	if _, err := env.funding.Withdraw(ctx, 424242, 1_000, "atm"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestWithdraw_CountsTowardTransferLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sender := env.createAccount(t, model.TierStandard, 300_000)
	recipient := env.createAccount(t, model.TierStandard, 0)

	if _, err := env.funding.Withdraw(ctx, sender.ID, 95_000, "atm"); err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}

	_, err := env.transfer.Transfer(ctx, &TransferRequest{
		SenderNumber:    sender.AccountNumber,
		RecipientNumber: recipient.AccountNumber,
		Amount:          10_000,
	})
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.Used != 95_000 {
		t.Fatalf("expected daily LimitError with used=95000, got %v", err)
	}
}
