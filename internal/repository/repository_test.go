package repository

import (
	"context"
	"testing"

	"banksystem/internal/infrastructure/database"
	"banksystem/internal/model"

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

func createAccountModel(number string) *model.Account {
	return &model.Account{
		AccountNumber: number,
		OwnerID:       "owner-" + number,
		Email:         number + "@example.com",
		DisplayName:   "Holder " + number,
		Tier:          model.TierStandard,
	}
}

func createAccount(t *testing.T, db *gorm.DB, number string, balance int64) *model.Account {
	t.Helper()
	account := createAccountModel(number)
	account.Balance = balance
	account.SeedBalance = balance
	if err := NewAccountRepository(db).Create(context.Background(), nil, account); err != nil {
		t.Fatalf("Failed to create account: %v", err)
	}
	return account
}
