// Package repotest provides in-memory stores for tests.
package repotest

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/repository"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// NewDB opens a migrated in-memory sqlite database closed at test cleanup.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := repository.OpenDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         ":memory:",
		AutoMigrate: true,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// NewRedis returns a repository backed by miniredis and the server itself.
func NewRedis(t testing.TB) (*repository.RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return repository.NewRedisRepositoryWithClient(client), srv
}

// SeedAdmin inserts an admin account with the given balance. A negative
// commission leaves the percent unset.
func SeedAdmin(t testing.TB, db *gorm.DB, username, password string, balance, commission float64) *models.AdminAccount {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	account := &models.AdminAccount{
		Username:      username,
		PasswordHash:  string(hash),
		WalletBalance: decimal.NewFromFloat(balance),
	}
	if commission >= 0 {
		account.CommissionPercent = decimal.NewNullDecimal(decimal.NewFromFloat(commission))
	}
	if err := repository.NewAccountRepository(db).Create(context.Background(), account); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return account
}

// SeedOrder inserts a pending order with a single line worth total.
func SeedOrder(t testing.TB, db *gorm.DB, orderID string, total float64) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderID:         orderID,
		CustomerName:    "Priya",
		CustomerMobile:  "+91 9876543210",
		DeliveryAddress: "12 Temple St",
		Items: []models.OrderItem{{
			ProductID: "5",
			Name:      "Brass Diya Set",
			Price:     decimal.NewFromFloat(total),
			Quantity:  1,
		}},
		TotalAmount: decimal.NewFromFloat(total),
		Status:      models.OrderPending,
	}
	if err := repository.NewOrderRepository(db).Create(context.Background(), order); err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order
}
