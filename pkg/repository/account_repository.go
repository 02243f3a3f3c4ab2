package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/giftshop/pkg/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrDuplicateAccount = errors.New("admin account already exists")
	ErrDuplicateCharge  = errors.New("order already has a wallet transaction")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *models.AdminAccount) error {
	if err := conn(ctx, r.db).Create(account).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to create admin account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*models.AdminAccount, error) {
	var account models.AdminAccount
	if err := conn(ctx, r.db).Where("username = ?", username).First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

// First returns the oldest admin account.
func (r *AccountRepository) First(ctx context.Context) (*models.AdminAccount, error) {
	var account models.AdminAccount
	if err := conn(ctx, r.db).Order("id ASC").First(&account).Error; err != nil {
		return nil, notFound(err)
	}
	return &account, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]models.AdminAccount, error) {
	var accounts []models.AdminAccount
	if err := conn(ctx, r.db).Order("id ASC").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list admin accounts: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) SetCommission(ctx context.Context, username string, percent decimal.NullDecimal) error {
	return r.update(ctx, username, map[string]interface{}{"commission_percent": percent})
}

func (r *AccountRepository) SetPasswordHash(ctx context.Context, username, hash string) error {
	return r.update(ctx, username, map[string]interface{}{"password_hash": hash})
}

func (r *AccountRepository) update(ctx context.Context, username string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := conn(ctx, r.db).Model(&models.AdminAccount{}).Where("username = ?", username).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update admin account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Debit subtracts amount from the balance only if the balance covers it.
// It reports false, without error, when the guard rejected the update.
func (r *AccountRepository) Debit(ctx context.Context, username string, amount decimal.Decimal) (bool, error) {
	result := conn(ctx, r.db).Model(&models.AdminAccount{}).
		Where("username = ? AND wallet_balance >= ?", username, amount).
		Updates(map[string]interface{}{
			"wallet_balance": gorm.Expr("wallet_balance - ?", amount),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to debit wallet: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *AccountRepository) Credit(ctx context.Context, username string, amount decimal.Decimal) error {
	result := conn(ctx, r.db).Model(&models.AdminAccount{}).
		Where("username = ?", username).
		Updates(map[string]interface{}{
			"wallet_balance": gorm.Expr("wallet_balance + ?", amount),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to credit wallet: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Append(ctx context.Context, tx *models.WalletTransaction) error {
	if err := conn(ctx, r.db).Create(tx).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicateCharge
		}
		return fmt.Errorf("failed to record wallet transaction: %w", err)
	}
	return nil
}

// ListByUsername returns the newest transactions first; limit <= 0 means all.
func (r *TransactionRepository) ListByUsername(ctx context.Context, username string, limit int) ([]models.WalletTransaction, error) {
	query := conn(ctx, r.db).Where("username = ?", username).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var txs []models.WalletTransaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}
	return txs, nil
}

func (r *TransactionRepository) Sum(ctx context.Context, username string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	row := conn(ctx, r.db).Model(&models.WalletTransaction{}).
		Where("username = ?", username).
		Select("SUM(amount)").Row()
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum wallet transactions: %w", err)
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
