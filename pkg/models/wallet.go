package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionDeduction TransactionType = "deduction"
	TransactionRefill    TransactionType = "refill"
)

var ErrLedgerImmutable = errors.New("wallet transactions are append-only")

// WalletTransaction is one ledger entry. Amount is negative for
// deductions. OrderID is unique so an order can be charged at most once.
type WalletTransaction struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Username    string          `gorm:"type:varchar(64);index;not null" json:"username"`
	OrderID     *string         `gorm:"column:order_id;type:varchar(32);uniqueIndex" json:"order_id"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	Type        TransactionType `gorm:"type:varchar(16);not null" json:"type"`
	Description string          `gorm:"type:varchar(255)" json:"description"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

func (*WalletTransaction) BeforeUpdate(*gorm.DB) error {
	return ErrLedgerImmutable
}

func (*WalletTransaction) BeforeDelete(*gorm.DB) error {
	return ErrLedgerImmutable
}

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&Product{},
		&Banner{},
		&Order{},
		&AdminAccount{},
		&WalletTransaction{},
	}
}
