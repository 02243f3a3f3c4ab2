package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdminAccount is a back-office operator. WalletBalance is kept
// non-negative by the ledger's conditional debit, not by a column constraint.
type AdminAccount struct {
	ID                uint                `gorm:"primaryKey" json:"id"`
	Username          string              `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash      string              `gorm:"type:varchar(100);not null" json:"-"`
	WalletBalance     decimal.Decimal     `gorm:"type:decimal(14,2);not null;default:0" json:"wallet_balance"`
	CommissionPercent decimal.NullDecimal `gorm:"type:decimal(5,2)" json:"commission_percent"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func (AdminAccount) TableName() string {
	return "admin_accounts"
}

// Commission returns the account's commission percent, or def when unset.
func (a *AdminAccount) Commission(def decimal.Decimal) decimal.Decimal {
	if a == nil || !a.CommissionPercent.Valid {
		return def
	}
	return a.CommissionPercent.Decimal
}
