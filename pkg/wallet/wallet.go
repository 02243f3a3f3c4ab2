// Package wallet keeps each admin's points balance and its append-only
// transaction history.
//
// Every balance change is one conditional UPDATE plus one ledger insert in
// the same database transaction, so the balance never goes negative and the
// sum of an account's transactions always explains its balance movement.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/session"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrAccountNotFound     = errors.New("admin account not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrAlreadyCharged      = errors.New("order already charged")
)

// InsufficientBalanceError reports the exact shortfall of a refused debit.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Balance   decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient wallet balance: need %s, have %s (short by %s)",
		e.Required.StringFixed(2), e.Balance.StringFixed(2), e.Shortfall.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

var hundred = decimal.NewFromInt(100)

// Commission is total × percent / 100 rounded to whole points, halves away
// from zero.
func Commission(total, percent decimal.Decimal) decimal.Decimal {
	return total.Mul(percent).Div(hundred).Round(0)
}

// Change describes a committed balance movement.
type Change struct {
	Username string                 `json:"username"`
	Balance  decimal.Decimal        `json:"balance"`
	Delta    decimal.Decimal        `json:"delta"`
	OrderID  string                 `json:"order_id,omitempty"`
	Type     models.TransactionType `json:"type"`
	At       time.Time              `json:"at"`
}

// Observer is told about balance changes after they commit.
type Observer interface {
	WalletChanged(ctx context.Context, change Change)
}

type ObserverFunc func(ctx context.Context, change Change)

func (f ObserverFunc) WalletChanged(ctx context.Context, change Change) {
	f(ctx, change)
}

// Summary is a read-only reconciliation of an account.
type Summary struct {
	Username       string          `json:"username"`
	Balance        decimal.Decimal `json:"balance"`
	TransactionSum decimal.Decimal `json:"transaction_sum"`
	// OpeningBalance is the part of the balance no transaction explains.
	// It is zero for accounts created through CreateAccount.
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

type Ledger struct {
	db             *gorm.DB
	accounts       *repository.AccountRepository
	transactions   *repository.TransactionRepository
	defaultPercent decimal.Decimal
	fallback       bool
	logger         *zap.Logger

	mu        sync.RWMutex
	observers []Observer
}

func NewLedger(db *gorm.DB, walletCfg config.WalletConfig, authCfg config.AuthConfig, logger *zap.Logger) *Ledger {
	return &Ledger{
		db:             db,
		accounts:       repository.NewAccountRepository(db),
		transactions:   repository.NewTransactionRepository(db),
		defaultPercent: decimal.NewFromFloat(walletCfg.DefaultCommissionPercent),
		fallback:       authCfg.LegacyFirstAccountFallback,
		logger:         logger,
	}
}

func (l *Ledger) Subscribe(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Notify fans a committed change out to every observer.
func (l *Ledger) Notify(ctx context.Context, change Change) {
	l.mu.RLock()
	observers := append([]Observer(nil), l.observers...)
	l.mu.RUnlock()

	for _, o := range observers {
		o.WalletChanged(ctx, change)
	}
}

// CommissionPercent is the account's percent, or the configured default
// when the account has none.
func (l *Ledger) CommissionPercent(account *models.AdminAccount) decimal.Decimal {
	return account.Commission(l.defaultPercent)
}

// Account resolves the admin behind id. Unknown usernames fail closed
// unless the first-account fallback is enabled.
func (l *Ledger) Account(ctx context.Context, id session.Identity) (*models.AdminAccount, error) {
	if !id.IsZero() {
		account, err := l.accounts.GetByUsername(ctx, id.Username)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	if !l.fallback {
		return nil, ErrAccountNotFound
	}

	account, err := l.accounts.First(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	l.logger.Warn("Falling back to first admin account",
		zap.String("requested", id.Username), zap.String("resolved", account.Username))
	return account, nil
}

// Debit charges amount to username for orderID. The balance update and
// the ledger entry commit together, joining the caller's transaction when
// ctx carries one. A refused debit returns *InsufficientBalanceError.
func (l *Ledger) Debit(ctx context.Context, username string, amount decimal.Decimal, orderID, description string) (*models.WalletTransaction, decimal.Decimal, error) {
	if amount.IsNegative() {
		return nil, decimal.Zero, ErrInvalidAmount
	}

	var (
		entry   *models.WalletTransaction
		balance decimal.Decimal
	)
	err := repository.Transaction(ctx, l.db, func(ctx context.Context) error {
		ok, err := l.accounts.Debit(ctx, username, amount)
		if err != nil {
			return err
		}
		if !ok {
			current, err := l.balance(ctx, username)
			if err != nil {
				return err
			}
			return &InsufficientBalanceError{
				Required:  amount,
				Balance:   current,
				Shortfall: amount.Sub(current),
			}
		}

		entry = &models.WalletTransaction{
			Username:    username,
			Amount:      amount.Neg(),
			Type:        models.TransactionDeduction,
			Description: description,
		}
		if orderID != "" {
			entry.OrderID = &orderID
		}
		if err := l.transactions.Append(ctx, entry); err != nil {
			if errors.Is(err, repository.ErrDuplicateCharge) {
				return ErrAlreadyCharged
			}
			return err
		}

		balance, err = l.balance(ctx, username)
		return err
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return entry, balance, nil
}

// Refill credits a positive amount and records it in one transaction.
// Observers are notified after commit.
func (l *Ledger) Refill(ctx context.Context, username string, amount decimal.Decimal, description string) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var (
		entry   *models.WalletTransaction
		balance decimal.Decimal
	)
	err := repository.Transaction(ctx, l.db, func(ctx context.Context) error {
		var err error
		entry, balance, err = l.credit(ctx, username, amount, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.refilled(ctx, entry, balance)
	return entry, nil
}

// CreateAccount stores a new admin with an empty wallet and, when opening
// is positive, credits it as the account's first refill. Both commit
// together, so the ledger explains the whole starting balance.
func (l *Ledger) CreateAccount(ctx context.Context, account *models.AdminAccount, opening decimal.Decimal) (*models.WalletTransaction, error) {
	if opening.IsNegative() {
		return nil, ErrInvalidAmount
	}
	account.WalletBalance = decimal.Zero

	var (
		entry   *models.WalletTransaction
		balance decimal.Decimal
	)
	err := repository.Transaction(ctx, l.db, func(ctx context.Context) error {
		if err := l.accounts.Create(ctx, account); err != nil {
			return err
		}
		if !opening.IsPositive() {
			return nil
		}
		var err error
		entry, balance, err = l.credit(ctx, account.Username, opening, "Opening balance")
		return err
	})
	if err != nil {
		return nil, err
	}

	account.WalletBalance = balance
	l.logger.Info("Admin account created", zap.String("username", account.Username))
	if entry != nil {
		l.refilled(ctx, entry, balance)
	}
	return entry, nil
}

// credit must run inside a transaction.
func (l *Ledger) credit(ctx context.Context, username string, amount decimal.Decimal, description string) (*models.WalletTransaction, decimal.Decimal, error) {
	if description == "" {
		description = "Wallet refill"
	}
	if err := l.accounts.Credit(ctx, username, amount); err != nil {
		return nil, decimal.Zero, translate(err)
	}
	entry := &models.WalletTransaction{
		Username:    username,
		Amount:      amount,
		Type:        models.TransactionRefill,
		Description: description,
	}
	if err := l.transactions.Append(ctx, entry); err != nil {
		return nil, decimal.Zero, err
	}
	balance, err := l.balance(ctx, username)
	if err != nil {
		return nil, decimal.Zero, err
	}
	return entry, balance, nil
}

func (l *Ledger) refilled(ctx context.Context, entry *models.WalletTransaction, balance decimal.Decimal) {
	l.logger.Info("Wallet refilled",
		zap.String("username", entry.Username),
		zap.String("amount", entry.Amount.String()),
		zap.String("balance", balance.String()))
	l.Notify(ctx, Change{
		Username: entry.Username,
		Balance:  balance,
		Delta:    entry.Amount,
		Type:     models.TransactionRefill,
		At:       entry.CreatedAt,
	})
}

// SetCommission stores a per-account percent; nil clears it back to the
// default.
func (l *Ledger) SetCommission(ctx context.Context, username string, percent *decimal.Decimal) error {
	value := decimal.NullDecimal{}
	if percent != nil {
		if percent.IsNegative() || percent.GreaterThan(hundred) {
			return fmt.Errorf("commission percent must be within 0..100, got %s", percent)
		}
		value = decimal.NewNullDecimal(*percent)
	}
	return translate(l.accounts.SetCommission(ctx, username, value))
}

// History lists transactions newest first; limit <= 0 returns all.
func (l *Ledger) History(ctx context.Context, username string, limit int) ([]models.WalletTransaction, error) {
	return l.transactions.ListByUsername(ctx, username, limit)
}

func (l *Ledger) Reconcile(ctx context.Context, username string) (*Summary, error) {
	account, err := l.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, translate(err)
	}
	sum, err := l.transactions.Sum(ctx, username)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Username:       username,
		Balance:        account.WalletBalance,
		TransactionSum: sum,
		OpeningBalance: account.WalletBalance.Sub(sum),
	}, nil
}

// Balance returns the current balance of username.
func (l *Ledger) Balance(ctx context.Context, username string) (decimal.Decimal, error) {
	return l.balance(ctx, username)
}

func (l *Ledger) balance(ctx context.Context, username string) (decimal.Decimal, error) {
	account, err := l.accounts.GetByUsername(ctx, username)
	if err != nil {
		return decimal.Zero, translate(err)
	}
	return account.WalletBalance, nil
}

func translate(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAccountNotFound
	}
	return err
}
