// Package approval moves pending orders to approved or declined and charges
// the approving admin's commission.
package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/giftshop/pkg/events"
	"github.com/example/giftshop/pkg/metrics"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/session"
	"github.com/example/giftshop/pkg/wallet"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNotPending    = errors.New("order is no longer pending")
)

// Result describes a committed approval. Transaction is nil when the
// commission rounded to zero.
type Result struct {
	Order       *models.Order             `json:"order"`
	Deduction   decimal.Decimal           `json:"deduction"`
	Percent     decimal.Decimal           `json:"commission_percent"`
	Balance     decimal.Decimal           `json:"balance"`
	Transaction *models.WalletTransaction `json:"transaction,omitempty"`
}

// Decider approves and declines orders on behalf of an admin.
type Decider interface {
	Approve(ctx context.Context, id session.Identity, orderID uint) (*Result, error)
	Decline(ctx context.Context, id session.Identity, orderID uint) (*models.Order, error)
}

type Workflow struct {
	db        *gorm.DB
	orders    *repository.OrderRepository
	ledger    *wallet.Ledger
	publisher events.Publisher
	auditor   repository.Auditor
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewWorkflow(db *gorm.DB, ledger *wallet.Ledger, publisher events.Publisher, auditor repository.Auditor, m *metrics.Metrics, logger *zap.Logger) *Workflow {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if auditor == nil {
		auditor = repository.NoopAuditor{}
	}
	return &Workflow{
		db:        db,
		orders:    repository.NewOrderRepository(db),
		ledger:    ledger,
		publisher: publisher,
		auditor:   auditor,
		metrics:   m,
		logger:    logger,
	}
}

// Approve charges the admin's commission on the order total and marks the
// order approved. The status claim, balance debit and ledger entry commit
// in one database transaction; any refusal leaves the order pending and the
// wallet untouched.
func (w *Workflow) Approve(ctx context.Context, id session.Identity, orderID uint) (*Result, error) {
	var result *Result
	err := repository.Transaction(ctx, w.db, func(ctx context.Context) error {
		account, err := w.ledger.Account(ctx, id)
		if err != nil {
			return err
		}
		order, err := w.pendingOrder(ctx, orderID)
		if err != nil {
			return err
		}

		if err := w.orders.Transition(ctx, order.ID, models.OrderPending, models.OrderApproved); err != nil {
			return translate(err)
		}

		percent := w.ledger.CommissionPercent(account)
		deduction := wallet.Commission(order.TotalAmount, percent)
		result = &Result{Order: order, Deduction: deduction, Percent: percent, Balance: account.WalletBalance}

		if deduction.IsPositive() {
			entry, balance, err := w.ledger.Debit(ctx, account.Username, deduction, order.OrderID,
				fmt.Sprintf("Approval commission for Order #%s", order.OrderID))
			if err != nil {
				return err
			}
			result.Transaction = entry
			result.Balance = balance
		}
		order.Status = models.OrderApproved
		return nil
	})
	if err != nil {
		w.rejected(orderID, id, err)
		return nil, err
	}

	w.approved(ctx, id, result)
	return result, nil
}

// Decline marks a pending order declined. The decider must resolve to an
// admin account; the wallet is not touched.
func (w *Workflow) Decline(ctx context.Context, id session.Identity, orderID uint) (*models.Order, error) {
	if id.IsZero() {
		return nil, session.ErrUnauthenticated
	}
	if _, err := w.ledger.Account(ctx, id); err != nil {
		w.rejected(orderID, id, err)
		return nil, err
	}
	order, err := w.pendingOrder(ctx, orderID)
	if err != nil {
		w.rejected(orderID, id, err)
		return nil, err
	}
	if err := w.orders.Transition(ctx, order.ID, models.OrderPending, models.OrderDeclined); err != nil {
		err = translate(err)
		w.rejected(orderID, id, err)
		return nil, err
	}
	order.Status = models.OrderDeclined

	w.metrics.OrderDecided(string(models.OrderDeclined), 0)
	events.Emit(ctx, w.publisher, w.logger, events.TypeOrderDeclined, order.OrderID, events.OrderPayload{
		OrderID:     order.OrderID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Actor:       id.Username,
	})
	w.audit(ctx, id, "order.declined", order.OrderID, bson.M{"total_amount": order.TotalAmount.String()})
	w.logger.Info("Order declined", zap.String("order_id", order.OrderID), zap.String("username", id.Username))
	return order, nil
}

func (w *Workflow) pendingOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	order, err := w.orders.Get(ctx, orderID)
	if err != nil {
		return nil, translate(err)
	}
	if order.Status != models.OrderPending {
		return nil, ErrNotPending
	}
	return order, nil
}

func (w *Workflow) approved(ctx context.Context, id session.Identity, r *Result) {
	order := r.Order
	w.metrics.OrderDecided(string(models.OrderApproved), r.Deduction.InexactFloat64())

	if r.Transaction != nil {
		w.ledger.Notify(ctx, wallet.Change{
			Username: r.Transaction.Username,
			Balance:  r.Balance,
			Delta:    r.Transaction.Amount,
			OrderID:  order.OrderID,
			Type:     models.TransactionDeduction,
			At:       r.Transaction.CreatedAt,
		})
	}

	events.Emit(ctx, w.publisher, w.logger, events.TypeOrderApproved, order.OrderID, events.OrderPayload{
		OrderID:     order.OrderID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Actor:       id.Username,
		Deduction:   r.Deduction,
	})
	w.audit(ctx, id, "order.approved", order.OrderID, bson.M{
		"total_amount": order.TotalAmount.String(),
		"percent":      r.Percent.String(),
		"deduction":    r.Deduction.String(),
		"balance":      r.Balance.String(),
	})
	w.logger.Info("Order approved",
		zap.String("order_id", order.OrderID),
		zap.String("username", id.Username),
		zap.String("deduction", r.Deduction.String()),
		zap.String("balance", r.Balance.String()))
}

func (w *Workflow) rejected(orderID uint, id session.Identity, err error) {
	reason := "error"
	switch {
	case errors.Is(err, wallet.ErrInsufficientBalance):
		reason = "insufficient_balance"
	case errors.Is(err, ErrNotPending):
		reason = "not_pending"
	case errors.Is(err, ErrOrderNotFound):
		reason = "not_found"
	case errors.Is(err, wallet.ErrAccountNotFound), errors.Is(err, session.ErrUnauthenticated):
		reason = "unknown_account"
	}
	w.metrics.ApprovalRejected(reason)
	w.logger.Info("Order decision refused",
		zap.Uint("id", orderID),
		zap.String("username", id.Username),
		zap.String("reason", reason),
		zap.Error(err))
}

func (w *Workflow) audit(ctx context.Context, id session.Identity, action, orderID string, data bson.M) {
	if err := w.auditor.CreateAuditLog(ctx, &repository.AuditLog{
		Service:  "approval",
		Action:   action,
		EntityID: orderID,
		Actor:    id.Username,
		Data:     data,
	}); err != nil {
		w.logger.Warn("Failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func translate(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrOrderNotFound
	case errors.Is(err, repository.ErrStatusConflict):
		return ErrNotPending
	}
	return err
}
