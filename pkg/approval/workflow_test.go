package approval_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/example/giftshop/pkg/approval"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/repository/repotest"
	"github.com/example/giftshop/pkg/session"
	"github.com/example/giftshop/pkg/wallet"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingAuditor struct {
	mu      sync.Mutex
	entries []*repository.AuditLog
}

func (r *recordingAuditor) CreateAuditLog(_ context.Context, log *repository.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, log)
	return nil
}

func (r *recordingAuditor) GetAuditLogs(context.Context, repository.AuditQuery) ([]*repository.AuditLog, error) {
	return nil, nil
}

type fixture struct {
	db       *gorm.DB
	ledger   *wallet.Ledger
	workflow *approval.Workflow
	auditor  *recordingAuditor
	changes  []wallet.Change
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{db: repotest.NewDB(t), auditor: &recordingAuditor{}}
	f.ledger = wallet.NewLedger(f.db,
		config.WalletConfig{DefaultCommissionPercent: 4, StoreCode: "ASM"},
		config.AuthConfig{},
		zap.NewNop())
	f.ledger.Subscribe(wallet.ObserverFunc(func(_ context.Context, c wallet.Change) {
		f.changes = append(f.changes, c)
	}))
	f.workflow = approval.NewWorkflow(f.db, f.ledger, nil, f.auditor, nil, zap.NewNop())
	return f
}

func (f *fixture) order(t *testing.T, id uint) *models.Order {
	t.Helper()
	o, err := repository.NewOrderRepository(f.db).Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

var asha = session.Identity{Username: "asha"}

func TestApprove_DeductsCommission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repotest.SeedAdmin(t, f.db, "asha", "pw", 100, 4)
	order := repotest.SeedOrder(t, f.db, "ASM-1234", 2000)

	result, err := f.workflow.Approve(ctx, asha, order.ID)
	require.NoError(t, err)

	assert.True(t, result.Deduction.Equal(decimal.NewFromInt(80)))
	assert.True(t, result.Balance.Equal(decimal.NewFromInt(20)))
	require.NotNil(t, result.Transaction)
	assert.True(t, result.Transaction.Amount.Equal(decimal.NewFromInt(-80)))
	assert.Equal(t, "Approval commission for Order #ASM-1234", result.Transaction.Description)
	assert.Equal(t, models.OrderApproved, result.Order.Status)

	assert.Equal(t, models.OrderApproved, f.order(t, order.ID).Status)
	history, err := f.ledger.History(ctx, "asha", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].OrderID)
	assert.Equal(t, "ASM-1234", *history[0].OrderID)

	require.Len(t, f.changes, 1)
	assert.True(t, f.changes[0].Balance.Equal(decimal.NewFromInt(20)))
	require.Len(t, f.auditor.entries, 1)
	assert.Equal(t, "order.approved", f.auditor.entries[0].Action)
	assert.Equal(t, "asha", f.auditor.entries[0].Actor)
}

func TestApprove_InsufficientBalanceChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repotest.SeedAdmin(t, f.db, "asha", "pw", 50, 4)
	order := repotest.SeedOrder(t, f.db, "ASM-1234", 2000)

	_, err := f.workflow.Approve(ctx, asha, order.ID)
	var short *wallet.InsufficientBalanceError
	require.ErrorAs(t, err, &short)
	assert.True(t, short.Required.Equal(decimal.NewFromInt(80)))
	assert.True(t, short.Shortfall.Equal(decimal.NewFromInt(30)))

	assert.Equal(t, models.OrderPending, f.order(t, order.ID).Status)
	balance, err := f.ledger.Balance(ctx, "asha")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(50)))
	history, err := f.ledger.History(ctx, "asha", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.changes)
	assert.Empty(t, f.auditor.entries)
}

func TestApprove_ExactBalanceReachesZero(t *testing.T) {
	f := newFixture(t)
	repotest.SeedAdmin(t, f.db, "asha", "pw", 80, 4)
	order := repotest.SeedOrder(t, f.db, "ASM-1234", 2000)

	result, err := f.workflow.Approve(context.Background(), asha, order.ID)
	require.NoError(t, err)
	assert.True(t, result.Balance.IsZero())
}

func TestApprove_ZeroCommissionWritesNoTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repotest.SeedAdmin(t, f.db, "asha", "pw", 10, 0)
	order := repotest.SeedOrder(t, f.db, "ASM-1234", 2000)

	result, err := f.workflow.Approve(ctx, asha, order.ID)
	require.NoError(t, err)
	assert.True(t, result.Deduction.IsZero())
	assert.Nil(t, result.Transaction)
	assert.True(t, result.Balance.Equal(decimal.NewFromInt(10)))

	history, err := f.ledger.History(ctx, "asha", 0)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.changes)
	assert.Equal(t, models.OrderApproved, f.order(t, order.ID).Status)
}

func TestApprove_DefaultCommissionWhenUnset(t *testing.T) {
	f := newFixture(t)
	repotest.SeedAdmin(t, f.db, "asha", "pw", 100, -1)
	order := repotest.SeedOrder(t, f.db, "ASM-1234", 70)

	result, err := f.workflow.Approve(context.Background(), asha, order.ID)
	require.NoError(t, err)
	assert.True(t, result.Percent.Equal(decimal.NewFromInt(4)))
	assert.True(t, result.Deduction.Equal(decimal.NewFromInt(3)), "2.8 rounds to 3")
}

func TestDecisions_AreTerminal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repotest.SeedAdmin(t, f.db, "asha", "pw", 1000, 4)
	approved := repotest.SeedOrder(t, f.db, "ASM-1001", 100)
	declined := repotest.SeedOrder(t, f.db, "ASM-1002", 100)

	_, err := f.workflow.Approve(ctx, asha, approved.ID)
	require.NoError(t, err)
	order, err := f.workflow.Decline(ctx, asha, declined.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDeclined, order.Status)

	_, err = f.workflow.Approve(ctx, asha, approved.ID)
	assert.ErrorIs(t, err, approval.ErrNotPending)
	_, err = f.workflow.Decline(ctx, asha, approved.ID)
	assert.ErrorIs(t, err, approval.ErrNotPending)
	_, err = f.workflow.Approve(ctx, asha, declined.ID)
	assert.ErrorIs(t, err, approval.ErrNotPending)

	_, err = f.workflow.Approve(ctx, asha, 999)
	assert.ErrorIs(t, err, approval.ErrOrderNotFound)
	_, err = f.workflow.Decline(ctx, asha, 999)
	assert.ErrorIs(t, err, approval.ErrOrderNotFound)

	summary, err := f.ledger.Reconcile(ctx, "asha")
	require.NoError(t, err)
	assert.True(t, summary.Balance.Equal(decimal.NewFromInt(996)), "decline has no wallet effect")
	assert.Equal(t, models.OrderDeclined, f.order(t, declined.ID).Status)
}

func TestApprove_UnknownAdminFailsClosed(t *testing.T) {
	f := newFixture(t)
	repotest.SeedAdmin(t, f.db, "owner", "pw", 100, 4)
	order := repotest.SeedOrder(t, f.db, "ASM-1234", 100)

	_, err := f.workflow.Approve(context.Background(), session.Identity{Username: "ghost"}, order.ID)
	assert.ErrorIs(t, err, wallet.ErrAccountNotFound)
	assert.Equal(t, models.OrderPending, f.order(t, order.ID).Status)

	_, err = f.workflow.Decline(context.Background(), session.Identity{Username: "ghost"}, order.ID)
	assert.ErrorIs(t, err, wallet.ErrAccountNotFound)
	assert.Equal(t, models.OrderPending, f.order(t, order.ID).Status)

	_, err = f.workflow.Decline(context.Background(), session.Identity{}, order.ID)
	assert.ErrorIs(t, err, session.ErrUnauthenticated)
	assert.Empty(t, f.auditor.entries)
}

func TestDispatcher_SerializesConcurrentApprovals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	repotest.SeedAdmin(t, f.db, "asha", "pw", 100, 4)

	const n = 8
	ids := make([]uint, n)
	for i := range ids {
		ids[i] = repotest.SeedOrder(t, f.db, fmt.Sprintf("ASM-%d", 3000+i), 1000).ID
	}

	d := approval.NewDispatcher(f.workflow, zap.NewNop())
	defer d.Stop()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := d.Approve(ctx, asha, id)
			if err == nil {
				mu.Lock()
				approved++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 2, approved, "100 points cover two 40-point commissions")
	summary, err := f.ledger.Reconcile(ctx, "asha")
	require.NoError(t, err)
	assert.True(t, summary.Balance.Equal(decimal.NewFromInt(20)))
	assert.True(t, summary.TransactionSum.Equal(decimal.NewFromInt(-80)))

	counts, err := repository.NewOrderRepository(f.db).CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[models.OrderApproved])
	assert.EqualValues(t, n-2, counts[models.OrderPending])
}

func TestDispatcher_Decline(t *testing.T) {
	f := newFixture(t)
	repotest.SeedAdmin(t, f.db, "asha", "pw", 100, 4)
	order := repotest.SeedOrder(t, f.db, "ASM-1234", 100)

	d := approval.NewDispatcher(f.workflow, zap.NewNop())
	got, err := d.Decline(context.Background(), asha, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDeclined, got.Status)

	d.Stop()
	_, err = d.Approve(context.Background(), asha, order.ID)
	assert.ErrorIs(t, err, approval.ErrDispatcherStopped)
}
