package repository_test

import (
	"context"
	"testing"

	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/repository/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderRepository_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB(t)
	orders := repository.NewOrderRepository(db)
	seeded := repotest.SeedOrder(t, db, "ASM-1234", 2000)

	got, err := orders.GetByOrderID(ctx, "ASM-1234")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)
	assert.Equal(t, models.OrderPending, got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Brass Diya Set", got.Items[0].Name)

	dup := *seeded
	dup.ID = 0
	assert.ErrorIs(t, orders.Create(ctx, &dup), repository.ErrDuplicateOrderID)

	_, err = orders.Get(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOrderRepository_Transition(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB(t)
	orders := repository.NewOrderRepository(db)
	order := repotest.SeedOrder(t, db, "ASM-2000", 500)

	require.NoError(t, orders.Transition(ctx, order.ID, models.OrderPending, models.OrderApproved))
	assert.ErrorIs(t, orders.Transition(ctx, order.ID, models.OrderPending, models.OrderDeclined), repository.ErrStatusConflict)

	got, err := orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderApproved, got.Status)
}

func TestOrderRepository_ListAndCount(t *testing.T) {
	ctx := context.Background()
	db := repotest.NewDB(t)
	orders := repository.NewOrderRepository(db)
	first := repotest.SeedOrder(t, db, "ASM-1001", 100)
	repotest.SeedOrder(t, db, "ASM-1002", 200)
	last := repotest.SeedOrder(t, db, "ASM-1003", 300)
	require.NoError(t, orders.Transition(ctx, first.ID, models.OrderPending, models.OrderDeclined))

	all, total, err := orders.List(ctx, repository.OrderFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, last.OrderID, all[0].OrderID)

	pending, total, err := orders.List(ctx, repository.OrderFilter{Status: models.OrderPending, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, pending, 1)

	counts, err := orders.CountByStatus(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[models.OrderPending])
	assert.EqualValues(t, 1, counts[models.OrderDeclined])
}
