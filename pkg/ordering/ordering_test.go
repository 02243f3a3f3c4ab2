package ordering_test

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"testing"

	"github.com/IBM/sarama/mocks"
	"github.com/example/giftshop/pkg/cart"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/events"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/ordering"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/repository/repotest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var walletCfg = config.WalletConfig{DefaultCommissionPercent: 4, StoreCode: "ASM", CountryCode: "+91"}

func newService(t *testing.T, opts ...ordering.Option) (*ordering.Service, *gorm.DB) {
	t.Helper()
	db := repotest.NewDB(t)
	return ordering.NewService(repository.NewOrderRepository(db), nil, nil, walletCfg, zap.NewNop(), opts...), db
}

func cartWith(t *testing.T, items ...cart.Item) *cart.Cart {
	t.Helper()
	ctx := context.Background()
	c := cart.New(ctx, cart.NewMemoryStorage(), "c1", zap.NewNop())
	for _, it := range items {
		require.NoError(t, c.AddItem(ctx, it))
	}
	return c
}

var priya = ordering.Customer{Name: "Priya", Mobile: "+91 9876543210", Address: "12 Temple St"}

func TestNormalizeMobile(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"+91 9876543210", "9876543210", true},
		{"+91 98765 43210", "9876543210", true},
		{"9876543210", "9876543210", true},
		{" 98765\t43210 ", "9876543210", true},
		{"+91 987654321", "", false},
		{"+91 98765432100", "", false},
		{"+44 9876543210", "", false},
		{"98765abc10", "", false},
		{"+91 ９８７６５４３２１０", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ordering.NormalizeMobile(tt.in, "+91")
		if tt.ok {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got)
		} else {
			assert.ErrorIs(t, err, ordering.ErrInvalidMobile, tt.in)
		}
	}
}

func TestGenerateOrderID(t *testing.T) {
	short := regexp.MustCompile(`^ASM-[1-9]\d{3}$`)
	long := regexp.MustCompile(`^ASM-[1-9]\d{5}$`)
	for i := 0; i < 200; i++ {
		assert.Regexp(t, short, ordering.GenerateOrderID("ASM", 0))
		assert.Regexp(t, long, ordering.GenerateOrderID("ASM", 3))
	}
}

func TestSubmit_PriyaScenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	c := cartWith(t, cart.Item{ID: "5", Name: "Brass Diya Set", Price: decimal.NewFromInt(35), Quantity: 2})

	order, err := svc.Submit(ctx, c, priya)
	require.NoError(t, err)

	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(70)))
	assert.Equal(t, models.OrderPending, order.Status)
	assert.Regexp(t, `^ASM-\d{4}$`, order.OrderID)
	assert.Equal(t, "+91 9876543210", order.CustomerMobile)
	assert.True(t, c.IsEmpty(), "cart is cleared after checkout")

	stored, err := svc.GetByOrderID(ctx, order.OrderID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "5", stored.Items[0].ProductID)
	assert.Equal(t, 2, stored.Items[0].Quantity)
	assert.True(t, stored.Items[0].Price.Equal(decimal.NewFromInt(35)))
	assert.True(t, stored.TotalAmount.Equal(decimal.NewFromInt(70)))
}

func TestSubmit_ValidationLeavesCartAlone(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)

	_, err := svc.Submit(ctx, cartWith(t), priya)
	assert.ErrorIs(t, err, ordering.ErrEmptyCart)

	tests := []struct {
		name  string
		cust  ordering.Customer
		field string
		err   error
	}{
		{"missing name", ordering.Customer{Mobile: priya.Mobile, Address: priya.Address}, "name", ordering.ErrMissingField},
		{"missing address", ordering.Customer{Name: "Priya", Mobile: priya.Mobile, Address: "  "}, "address", ordering.ErrMissingField},
		{"missing mobile", ordering.Customer{Name: "Priya", Address: priya.Address}, "mobile", ordering.ErrMissingField},
		{"short mobile", ordering.Customer{Name: "Priya", Mobile: "+91 12345", Address: priya.Address}, "mobile", ordering.ErrInvalidMobile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cartWith(t, cart.Item{ID: "5", Name: "Diya", Price: decimal.NewFromInt(35), Quantity: 1})
			_, err := svc.Submit(ctx, c, tt.cust)
			var verr *ordering.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, 1, c.Count())
		})
	}

	_, total, err := repository.NewOrderRepository(db).List(ctx, repository.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total, "no partial order is created")
}

func TestSubmit_RetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	var attempts []int
	svc, db := newService(t, ordering.WithIDGenerator(func(attempt int) string {
		attempts = append(attempts, attempt)
		if attempt < 2 {
			return "ASM-1111"
		}
		return fmt.Sprintf("ASM-20%02d", attempt)
	}))
	repotest.SeedOrder(t, db, "ASM-1111", 10)

	order, err := svc.Submit(ctx, cartWith(t, cart.Item{ID: "1", Price: decimal.NewFromInt(5), Quantity: 1}), priya)
	require.NoError(t, err)
	assert.Equal(t, "ASM-2002", order.OrderID)
	assert.Equal(t, []int{0, 1, 2}, attempts)
}

func TestSubmit_ExhaustsRetries(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t, ordering.WithIDGenerator(func(int) string { return "ASM-1111" }))
	repotest.SeedOrder(t, db, "ASM-1111", 10)

	c := cartWith(t, cart.Item{ID: "1", Price: decimal.NewFromInt(5), Quantity: 1})
	_, err := svc.Submit(ctx, c, priya)
	assert.ErrorIs(t, err, ordering.ErrOrderIDExhausted)
	assert.False(t, c.IsEmpty(), "a failed submission keeps the cart")
}

func TestSubmit_PublishesOrderCreated(t *testing.T) {
	ctx := context.Background()
	producer := mocks.NewSyncProducer(t, events.ProducerConfig())
	producer.ExpectSendMessageAndSucceed()
	pub := events.NewKafkaPublisherWithProducer(producer, config.KafkaConfig{OrdersTopic: "giftshop.orders"}, zap.NewNop())
	defer pub.Close()

	db := repotest.NewDB(t)
	svc := ordering.NewService(repository.NewOrderRepository(db), pub, nil, walletCfg, zap.NewNop())
	_, err := svc.Submit(ctx, cartWith(t, cart.Item{ID: "1", Price: decimal.NewFromInt(5), Quantity: 1}), priya)
	require.NoError(t, err)
}

func TestAdminViewAndWhatsApp(t *testing.T) {
	order := models.Order{
		OrderID:         "ASM-1234",
		CustomerName:    "Priya",
		CustomerMobile:  "+91 9876543210",
		DeliveryAddress: "12 Temple St",
		Status:          models.OrderPending,
	}

	view := ordering.AdminView(order)
	assert.False(t, view.ContactVisible)
	assert.Empty(t, view.CustomerMobile)
	assert.Empty(t, view.DeliveryAddress)
	assert.Equal(t, "Priya", view.CustomerName)
	assert.Equal(t, "+91 9876543210", order.CustomerMobile, "the stored order is not modified")

	_, err := ordering.WhatsAppLink(&order)
	assert.ErrorIs(t, err, ordering.ErrNotApproved)

	order.Status = models.OrderApproved
	view = ordering.AdminView(order)
	assert.True(t, view.ContactVisible)
	assert.Equal(t, "12 Temple St", view.DeliveryAddress)

	link, err := ordering.WhatsAppLink(&order)
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/919876543210?text=Hi%20Priya%2C%20we%27ve%20approved%20your%20order%20%23ASM-1234", link)
}

func TestWhatsAppLink_EscapesQueryDelimiters(t *testing.T) {
	order := models.Order{
		OrderID:        "ASM-1234",
		CustomerName:   "Ravi & Co+1 =x",
		CustomerMobile: "+91 9876543210",
		Status:         models.OrderApproved,
	}
	link, err := ordering.WhatsAppLink(&order)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Len(t, u.Query(), 1)
	assert.Equal(t, "Hi Ravi & Co+1 =x, we've approved your order #ASM-1234", u.Query().Get("text"))
}

func TestList_RedactsAndFilters(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	pending := repotest.SeedOrder(t, db, "ASM-1001", 100)
	approved := repotest.SeedOrder(t, db, "ASM-1002", 200)
	require.NoError(t, repository.NewOrderRepository(db).Transition(ctx, approved.ID, models.OrderPending, models.OrderApproved))

	all, total, err := svc.List(ctx, ordering.Filter{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, all, 2)
	assert.Equal(t, "ASM-1002", all[0].OrderID)
	assert.True(t, all[0].ContactVisible)
	assert.Empty(t, all[1].CustomerMobile)

	onlyPending, _, err := svc.List(ctx, ordering.Filter{Status: models.OrderPending})
	require.NoError(t, err)
	require.Len(t, onlyPending, 1)
	assert.Equal(t, pending.OrderID, onlyPending[0].OrderID)

	_, _, err = svc.List(ctx, ordering.Filter{Status: "shipped"})
	var verr *ordering.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Get(ctx, 999)
	assert.ErrorIs(t, err, ordering.ErrNotFound)
}
