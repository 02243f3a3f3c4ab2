// Package ordering turns a shopper's cart into a pending order and gives the
// back office a redacted view of it.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"unicode"

	"github.com/example/giftshop/pkg/cart"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/events"
	"github.com/example/giftshop/pkg/metrics"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/repository"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ErrEmptyCart        = errors.New("cart is empty")
	ErrInvalidMobile    = errors.New("mobile number must have 10 digits")
	ErrMissingField     = errors.New("field is required")
	ErrOrderIDExhausted = errors.New("could not allocate a unique order id")
	ErrNotFound         = errors.New("order not found")
	ErrNotApproved      = errors.New("order is not approved")
)

const maxIDAttempts = 5

// ValidationError names the customer field that failed validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type Customer struct {
	Name    string `json:"name"`
	Mobile  string `json:"mobile"`
	Address string `json:"address"`
}

type Filter struct {
	Status models.OrderStatus
	Limit  int
	Offset int
}

// IDGenerator returns a candidate order id for the given zero-based attempt.
type IDGenerator func(attempt int) string

type Option func(*Service)

func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Service) { s.newID = gen }
}

type Service struct {
	orders      *repository.OrderRepository
	publisher   events.Publisher
	metrics     *metrics.Metrics
	countryCode string
	newID       IDGenerator
	logger      *zap.Logger
}

func NewService(orders *repository.OrderRepository, publisher events.Publisher, m *metrics.Metrics, cfg config.WalletConfig, logger *zap.Logger, opts ...Option) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	storeCode := cfg.StoreCode
	s := &Service{
		orders:      orders,
		publisher:   publisher,
		metrics:     m,
		countryCode: cfg.CountryCode,
		newID:       func(attempt int) string { return GenerateOrderID(storeCode, attempt) },
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateOrderID returns "<store>-NNNN" with four random digits, widening
// to six digits from the fourth attempt on.
func GenerateOrderID(storeCode string, attempt int) string {
	low, span := 1000, 9000
	if attempt >= 3 {
		low, span = 100000, 900000
	}
	return fmt.Sprintf("%s-%d", storeCode, low+rand.Intn(span))
}

// NormalizeMobile strips whitespace and a leading country code and requires
// exactly ten ASCII digits.
func NormalizeMobile(raw, countryCode string) (string, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
	if countryCode != "" {
		compact = strings.TrimPrefix(compact, countryCode)
	}
	if len(compact) != 10 {
		return "", ErrInvalidMobile
	}
	for i := 0; i < len(compact); i++ {
		if compact[i] < '0' || compact[i] > '9' {
			return "", ErrInvalidMobile
		}
	}
	return compact, nil
}

// Validate checks a checkout before any I/O and returns the mobile number
// in its stored form.
func (s *Service) Validate(c *cart.Cart, cust Customer) (string, error) {
	if c == nil || c.IsEmpty() {
		return "", ErrEmptyCart
	}
	if strings.TrimSpace(cust.Name) == "" {
		return "", &ValidationError{Field: "name", Err: ErrMissingField}
	}
	if strings.TrimSpace(cust.Mobile) == "" {
		return "", &ValidationError{Field: "mobile", Err: ErrMissingField}
	}
	if strings.TrimSpace(cust.Address) == "" {
		return "", &ValidationError{Field: "address", Err: ErrMissingField}
	}
	digits, err := NormalizeMobile(cust.Mobile, s.countryCode)
	if err != nil {
		return "", &ValidationError{Field: "mobile", Err: err}
	}
	return strings.TrimSpace(s.countryCode + " " + digits), nil
}

// Submit snapshots the cart into a pending order. The cart is cleared only
// after the order is stored; on failure it is left untouched.
func (s *Service) Submit(ctx context.Context, c *cart.Cart, cust Customer) (*models.Order, error) {
	mobile, err := s.Validate(c, cust)
	if err != nil {
		return nil, err
	}

	items := lo.Map(c.Items(), func(it cart.Item, _ int) models.OrderItem {
		return models.OrderItem{
			ProductID: it.ID,
			Name:      it.Name,
			Price:     it.Price,
			Image:     it.Image,
			Quantity:  it.Quantity,
			Category:  it.Category,
		}
	})
	order := &models.Order{
		CustomerName:    strings.TrimSpace(cust.Name),
		CustomerMobile:  mobile,
		DeliveryAddress: strings.TrimSpace(cust.Address),
		Items:           items,
		TotalAmount:     c.Total(),
		Status:          models.OrderPending,
	}

	if err := s.insert(ctx, order); err != nil {
		return nil, err
	}

	if err := c.Clear(ctx); err != nil {
		s.logger.Warn("Order stored but cart not cleared", zap.String("order_id", order.OrderID), zap.Error(err))
	}

	s.metrics.OrderSubmitted()
	events.Emit(ctx, s.publisher, s.logger, events.TypeOrderCreated, order.OrderID, events.OrderPayload{
		OrderID:     order.OrderID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		ItemCount:   len(order.Items),
	})
	s.logger.Info("Order submitted",
		zap.String("order_id", order.OrderID),
		zap.String("total", order.TotalAmount.String()),
		zap.Int("items", len(order.Items)))
	return order, nil
}

func (s *Service) insert(ctx context.Context, order *models.Order) error {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		order.ID = 0
		order.OrderID = s.newID(attempt)
		err := s.orders.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrderID) {
			return err
		}
		s.logger.Debug("Order id collision", zap.String("order_id", order.OrderID), zap.Int("attempt", attempt))
	}
	return ErrOrderIDExhausted
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return order, err
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return order, err
}

// Counts returns how many orders are in each status.
func (s *Service) Counts(ctx context.Context) (map[models.OrderStatus]int64, error) {
	return s.orders.CountByStatus(ctx)
}

// List returns redacted orders newest first and the total matching count.
func (s *Service) List(ctx context.Context, f Filter) ([]AdminOrder, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, &ValidationError{Field: "status", Err: fmt.Errorf("unknown status %q", f.Status)}
	}
	orders, total, err := s.orders.List(ctx, repository.OrderFilter{Status: f.Status, Limit: f.Limit, Offset: f.Offset})
	if err != nil {
		return nil, 0, err
	}
	return lo.Map(orders, func(o models.Order, _ int) AdminOrder { return AdminView(o) }), total, nil
}

// AdminOrder is an order as the back office sees it.
type AdminOrder struct {
	models.Order
	ContactVisible bool `json:"contact_visible"`
}

// AdminView hides customer contact details until the order is approved.
func AdminView(o models.Order) AdminOrder {
	visible := o.Status == models.OrderApproved
	if !visible {
		o.CustomerMobile = ""
		o.DeliveryAddress = ""
	}
	return AdminOrder{Order: o, ContactVisible: visible}
}

// WhatsAppLink builds the prefilled chat link sent to a customer once their
// order is approved.
func WhatsAppLink(o *models.Order) (string, error) {
	if o.Status != models.OrderApproved {
		return "", ErrNotApproved
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, o.CustomerMobile)
	text := fmt.Sprintf("Hi %s, we've approved your order #%s", o.CustomerName, o.OrderID)
	return "https://wa.me/" + digits + "?text=" + strings.ReplaceAll(url.QueryEscape(text), "+", "%20"), nil
}
