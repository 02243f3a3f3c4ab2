package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "pending"
	OrderApproved OrderStatus = "approved"
	OrderDeclined OrderStatus = "declined"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderApproved, OrderDeclined:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderApproved || s == OrderDeclined
}

type Order struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OrderID         string          `gorm:"column:order_id;type:varchar(32);uniqueIndex;not null" json:"order_id"`
	CustomerName    string          `gorm:"type:varchar(120);not null" json:"customer_name"`
	CustomerMobile  string          `gorm:"type:varchar(32);not null" json:"customer_mobile"`
	DeliveryAddress string          `gorm:"type:text;not null" json:"delivery_address"`
	Items           []OrderItem     `gorm:"serializer:json" json:"items"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Status          OrderStatus     `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem is the copy of a cart line taken at checkout.
type OrderItem struct {
	ProductID string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	Category  string          `json:"category,omitempty"`
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
