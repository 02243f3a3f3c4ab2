package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryWedding      Category = "Wedding"
	CategoryBabyShower   Category = "Baby Shower"
	CategoryHousewarming Category = "Housewarming"
	CategoryFestivals    Category = "Festivals"
	CategoryDecor        Category = "Decor"
	CategoryEcoFriendly  Category = "Eco-Friendly"
)

var Categories = []Category{
	CategoryWedding,
	CategoryBabyShower,
	CategoryHousewarming,
	CategoryFestivals,
	CategoryDecor,
	CategoryEcoFriendly,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Product struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Name            string          `gorm:"type:varchar(200);not null" json:"name"`
	Description     string          `gorm:"type:text" json:"description"`
	Price           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	OfferPercent    int             `gorm:"not null;default:0" json:"offer_percent"`
	Category        Category        `gorm:"type:varchar(32);index;not null" json:"category"`
	Image           string          `json:"image"`
	IsBulkAvailable bool            `gorm:"not null;default:false" json:"is_bulk_available"`
	Material        string          `gorm:"type:varchar(200)" json:"material"`
	Size            string          `gorm:"type:varchar(200)" json:"size"`
	Weight          string          `gorm:"type:varchar(100)" json:"weight"`
	DeliveryInfo    string          `gorm:"type:text" json:"delivery_info"`
	BulkInfo        string          `gorm:"type:text" json:"bulk_info"`
	CreatedAt       time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

type Banner struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Tag         string    `gorm:"type:varchar(100)" json:"tag"`
	Title       string    `gorm:"type:varchar(200);not null" json:"title"`
	Highlight   string    `gorm:"type:varchar(200)" json:"highlight"`
	Suffix      string    `gorm:"type:varchar(200)" json:"suffix"`
	Description string    `gorm:"type:text" json:"description"`
	ImageURL    string    `json:"image_url"`
	Link        string    `gorm:"type:varchar(512)" json:"link"`
	OrderRank   int       `gorm:"index;not null;default:0" json:"order_rank"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Banner) TableName() string {
	return "banners"
}
