package repository

import (
	"context"
	"fmt"

	"github.com/example/giftshop/pkg/models"
	"gorm.io/gorm"
)

type ProductFilter struct {
	Category models.Category
	Limit    int
}

type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListProducts returns products newest first.
func (r *CatalogRepository) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	query := conn(ctx, r.db).Model(&models.Product{})
	if f.Category != "" {
		query = query.Where("category = ?", f.Category)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var products []models.Product
	if err := query.Order("created_at DESC").Order("id DESC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

func (r *CatalogRepository) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := conn(ctx, r.db).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, p *models.Product) error {
	if err := conn(ctx, r.db).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// UpdateProduct overwrites every editable column of an existing product.
func (r *CatalogRepository) UpdateProduct(ctx context.Context, p *models.Product) error {
	result := conn(ctx, r.db).Model(&models.Product{}).Where("id = ?", p.ID).
		Select("name", "description", "price", "offer_percent", "category", "image",
			"is_bulk_available", "material", "size", "weight", "delivery_info", "bulk_info", "updated_at").
		Updates(p)
	if result.Error != nil {
		return fmt.Errorf("failed to update product: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CatalogRepository) DeleteProduct(ctx context.Context, id uint) error {
	result := conn(ctx, r.db).Delete(&models.Product{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete product: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBanners returns banners by ascending rank, ties by insertion order.
func (r *CatalogRepository) ListBanners(ctx context.Context) ([]models.Banner, error) {
	var banners []models.Banner
	if err := conn(ctx, r.db).Order("order_rank ASC").Order("id ASC").Find(&banners).Error; err != nil {
		return nil, fmt.Errorf("failed to list banners: %w", err)
	}
	return banners, nil
}

func (r *CatalogRepository) GetBanner(ctx context.Context, id uint) (*models.Banner, error) {
	var banner models.Banner
	if err := conn(ctx, r.db).Where("id = ?", id).First(&banner).Error; err != nil {
		return nil, notFound(err)
	}
	return &banner, nil
}

func (r *CatalogRepository) CreateBanner(ctx context.Context, b *models.Banner) error {
	if err := conn(ctx, r.db).Create(b).Error; err != nil {
		return fmt.Errorf("failed to create banner: %w", err)
	}
	return nil
}

func (r *CatalogRepository) UpdateBanner(ctx context.Context, b *models.Banner) error {
	result := conn(ctx, r.db).Model(&models.Banner{}).Where("id = ?", b.ID).
		Select("tag", "title", "highlight", "suffix", "description", "image_url", "link", "order_rank", "updated_at").
		Updates(b)
	if result.Error != nil {
		return fmt.Errorf("failed to update banner: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CatalogRepository) DeleteBanner(ctx context.Context, id uint) error {
	result := conn(ctx, r.db).Delete(&models.Banner{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete banner: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
