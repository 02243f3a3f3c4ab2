// Package catalog manages the products and banners shown on the storefront.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/giftshop/pkg/imaging"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/repository"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

var (
	ErrNotFound       = errors.New("catalog entry not found")
	ErrInvalidProduct = errors.New("invalid product")
	ErrInvalidBanner  = errors.New("invalid banner")
)

// HomeLimit is how many products the landing page shows.
const HomeLimit = 4

type ProductCache interface {
	CacheProduct(ctx context.Context, p *models.Product) error
	GetProductCache(ctx context.Context, id uint) (*models.Product, error)
	InvalidateProduct(ctx context.Context, id uint) error
}

type ImageCompressor interface {
	CompressDataURL(s string) (string, error)
}

type Filter struct {
	Category models.Category
	Limit    int
}

type Service struct {
	repo    *repository.CatalogRepository
	cache   ProductCache
	images  ImageCompressor
	auditor repository.Auditor
	logger  *zap.Logger
}

// NewService wires the catalog. cache and images may be nil.
func NewService(repo *repository.CatalogRepository, cache ProductCache, images ImageCompressor, auditor repository.Auditor, logger *zap.Logger) *Service {
	if auditor == nil {
		auditor = repository.NoopAuditor{}
	}
	return &Service{repo: repo, cache: cache, images: images, auditor: auditor, logger: logger}
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.Product, error) {
	if f.Category != "" && !f.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidProduct, f.Category)
	}
	return s.repo.ListProducts(ctx, repository.ProductFilter{Category: f.Category, Limit: f.Limit})
}

// Get reads a product through the cache.
func (s *Service) Get(ctx context.Context, id uint) (*models.Product, error) {
	if s.cache != nil {
		cached, err := s.cache.GetProductCache(ctx, id)
		if err != nil {
			s.logger.Warn("Product cache read failed", zap.Uint("product_id", id), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, translate(err)
	}

	if s.cache != nil {
		if err := s.cache.CacheProduct(ctx, p); err != nil {
			s.logger.Warn("Product cache write failed", zap.Uint("product_id", id), zap.Error(err))
		}
	}
	return p, nil
}

func (s *Service) Create(ctx context.Context, actor string, p *models.Product) error {
	if err := s.prepareProduct(p); err != nil {
		return err
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return err
	}
	s.audit(ctx, actor, "product.created", productEntity(p.ID), bson.M{"name": p.Name, "price": p.Price.String()})
	return nil
}

func (s *Service) Update(ctx context.Context, actor string, p *models.Product) error {
	if err := s.prepareProduct(p); err != nil {
		return err
	}
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return translate(err)
	}
	s.invalidate(ctx, p.ID)
	s.audit(ctx, actor, "product.updated", productEntity(p.ID), bson.M{"name": p.Name, "price": p.Price.String()})
	return nil
}

func (s *Service) Delete(ctx context.Context, actor string, id uint) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return translate(err)
	}
	s.invalidate(ctx, id)
	s.audit(ctx, actor, "product.deleted", productEntity(id), nil)
	return nil
}

func (s *Service) ListBanners(ctx context.Context) ([]models.Banner, error) {
	return s.repo.ListBanners(ctx)
}

func (s *Service) GetBanner(ctx context.Context, id uint) (*models.Banner, error) {
	b, err := s.repo.GetBanner(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return b, nil
}

func (s *Service) CreateBanner(ctx context.Context, actor string, b *models.Banner) error {
	if err := s.prepareBanner(b); err != nil {
		return err
	}
	if err := s.repo.CreateBanner(ctx, b); err != nil {
		return err
	}
	s.audit(ctx, actor, "banner.created", bannerEntity(b.ID), bson.M{"title": b.Title})
	return nil
}

func (s *Service) UpdateBanner(ctx context.Context, actor string, b *models.Banner) error {
	if err := s.prepareBanner(b); err != nil {
		return err
	}
	if err := s.repo.UpdateBanner(ctx, b); err != nil {
		return translate(err)
	}
	s.audit(ctx, actor, "banner.updated", bannerEntity(b.ID), bson.M{"title": b.Title})
	return nil
}

func (s *Service) DeleteBanner(ctx context.Context, actor string, id uint) error {
	if err := s.repo.DeleteBanner(ctx, id); err != nil {
		return translate(err)
	}
	s.audit(ctx, actor, "banner.deleted", bannerEntity(id), nil)
	return nil
}

// ValidateProduct checks the fields an admin form submits. An offer above
// 100 percent passes; callers decide whether to warn.
func ValidateProduct(p *models.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidProduct)
	}
	if p.OfferPercent < 0 {
		return fmt.Errorf("%w: offer percent must be non-negative", ErrInvalidProduct)
	}
	if !p.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidProduct, p.Category)
	}
	return nil
}

// OriginalPrice is the pre-discount price shown struck through next to an
// offer, rounded to whole units. It reports false when there is no offer
// or the offer leaves nothing to divide by.
func OriginalPrice(price decimal.Decimal, offerPercent int) (decimal.Decimal, bool) {
	if offerPercent <= 0 || offerPercent >= 100 {
		return decimal.Zero, false
	}
	remaining := decimal.NewFromInt(int64(100 - offerPercent)).Div(decimal.NewFromInt(100))
	return price.Div(remaining).Round(0), true
}

func (s *Service) prepareProduct(p *models.Product) error {
	p.Name = strings.TrimSpace(p.Name)
	if err := ValidateProduct(p); err != nil {
		return err
	}
	if p.OfferPercent > 100 {
		s.logger.Warn("Offer percent above 100 accepted",
			zap.String("product", p.Name), zap.Int("offer_percent", p.OfferPercent))
	}
	image, err := s.compress(p.Image)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProduct, err)
	}
	p.Image = image
	return nil
}

func (s *Service) prepareBanner(b *models.Banner) error {
	b.Title = strings.TrimSpace(b.Title)
	if b.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidBanner)
	}
	image, err := s.compress(b.ImageURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBanner, err)
	}
	b.ImageURL = image
	return nil
}

func (s *Service) compress(image string) (string, error) {
	if s.images == nil || !imaging.IsDataURL(image) {
		return image, nil
	}
	return s.images.CompressDataURL(image)
}

func (s *Service) invalidate(ctx context.Context, id uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateProduct(ctx, id); err != nil {
		s.logger.Warn("Product cache invalidation failed", zap.Uint("product_id", id), zap.Error(err))
	}
}

func (s *Service) audit(ctx context.Context, actor, action, entity string, data bson.M) {
	if err := s.auditor.CreateAuditLog(ctx, &repository.AuditLog{
		Service:  "catalog",
		Action:   action,
		EntityID: entity,
		Actor:    actor,
		Data:     data,
	}); err != nil {
		s.logger.Warn("Failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func productEntity(id uint) string {
	return "product:" + strconv.FormatUint(uint64(id), 10)
}

func bannerEntity(id uint) string {
	return "banner:" + strconv.FormatUint(uint64(id), 10)
}

func translate(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
