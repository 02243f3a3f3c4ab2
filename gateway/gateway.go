package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/giftshop/pkg/approval"
	"github.com/example/giftshop/pkg/cart"
	"github.com/example/giftshop/pkg/catalog"
	"github.com/example/giftshop/pkg/config"
	"github.com/example/giftshop/pkg/imaging"
	"github.com/example/giftshop/pkg/metrics"
	"github.com/example/giftshop/pkg/notify"
	"github.com/example/giftshop/pkg/ordering"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/session"
	"github.com/example/giftshop/pkg/wallet"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

const identityKey = "identity"

// Deps are the services the gateway routes to. Hub, Metrics and Auditor
// may be nil.
type Deps struct {
	Catalog  *catalog.Service
	Orders   *ordering.Service
	Decider  approval.Decider
	Ledger   *wallet.Ledger
	Sessions *session.Manager
	Carts    cart.Storage
	Images   *imaging.Compressor
	Hub      *notify.Hub
	Metrics  *metrics.Metrics
	Auditor  repository.Auditor
}

type Gateway struct {
	config *config.Config
	deps   Deps
	logger *zap.Logger
	router *gin.Engine
	server *http.Server
}

func NewGateway(cfg *config.Config, deps Deps, logger *zap.Logger) *Gateway {
	if deps.Auditor == nil {
		deps.Auditor = repository.NoopAuditor{}
	}
	if cfg.Gateway.Mode != "" {
		gin.SetMode(cfg.Gateway.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger, deps.Metrics))
	if cfg.Gateway.MaxBodyBytes > 0 {
		router.Use(limitBody(cfg.Gateway.MaxBodyBytes))
	}

	g := &Gateway{
		config: cfg,
		deps:   deps,
		logger: logger,
		router: router,
	}
	g.server = &http.Server{
		Addr:              g.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if g.deps.Metrics != nil {
		g.router.GET("/metrics", gin.WrapH(g.deps.Metrics.Handler()))
	}

	v1 := g.router.Group("/api/v1")
	{
		v1.GET("/products", g.listProducts)
		v1.GET("/products/:id", g.getProduct)
		v1.GET("/banners", g.listBanners)

		carts := v1.Group("/cart")
		{
			carts.GET("", g.getCart)
			carts.DELETE("", g.clearCart)
			carts.POST("/items", g.addCartItem)
			carts.PATCH("/items/:id", g.updateCartItem)
			carts.DELETE("/items/:id", g.removeCartItem)
		}
		v1.POST("/checkout", g.checkout)

		v1.POST("/admin/login", g.login)
		v1.POST("/admin/logout", g.logout)

		admin := v1.Group("/admin", g.requireAdmin)
		{
			admin.GET("/products", g.adminListProducts)
			admin.POST("/products", g.createProduct)
			admin.PUT("/products/:id", g.updateProduct)
			admin.DELETE("/products/:id", g.deleteProduct)

			admin.GET("/banners", g.listBanners)
			admin.POST("/banners", g.createBanner)
			admin.PUT("/banners/:id", g.updateBanner)
			admin.DELETE("/banners/:id", g.deleteBanner)

			admin.POST("/images", g.compressImage)

			admin.GET("/orders", g.listOrders)
			admin.POST("/orders/:id/approve", g.approveOrder)
			admin.POST("/orders/:id/decline", g.declineOrder)
			admin.GET("/orders/:id/whatsapp", g.whatsAppLink)

			admin.GET("/wallet", g.getWallet)
			admin.GET("/wallet/transactions", g.listTransactions)
			admin.GET("/wallet/ws", g.walletSocket)

			admin.GET("/audit", g.listAudit)
		}
	}

	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Addr() string {
	return fmt.Sprintf("%s:%d", g.config.Gateway.Host, g.config.Gateway.Port)
}

func (g *Gateway) Start() error {
	g.logger.Info("Gateway starting", zap.String("address", g.Addr()))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// requireAdmin resolves the session once and carries the identity in both
// the gin context and the request context.
func (g *Gateway) requireAdmin(c *gin.Context) {
	id, err := g.deps.Sessions.Resolve(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": session.ErrUnauthenticated.Error()})
		return
	}
	c.Set(identityKey, id)
	c.Request = c.Request.WithContext(session.WithIdentity(c.Request.Context(), id))
	c.Next()
}

func identity(c *gin.Context) session.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(session.Identity); ok {
			return id
		}
	}
	return session.Identity{}
}

func loggerMiddleware(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, route, c.Writer.Status(), latency)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
		)
	}
}
