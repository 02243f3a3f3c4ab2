package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/example/giftshop/pkg/cart"
	"github.com/example/giftshop/pkg/catalog"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/ordering"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	cartCookie = "cart_id"
	cartMaxAge = 30 * 24 * 60 * 60
)

type productView struct {
	models.Product
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
}

func viewOf(p models.Product) productView {
	v := productView{Product: p}
	if original, ok := catalog.OriginalPrice(p.Price, p.OfferPercent); ok {
		v.OriginalPrice = &original
	}
	return v
}

func (g *Gateway) listProducts(c *gin.Context) {
	products, err := g.deps.Catalog.List(c.Request.Context(), catalog.Filter{
		Category: models.Category(c.Query("category")),
		Limit:    queryInt(c, "limit"),
	})
	if err != nil {
		g.writeError(c, err)
		return
	}
	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, viewOf(p))
	}
	c.JSON(http.StatusOK, gin.H{"products": views})
}

// getProduct sends the shopper back to the listing when the product is gone.
func (g *Gateway) getProduct(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/api/v1/products")
		return
	}
	p, err := g.deps.Catalog.Get(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.Redirect(http.StatusSeeOther, "/api/v1/products")
		return
	}
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(*p))
}

func (g *Gateway) listBanners(c *gin.Context) {
	banners, err := g.deps.Catalog.ListBanners(c.Request.Context())
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"banners": banners})
}

// cart loads the shopper's cart, issuing a cart_id cookie on first use.
func (g *Gateway) cart(c *gin.Context) *cart.Cart {
	id, err := c.Cookie(cartCookie)
	if err != nil || id == "" {
		id = uuid.NewString()
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cartCookie, id, cartMaxAge, "/", "", g.config.Session.Secure, true)
	return cart.New(c.Request.Context(), g.deps.Carts, id, g.logger)
}

func cartJSON(ct *cart.Cart) gin.H {
	return gin.H{
		"id":    ct.ID(),
		"items": ct.Items(),
		"count": ct.Count(),
		"total": ct.Total(),
	}
}

func (g *Gateway) getCart(c *gin.Context) {
	c.JSON(http.StatusOK, cartJSON(g.cart(c)))
}

type addItemRequest struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity"`
}

// addCartItem snapshots the product's current name and price into the cart.
func (g *Gateway) addCartItem(c *gin.Context) {
	var req addItemRequest
	if !g.bind(c, &req) {
		return
	}
	p, err := g.deps.Catalog.Get(c.Request.Context(), req.ProductID)
	if err != nil {
		g.writeError(c, err)
		return
	}

	ct := g.cart(c)
	if err := ct.AddItem(c.Request.Context(), cart.Item{
		ID:       strconv.FormatUint(uint64(p.ID), 10),
		Name:     p.Name,
		Price:    p.Price,
		Image:    p.Image,
		Quantity: req.Quantity,
		Category: string(p.Category),
	}); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartJSON(ct))
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (g *Gateway) updateCartItem(c *gin.Context) {
	var req updateItemRequest
	if !g.bind(c, &req) {
		return
	}
	ct := g.cart(c)
	if err := ct.UpdateQuantity(c.Request.Context(), c.Param("id"), *req.Quantity); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartJSON(ct))
}

func (g *Gateway) removeCartItem(c *gin.Context) {
	ct := g.cart(c)
	if err := ct.RemoveItem(c.Request.Context(), c.Param("id")); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartJSON(ct))
}

func (g *Gateway) clearCart(c *gin.Context) {
	ct := g.cart(c)
	if err := ct.Clear(c.Request.Context()); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartJSON(ct))
}

func (g *Gateway) checkout(c *gin.Context) {
	var cust ordering.Customer
	if !g.bind(c, &cust) {
		return
	}
	order, err := g.deps.Orders.Submit(c.Request.Context(), g.cart(c), cust)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"order_id":     order.OrderID,
		"status":       order.Status,
		"total_amount": order.TotalAmount,
	})
}
