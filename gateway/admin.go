package gateway

import (
	"net/http"

	"github.com/example/giftshop/pkg/catalog"
	"github.com/example/giftshop/pkg/imaging"
	"github.com/example/giftshop/pkg/models"
	"github.com/example/giftshop/pkg/ordering"
	"github.com/example/giftshop/pkg/repository"
	"github.com/example/giftshop/pkg/session"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (g *Gateway) login(c *gin.Context) {
	var req loginRequest
	if !g.bind(c, &req) {
		return
	}
	id, err := g.deps.Sessions.Login(c.Request.Context(), c.Writer, c.Request, req.Username, req.Password)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": id.Username})
}

func (g *Gateway) logout(c *gin.Context) {
	if err := g.deps.Sessions.Logout(c.Writer, c.Request); err != nil {
		g.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (g *Gateway) adminListProducts(c *gin.Context) {
	products, err := g.deps.Catalog.List(c.Request.Context(), catalog.Filter{
		Category: models.Category(c.Query("category")),
	})
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "total": len(products)})
}

func (g *Gateway) createProduct(c *gin.Context) {
	var p models.Product
	if !g.bind(c, &p) {
		return
	}
	p.ID = 0
	if err := g.deps.Catalog.Create(c.Request.Context(), identity(c).Username, &p); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(p))
}

func (g *Gateway) updateProduct(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		g.writeError(c, err)
		return
	}
	var p models.Product
	if !g.bind(c, &p) {
		return
	}
	p.ID = id
	if err := g.deps.Catalog.Update(c.Request.Context(), identity(c).Username, &p); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(p))
}

func (g *Gateway) deleteProduct(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		g.writeError(c, err)
		return
	}
	if err := g.deps.Catalog.Delete(c.Request.Context(), identity(c).Username, id); err != nil {
		g.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (g *Gateway) createBanner(c *gin.Context) {
	var b models.Banner
	if !g.bind(c, &b) {
		return
	}
	b.ID = 0
	if err := g.deps.Catalog.CreateBanner(c.Request.Context(), identity(c).Username, &b); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (g *Gateway) updateBanner(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		g.writeError(c, err)
		return
	}
	var b models.Banner
	if !g.bind(c, &b) {
		return
	}
	b.ID = id
	if err := g.deps.Catalog.UpdateBanner(c.Request.Context(), identity(c).Username, &b); err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (g *Gateway) deleteBanner(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		g.writeError(c, err)
		return
	}
	if err := g.deps.Catalog.DeleteBanner(c.Request.Context(), identity(c).Username, id); err != nil {
		g.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type imageRequest struct {
	DataURL string `json:"data_url" binding:"required"`
}

func (g *Gateway) compressImage(c *gin.Context) {
	var req imageRequest
	if !g.bind(c, &req) {
		return
	}
	if !imaging.IsDataURL(req.DataURL) {
		g.writeError(c, imaging.ErrNotDataURL)
		return
	}
	out, err := g.deps.Images.CompressDataURL(req.DataURL)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data_url": out})
}

// listOrders also reports per-status counts for the dashboard. An order_id
// query looks up a single order by its customer-facing number.
func (g *Gateway) listOrders(c *gin.Context) {
	ctx := c.Request.Context()
	counts, err := g.deps.Orders.Counts(ctx)
	if err != nil {
		g.writeError(c, err)
		return
	}

	if orderID := c.Query("order_id"); orderID != "" {
		order, err := g.deps.Orders.GetByOrderID(ctx, orderID)
		if err != nil {
			g.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"orders": []ordering.AdminOrder{ordering.AdminView(*order)},
			"total":  1,
			"counts": counts,
		})
		return
	}

	orders, total, err := g.deps.Orders.List(ctx, ordering.Filter{
		Status: models.OrderStatus(c.Query("status")),
		Limit:  queryInt(c, "limit"),
		Offset: queryInt(c, "offset"),
	})
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": total, "counts": counts})
}

func (g *Gateway) approveOrder(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		g.writeError(c, err)
		return
	}
	result, err := g.deps.Decider.Approve(c.Request.Context(), identity(c), id)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":              ordering.AdminView(*result.Order),
		"deduction":          result.Deduction,
		"commission_percent": result.Percent,
		"balance":            result.Balance,
	})
}

func (g *Gateway) declineOrder(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		g.writeError(c, err)
		return
	}
	order, err := g.deps.Decider.Decline(c.Request.Context(), identity(c), id)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": ordering.AdminView(*order)})
}

func (g *Gateway) whatsAppLink(c *gin.Context) {
	id, err := paramID(c)
	if err != nil {
		g.writeError(c, err)
		return
	}
	order, err := g.deps.Orders.Get(c.Request.Context(), id)
	if err != nil {
		g.writeError(c, err)
		return
	}
	link, err := ordering.WhatsAppLink(order)
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": link})
}

func (g *Gateway) getWallet(c *gin.Context) {
	account, err := g.deps.Ledger.Account(c.Request.Context(), identity(c))
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"username":           account.Username,
		"balance":            account.WalletBalance,
		"commission_percent": g.deps.Ledger.CommissionPercent(account),
	})
}

func (g *Gateway) listTransactions(c *gin.Context) {
	account, err := g.deps.Ledger.Account(c.Request.Context(), identity(c))
	if err != nil {
		g.writeError(c, err)
		return
	}
	txs, err := g.deps.Ledger.History(c.Request.Context(), account.Username, queryInt(c, "limit"))
	if err != nil {
		g.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (g *Gateway) walletSocket(c *gin.Context) {
	if g.deps.Hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live updates are disabled"})
		return
	}
	account, err := g.deps.Ledger.Account(c.Request.Context(), identity(c))
	if err != nil {
		g.writeError(c, err)
		return
	}
	g.deps.Hub.Serve(c.Writer, c.Request, session.Identity{Username: account.Username})
}

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

func (g *Gateway) listAudit(c *gin.Context) {
	limit := queryInt(c, "limit")
	if limit == 0 || limit > maxAuditLimit {
		limit = defaultAuditLimit
	}
	entries, err := g.deps.Auditor.GetAuditLogs(c.Request.Context(), repository.AuditQuery{
		EntityID: c.Query("entity_id"),
		Actor:    c.Query("actor"),
		Limit:    int64(limit),
	})
	if err != nil {
		g.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []*repository.AuditLog{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
