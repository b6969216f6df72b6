package handlers

import (
	"net/http"
	"strconv"

	"papichulo-api/apperror"
	"papichulo-api/middleware"
	"papichulo-api/models"
	"papichulo-api/services"

	"github.com/gin-gonic/gin"
)

type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required,oneof=new accepted preparing out_for_delivery delivered cancelled"`
}

type MenuItemRequest struct {
	Name        string   `json:"name" binding:"required,max=120"`
	Category    string   `json:"category" binding:"required,max=60"`
	Type        string   `json:"type" binding:"max=30"`
	Ingredients []string `json:"ingredients" binding:"omitempty,dive,max=60"`
	ImageURL    string   `json:"imageUrl" binding:"omitempty,url"`
	Price       float64  `json:"price" binding:"gte=0"`
	Rating      float64  `json:"rating" binding:"gte=0,lte=5"`
	Available   *bool    `json:"available"`
}

func (r MenuItemRequest) input() services.MenuItemInput {
	return services.MenuItemInput{
		Name:        r.Name,
		Category:    r.Category,
		Type:        r.Type,
		Ingredients: r.Ingredients,
		ImageURL:    r.ImageURL,
		Price:       r.Price,
		Rating:      r.Rating,
		Available:   r.Available,
	}
}

type DeliveryConfigRequest struct {
	StoreLatitude  *float64 `json:"storeLatitude" binding:"required,gte=-90,lte=90"`
	StoreLongitude *float64 `json:"storeLongitude" binding:"required,gte=-180,lte=180"`
	RadiusKm       *float64 `json:"radiusKm" binding:"required,gt=0,lte=100"`
}

// ListOrders returns every order newest first, optionally filtered by ?status=
func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.orders.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// UpdateOrderStatus overwrites an order's status
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	p, _ := middleware.CurrentPrincipal(c)
	upd, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, upd)
}

// AddMenuItem adds an item to the catalog
func (h *Handler) AddMenuItem(c *gin.Context) {
	var req MenuItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.menu.Create(c.Request.Context(), req.input())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateMenuItem replaces a catalog item
func (h *Handler) UpdateMenuItem(c *gin.Context) {
	id, ok := menuItemID(c)
	if !ok {
		return
	}
	var req MenuItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.menu.Update(c.Request.Context(), id, req.input())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteMenuItem removes a catalog item
func (h *Handler) DeleteMenuItem(c *gin.Context) {
	id, ok := menuItemID(c)
	if !ok {
		return
	}
	if err := h.menu.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// UpdateDeliveryConfig moves the store or changes the radius
func (h *Handler) UpdateDeliveryConfig(c *gin.Context) {
	var req DeliveryConfigRequest
	if !bindJSON(c, &req) {
		return
	}
	cfg, err := h.delivery.Update(c.Request.Context(), services.DeliveryConfigInput{
		StoreLatitude:  *req.StoreLatitude,
		StoreLongitude: *req.StoreLongitude,
		RadiusKm:       *req.RadiusKm,
	})
	if err != nil {
		fail(c, err)
		return
	}
	h.logger.InfoContext(c.Request.Context(), "delivery config updated", "radius_km", cfg.RadiusKm)
	c.JSON(http.StatusOK, cfg)
}

func menuItemID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, apperror.Validation("Invalid menu item id"))
		return 0, false
	}
	return uint(id), true
}
