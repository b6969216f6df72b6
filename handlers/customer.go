package handlers

import (
	"net/http"

	"papichulo-api/apperror"
	"papichulo-api/middleware"
	"papichulo-api/services"

	"github.com/gin-gonic/gin"
)

type OrderItemRequest struct {
	Name     string  `json:"name" binding:"required,max=120"`
	Price    float64 `json:"price" binding:"gte=0"`
	Quantity int     `json:"quantity" binding:"required,gte=1,lte=100"`
}

type PlaceOrderRequest struct {
	CustomerName  string             `json:"customerName" binding:"required,max=100"`
	Phone         string             `json:"phone" binding:"required,max=20"`
	Address       string             `json:"address" binding:"required,max=500"`
	PaymentMethod string             `json:"paymentMethod" binding:"required,max=40"`
	Latitude      *float64           `json:"latitude" binding:"omitempty,gte=-90,lte=90"`
	Longitude     *float64           `json:"longitude" binding:"omitempty,gte=-180,lte=180"`
	Items         []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// PlaceOrder admits an order inside the delivery zone. A bearer token is
// optional and only links the order to the caller.
func (h *Handler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	in := services.CreateOrderInput{
		CustomerName:  req.CustomerName,
		Phone:         req.Phone,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, services.OrderItemInput{Name: it.Name, Price: it.Price, Quantity: it.Quantity})
	}

	owner, _ := middleware.CurrentPrincipal(c)
	order, err := h.orders.Create(c.Request.Context(), in, owner)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

// GetOrder returns one order to an admin or its owner
func (h *Handler) GetOrder(c *gin.Context) {
	p, _ := middleware.CurrentPrincipal(c)
	order, err := h.orders.Get(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// GetMyOrders lists the caller's orders, newest first
func (h *Handler) GetMyOrders(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		fail(c, apperror.Unauthorized("Missing auth token"))
		return
	}
	orders, err := h.orders.ListForUser(c.Request.Context(), p.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// GetMyOrder returns one of the caller's orders
func (h *Handler) GetMyOrder(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		fail(c, apperror.Unauthorized("Missing auth token"))
		return
	}
	order, err := h.orders.GetForUser(c.Request.Context(), p.UserID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
