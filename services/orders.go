package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"papichulo-api/apperror"
	"papichulo-api/auth"
	"papichulo-api/geo"
	"papichulo-api/models"
	"papichulo-api/statemachine"

	"gorm.io/gorm"
)

const (
	EventOrderNew    = "order:new"
	EventOrderUpdate = "order:update"
)

// OrderEvent is the lifecycle notification pushed to realtime observers.
type OrderEvent struct {
	Type  string        `json:"type"`
	Order *models.Order `json:"order"`
}

// Broadcaster fans an event out to live observers and reports how many got it.
type Broadcaster interface {
	Broadcast(event any) int
}

// Geocoder resolves an address when the client sent no coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geo.Point, error)
}

type OrderItemInput struct {
	Name     string
	Price    float64
	Quantity int
}

type CreateOrderInput struct {
	CustomerName  string
	Phone         string
	Address       string
	PaymentMethod string
	Latitude      *float64
	Longitude     *float64
	Items         []OrderItemInput
}

// DeliveryZoneDetails is attached to OUTSIDE_DELIVERY_ZONE.
type DeliveryZoneDetails struct {
	DistanceKm float64 `json:"distanceKm"`
	RadiusKm   float64 `json:"radiusKm"`
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(any) int { return 0 }

// OrderService admits orders inside the delivery zone and drives their status.
type OrderService struct {
	db       *gorm.DB
	delivery *DeliveryService
	events   Broadcaster
	geocoder Geocoder
	strict   bool
	logger   *slog.Logger
}

type OrderOption func(*OrderService)

// WithGeocoder enables address geocoding for orders without coordinates.
func WithGeocoder(g Geocoder) OrderOption {
	return func(s *OrderService) { s.geocoder = g }
}

// WithStrictTransitions makes status updates follow the statemachine table.
func WithStrictTransitions(strict bool) OrderOption {
	return func(s *OrderService) { s.strict = strict }
}

func NewOrderService(db *gorm.DB, delivery *DeliveryService, events Broadcaster, logger *slog.Logger, opts ...OrderOption) *OrderService {
	if events == nil {
		events = noopBroadcaster{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &OrderService{db: db, delivery: delivery, events: events, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StrictTransitions reports whether the lifecycle table is enforced.
func (s *OrderService) StrictTransitions() bool {
	return s.strict
}

// Create admits a new order. owner may be nil; it only sets the owning user.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput, owner *auth.Principal) (*models.Order, error) {
	point, err := s.resolvePoint(ctx, in)
	if err != nil {
		return nil, err
	}

	cfg, err := s.delivery.Get(ctx)
	if err != nil {
		return nil, err
	}
	store := geo.Point{Lat: cfg.StoreLatitude, Lng: cfg.StoreLongitude}
	distance := geo.DistanceKm(store, point)
	if distance > cfg.RadiusKm {
		return nil, apperror.New(http.StatusBadRequest, apperror.CodeOutsideDeliveryZone, "Address is outside the delivery zone").
			WithDetails(DeliveryZoneDetails{DistanceKm: geo.Round2(distance), RadiusKm: cfg.RadiusKm})
	}

	order := models.Order{
		CustomerName:  strings.TrimSpace(in.CustomerName),
		Phone:         strings.TrimSpace(in.Phone),
		Address:       strings.TrimSpace(in.Address),
		Latitude:      point.Lat,
		Longitude:     point.Lng,
		PaymentMethod: strings.TrimSpace(in.PaymentMethod),
		Status:        models.StatusNew,
	}
	var total float64
	for _, it := range in.Items {
		order.Items = append(order.Items, models.OrderItem{
			Name:     strings.TrimSpace(it.Name),
			Price:    it.Price,
			Quantity: it.Quantity,
		})
		total += it.Price * float64(it.Quantity)
	}
	order.TotalAmount = geo.Round2(total)

	changedBy := "guest"
	if owner != nil && owner.UserID != "" {
		uid := owner.UserID
		order.UserID = &uid
		changedBy = uid
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		return tx.Create(&models.OrderStatusHistory{
			OrderID:   order.ID,
			ToStatus:  models.StatusNew,
			ChangedBy: changedBy,
			Note:      "Order placed",
		}).Error
	})
	if err != nil {
		return nil, apperror.DBUnavailable(err)
	}

	delivered := s.events.Broadcast(OrderEvent{Type: EventOrderNew, Order: &order})
	s.logger.InfoContext(ctx, "order created",
		"order_id", order.ID, "distance_km", geo.Round2(distance), "observers", delivered)
	return &order, nil
}

// UpdateStatus overwrites an order's status. Only admins may call it.
func (s *OrderService) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, actor *auth.Principal) (*models.StatusUpdate, error) {
	if !actor.IsAdmin() {
		return nil, apperror.Forbidden("Insufficient role permissions")
	}
	if !status.Valid() {
		return nil, invalidStatus(status)
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, "id = ?", id).Error; err != nil {
			return err
		}
		prev := order.Status
		if s.strict {
			if err := statemachine.CanTransition(prev, status); err != nil {
				return apperror.Validation(err.Error()).WithDetails(map[string]interface{}{
					"currentStatus":   prev,
					"requestedStatus": status,
					"validNextStates": statemachine.ValidTransitionsFrom(prev),
				})
			}
		}
		if err := tx.Model(&order).Update("status", status).Error; err != nil {
			return err
		}
		return tx.Create(&models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: prev,
			ToStatus:   status,
			ChangedBy:  changedByOf(actor),
			Note:       "Status updated by " + actor.Method,
		}).Error
	})
	if err != nil {
		return nil, orderError(err)
	}

	if err := s.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		return nil, apperror.DBUnavailable(err)
	}

	delivered := s.events.Broadcast(OrderEvent{Type: EventOrderUpdate, Order: &order})
	s.logger.InfoContext(ctx, "order status updated",
		"order_id", order.ID, "status", order.Status, "observers", delivered)
	return &models.StatusUpdate{ID: order.ID, Status: order.Status, CreatedAt: order.CreatedAt}, nil
}

// Get returns an order to an admin or to its owner.
func (s *OrderService) Get(ctx context.Context, id string, p *auth.Principal) (*models.Order, error) {
	if p == nil {
		return nil, apperror.Unauthorized("Missing auth token")
	}
	order, err := s.load(ctx, s.db.WithContext(ctx).Where("id = ?", id))
	if err != nil {
		return nil, err
	}
	if p.IsAdmin() {
		return order, nil
	}
	if order.UserID == nil || p.UserID == "" || *order.UserID != p.UserID {
		return nil, apperror.Forbidden("You do not have access to this order")
	}
	return order, nil
}

// List returns all orders newest first, optionally filtered by status.
func (s *OrderService) List(ctx context.Context, status string) ([]models.Order, error) {
	query := s.db.WithContext(ctx)
	if status != "" {
		st := models.OrderStatus(status)
		if !st.Valid() {
			return nil, invalidStatus(st)
		}
		query = query.Where("status = ?", st)
	}
	return s.find(query)
}

// ListForUser returns the caller's own orders newest first.
func (s *OrderService) ListForUser(ctx context.Context, userID string) ([]models.Order, error) {
	return s.find(s.db.WithContext(ctx).Where("user_id = ?", userID))
}

// GetForUser returns one of the caller's orders. Orders owned by others are
// reported as missing.
func (s *OrderService) GetForUser(ctx context.Context, userID, id string) (*models.Order, error) {
	return s.load(ctx, s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID))
}

func (s *OrderService) resolvePoint(ctx context.Context, in CreateOrderInput) (geo.Point, error) {
	if in.Latitude != nil && in.Longitude != nil {
		return geo.Point{Lat: *in.Latitude, Lng: *in.Longitude}, nil
	}
	if s.geocoder == nil {
		return geo.Point{}, apperror.Validation("Invalid request payload").WithDetails([]apperror.FieldIssue{
			{Field: "latitude", Rule: "required", Message: "is required"},
			{Field: "longitude", Rule: "required", Message: "is required"},
		})
	}
	point, err := s.geocoder.Geocode(ctx, in.Address)
	if err != nil {
		s.logger.WarnContext(ctx, "geocoding failed", "error", err)
		return geo.Point{}, apperror.Validation("Could not locate the delivery address")
	}
	return point, nil
}

func (s *OrderService) load(ctx context.Context, query *gorm.DB) (*models.Order, error) {
	var order models.Order
	if err := query.Preload("Items").First(&order).Error; err != nil {
		return nil, orderError(err)
	}
	return &order, nil
}

func (s *OrderService) find(query *gorm.DB) ([]models.Order, error) {
	orders := []models.Order{}
	if err := query.Preload("Items").Order("created_at desc").Find(&orders).Error; err != nil {
		return nil, apperror.DBUnavailable(err)
	}
	return orders, nil
}

func invalidStatus(status models.OrderStatus) *apperror.Error {
	allowed := make([]string, len(models.OrderStatuses))
	for i, st := range models.OrderStatuses {
		allowed[i] = string(st)
	}
	return apperror.Validation("Invalid order status").WithDetails([]apperror.FieldIssue{{
		Field:   "status",
		Rule:    "oneof",
		Message: "must be one of: " + strings.Join(allowed, " "),
	}})
}

func orderError(err error) error {
	if appErr, ok := apperror.As(err); ok {
		return appErr
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("Order not found")
	}
	return apperror.DBUnavailable(err)
}

func changedByOf(p *auth.Principal) string {
	if p.UserID != "" {
		return p.UserID
	}
	return p.Method
}
