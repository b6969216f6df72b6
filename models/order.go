package models

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// OrderStatus represents all possible states of a delivery order
type OrderStatus string

const (
	StatusNew            OrderStatus = "new"
	StatusAccepted       OrderStatus = "accepted"
	StatusPreparing      OrderStatus = "preparing"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// OrderStatuses lists every valid status in lifecycle order.
var OrderStatuses = []OrderStatus{
	StatusNew,
	StatusAccepted,
	StatusPreparing,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Order is also the public projection: fields without a JSON name are never exposed.
type Order struct {
	ID            string               `json:"id" gorm:"primaryKey;size:24"`
	CustomerName  string               `json:"customerName" gorm:"not null"`
	Phone         string               `json:"phone" gorm:"not null"`
	Address       string               `json:"address" gorm:"not null"`
	Latitude      float64              `json:"latitude"`
	Longitude     float64              `json:"longitude"`
	PaymentMethod string               `json:"paymentMethod" gorm:"not null"`
	Items         []OrderItem          `json:"items" gorm:"foreignKey:OrderID"`
	TotalAmount   float64              `json:"totalAmount"`
	Status        OrderStatus          `json:"status" gorm:"not null;default:'new';index"`
	UserID        *string              `json:"userId,omitempty" gorm:"index;size:36"`
	StatusHistory []OrderStatusHistory `json:"-" gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time            `json:"createdAt" gorm:"index"`
	UpdatedAt     time.Time            `json:"-"`
}

// BeforeCreate assigns an ORD-prefixed id when none was set.
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID != "" {
		return nil
	}
	id, err := NewOrderID(time.Now())
	if err != nil {
		return err
	}
	o.ID = id
	return nil
}

// NewOrderID builds "ORD" + last 8 digits of the millisecond clock + 4 random digits.
func NewOrderID(now time.Time) (string, error) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ts) > 8 {
		ts = ts[len(ts)-8:]
	}
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD%s%d", ts, 1000+n.Int64()), nil
}

type OrderItem struct {
	ID       uint    `json:"-" gorm:"primaryKey"`
	OrderID  string  `json:"-" gorm:"index;not null;size:24"`
	Name     string  `json:"name" gorm:"not null"`
	Price    float64 `json:"price" gorm:"not null"` // unit price snapshot
	Quantity int     `json:"quantity" gorm:"not null"`
}

// OrderStatusHistory tracks every status change
type OrderStatusHistory struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	OrderID    string      `json:"orderId" gorm:"index;not null;size:24"`
	FromStatus OrderStatus `json:"fromStatus"`
	ToStatus   OrderStatus `json:"toStatus" gorm:"not null"`
	ChangedBy  string      `json:"changedBy"`
	Note       string      `json:"note"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// StatusUpdate is the response projection of a status change.
type StatusUpdate struct {
	ID        string      `json:"id"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
}
