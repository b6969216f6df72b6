package models

import "time"

// DeliveryConfigID is the primary key of the singleton row.
const DeliveryConfigID = 1

type DeliveryConfig struct {
	ID             uint      `json:"-" gorm:"primaryKey"`
	StoreLatitude  float64   `json:"storeLatitude" gorm:"not null"`
	StoreLongitude float64   `json:"storeLongitude" gorm:"not null"`
	RadiusKm       float64   `json:"radiusKm" gorm:"not null"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (DeliveryConfig) TableName() string {
	return "delivery_config"
}
