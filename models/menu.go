package models

import "time"

type MenuItem struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"uniqueIndex;not null"`
	Category    string    `json:"category"`
	Type        string    `json:"type"`
	Ingredients []string  `json:"ingredients" gorm:"serializer:json"`
	ImageURL    string    `json:"imageUrl"`
	Price       float64   `json:"price" gorm:"not null"`
	Rating      float64   `json:"rating" gorm:"default:0"`
	Available   bool      `json:"available"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
