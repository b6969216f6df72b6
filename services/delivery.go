package services

import (
	"context"
	"errors"

	"papichulo-api/apperror"
	"papichulo-api/models"

	"gorm.io/gorm"
)

// DeliveryDefaults seed the singleton config on first read.
type DeliveryDefaults struct {
	StoreLatitude  float64
	StoreLongitude float64
	RadiusKm       float64
}

type DeliveryConfigInput struct {
	StoreLatitude  float64
	StoreLongitude float64
	RadiusKm       float64
}

// DeliveryService reads and updates the geofence.
type DeliveryService struct {
	db       *gorm.DB
	defaults DeliveryDefaults
}

func NewDeliveryService(db *gorm.DB, defaults DeliveryDefaults) *DeliveryService {
	return &DeliveryService{db: db, defaults: defaults}
}

// Get returns the singleton config, creating it with defaults when missing.
func (s *DeliveryService) Get(ctx context.Context) (*models.DeliveryConfig, error) {
	var cfg models.DeliveryConfig
	err := s.db.WithContext(ctx).
		Where(models.DeliveryConfig{ID: models.DeliveryConfigID}).
		Attrs(models.DeliveryConfig{
			StoreLatitude:  s.defaults.StoreLatitude,
			StoreLongitude: s.defaults.StoreLongitude,
			RadiusKm:       s.defaults.RadiusKm,
		}).
		FirstOrCreate(&cfg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// lost a first-read race; the row exists now
		err = s.db.WithContext(ctx).First(&cfg, models.DeliveryConfigID).Error
	}
	if err != nil {
		return nil, apperror.DBUnavailable(err)
	}
	return &cfg, nil
}

// Update overwrites the store location and radius.
func (s *DeliveryService) Update(ctx context.Context, in DeliveryConfigInput) (*models.DeliveryConfig, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	cfg.StoreLatitude = in.StoreLatitude
	cfg.StoreLongitude = in.StoreLongitude
	cfg.RadiusKm = in.RadiusKm
	if err := s.db.WithContext(ctx).Save(cfg).Error; err != nil {
		return nil, apperror.DBUnavailable(err)
	}
	return cfg, nil
}
