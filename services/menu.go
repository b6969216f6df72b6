package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"

	"papichulo-api/apperror"
	"papichulo-api/models"

	"gorm.io/gorm"
)

var ErrMenuItemExists = apperror.New(http.StatusBadRequest, apperror.CodeValidation, "A menu item with this name already exists")

type MenuItemInput struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Type        string   `json:"type"`
	Ingredients []string `json:"ingredients"`
	ImageURL    string   `json:"imageUrl"`
	Price       float64  `json:"price"`
	Rating      float64  `json:"rating"`
	Available   *bool    `json:"available"`
}

func (in MenuItemInput) apply(item *models.MenuItem) {
	item.Name = in.Name
	item.Category = in.Category
	item.Type = in.Type
	item.Ingredients = in.Ingredients
	if item.Ingredients == nil {
		item.Ingredients = []string{}
	}
	item.ImageURL = in.ImageURL
	item.Price = in.Price
	item.Rating = in.Rating
	item.Available = in.Available == nil || *in.Available
}

// SyncReport summarizes a menu sync.
type SyncReport struct {
	Existing int
	Added    int
	Updated  int
	Source   int
}

// MenuService is a thin catalog store.
type MenuService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewMenuService(db *gorm.DB, logger *slog.Logger) *MenuService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MenuService{db: db, logger: logger}
}

// List returns the menu ordered by category then name.
func (s *MenuService) List(ctx context.Context, category string, availableOnly bool) ([]models.MenuItem, error) {
	query := s.db.WithContext(ctx)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if availableOnly {
		query = query.Where("available = ?", true)
	}
	items := []models.MenuItem{}
	if err := query.Order("category asc").Order("name asc").Find(&items).Error; err != nil {
		return nil, apperror.DBUnavailable(err)
	}
	return items, nil
}

func (s *MenuService) Create(ctx context.Context, in MenuItemInput) (*models.MenuItem, error) {
	var item models.MenuItem
	in.apply(&item)
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrMenuItemExists
		}
		return nil, apperror.DBUnavailable(err)
	}
	return &item, nil
}

func (s *MenuService) Update(ctx context.Context, id uint, in MenuItemInput) (*models.MenuItem, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(item)
	if err := s.db.WithContext(ctx).Save(item).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrMenuItemExists
		}
		return nil, apperror.DBUnavailable(err)
	}
	return item, nil
}

func (s *MenuService) Delete(ctx context.Context, id uint) error {
	item, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(item).Error; err != nil {
		return apperror.DBUnavailable(err)
	}
	return nil
}

// SyncFromFile upserts menu items by name from a JSON array. Items missing
// from the file are left alone.
func (s *MenuService) SyncFromFile(ctx context.Context, path string) (*SyncReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read menu seed: %w", err)
	}
	var source []MenuItemInput
	if err := json.Unmarshal(raw, &source); err != nil {
		return nil, fmt.Errorf("parse menu seed: %w", err)
	}

	report := &SyncReport{Source: len(source)}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []models.MenuItem
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}
		report.Existing = len(existing)
		byName := make(map[string]*models.MenuItem, len(existing))
		for i := range existing {
			byName[existing[i].Name] = &existing[i]
		}

		for _, in := range source {
			current, ok := byName[in.Name]
			if !ok {
				var item models.MenuItem
				in.apply(&item)
				if err := tx.Create(&item).Error; err != nil {
					return err
				}
				byName[item.Name] = &item
				report.Added++
				continue
			}

			var want models.MenuItem
			in.apply(&want)
			if menuItemEqual(current, &want) {
				continue
			}
			in.apply(current)
			if err := tx.Save(current).Error; err != nil {
				return err
			}
			report.Updated++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sync menu: %w", err)
	}

	s.logger.InfoContext(ctx, "menu sync complete",
		"existing", report.Existing, "added", report.Added, "updated", report.Updated, "source", report.Source)
	return report, nil
}

func (s *MenuService) find(ctx context.Context, id uint) (*models.MenuItem, error) {
	var item models.MenuItem
	err := s.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Menu item not found")
	}
	if err != nil {
		return nil, apperror.DBUnavailable(err)
	}
	return &item, nil
}

func menuItemEqual(a, b *models.MenuItem) bool {
	return a.Category == b.Category &&
		a.Type == b.Type &&
		slices.Equal(a.Ingredients, b.Ingredients) &&
		a.ImageURL == b.ImageURL &&
		a.Price == b.Price &&
		a.Rating == b.Rating &&
		a.Available == b.Available
}
