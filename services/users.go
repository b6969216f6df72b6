package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"papichulo-api/apperror"
	"papichulo-api/auth"
	"papichulo-api/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailExists        = apperror.New(http.StatusConflict, apperror.CodeEmailExists, "Email already registered")
	ErrInvalidCredentials = apperror.New(http.StatusUnauthorized, apperror.CodeInvalidCredentials, "Invalid email or password")
)

// AuthResult is returned by every login flow.
type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type SignupInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// UserService owns password accounts.
type UserService struct {
	db     *gorm.DB
	issuer *auth.Issuer
	logger *slog.Logger
}

func NewUserService(db *gorm.DB, issuer *auth.Issuer, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{db: db, issuer: issuer, logger: logger}
}

// Signup creates a customer account and returns a session token.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)

	var phone *string
	if strings.TrimSpace(in.Phone) != "" {
		p, err := NormalizePhone(in.Phone)
		if err != nil {
			return nil, err
		}
		phone = &p
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, apperror.DBUnavailable(err)
	}
	if count > 0 {
		return nil, ErrEmailExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	hashStr := string(hash)

	user := models.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        &email,
		Phone:        phone,
		PasswordHash: &hashStr,
		Role:         models.RoleCustomer,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailExists
		}
		return nil, apperror.DBUnavailable(err)
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID)
	return s.session(&user)
}

// Login checks an email/password pair.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperror.DBUnavailable(err)
	}

	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.session(&user)
}

// Get loads a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.DBUnavailable(err)
	}
	return &user, nil
}

// EnsureAdmin creates the bootstrap admin account, or promotes an existing
// account with that email, so an operator can log in with a token.
func (s *UserService) EnsureAdmin(ctx context.Context, name, email, password string) error {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	hashStr := string(hash)

	var user models.User
	err = s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{Name: name, Email: &email, PasswordHash: &hashStr, Role: models.RoleAdmin}
		return s.db.WithContext(ctx).Create(&user).Error
	case err != nil:
		return err
	}
	return s.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"role":          models.RoleAdmin,
		"password_hash": hashStr,
	}).Error
}

func (s *UserService) session(user *models.User) (*AuthResult, error) {
	token, err := s.issuer.Issue(user)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
