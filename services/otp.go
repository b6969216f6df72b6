package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"papichulo-api/apperror"
	"papichulo-api/auth"
	"papichulo-api/models"
	"papichulo-api/sms"

	"gorm.io/gorm"
)

const (
	OTPValidity     = 5 * time.Minute
	MaxOTPAttempts  = 5
	MaxOTPResends   = 3
	otpDigits       = 6
	otpCustomerName = "Customer"
)

var (
	ErrOTPLimitReached     = apperror.New(http.StatusTooManyRequests, apperror.CodeOTPLimitReached, "OTP resend limit reached, try again later")
	ErrOTPExpired          = apperror.New(http.StatusBadRequest, apperror.CodeOTPExpired, "OTP expired or not requested")
	ErrOTPAttemptsExceeded = apperror.New(http.StatusTooManyRequests, apperror.CodeOTPAttemptsExceeded, "Too many invalid attempts, request a new OTP")
	ErrInvalidOTP          = apperror.New(http.StatusBadRequest, apperror.CodeInvalidOTP, "Invalid OTP")
)

// OTPSendResult describes a freshly generated code.
type OTPSendResult struct {
	Phone       string
	Code        string
	ExpiresAt   time.Time
	ResendCount int
}

// OTPService bootstraps identities from phone numbers.
type OTPService struct {
	db       *gorm.DB
	issuer   *auth.Issuer
	sender   sms.Sender
	logger   *slog.Logger
	now      func() time.Time
	generate func() (string, error)
	locks    keyedMutex
}

type OTPOption func(*OTPService)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) OTPOption {
	return func(s *OTPService) { s.now = now }
}

// WithCodeGenerator overrides code generation.
func WithCodeGenerator(fn func() (string, error)) OTPOption {
	return func(s *OTPService) { s.generate = fn }
}

func NewOTPService(db *gorm.DB, issuer *auth.Issuer, sender sms.Sender, logger *slog.Logger, opts ...OTPOption) *OTPService {
	if logger == nil {
		logger = slog.Default()
	}
	if sender == nil {
		sender = sms.LogSender{Logger: logger}
	}
	s := &OTPService{
		db:       db,
		issuer:   issuer,
		sender:   sender,
		logger:   logger,
		now:      time.Now,
		generate: generateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send issues a new code for phone. Earlier rows are left in place.
func (s *OTPService) Send(ctx context.Context, rawPhone string) (*OTPSendResult, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(phone)
	defer unlock()

	now := s.now()
	prev, err := s.latest(ctx, s.db, phone)
	if err != nil {
		return nil, err
	}

	resendCount := 1
	if prev != nil && !prev.Expired(now) {
		if prev.ResendCount >= MaxOTPResends {
			return nil, ErrOTPLimitReached
		}
		resendCount = prev.ResendCount + 1
	}

	code, err := s.generate()
	if err != nil {
		return nil, apperror.Internal(err)
	}

	rec := models.OTPRecord{
		Phone:       phone,
		Code:        code,
		ExpiresAt:   now.Add(OTPValidity),
		Attempts:    0,
		ResendCount: resendCount,
		CreatedAt:   now,
	}
	// The row is committed only once the sender accepted the code.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return apperror.DBUnavailable(err)
		}
		if err := s.sender.SendOTP(ctx, phone, code); err != nil {
			return &apperror.Error{
				Status:  http.StatusInternalServerError,
				Code:    apperror.CodeInternal,
				Message: "Failed to deliver OTP",
				Err:     err,
			}
		}
		return nil
	})
	if err != nil {
		if appErr, ok := apperror.As(err); ok {
			return nil, appErr
		}
		return nil, apperror.DBUnavailable(err)
	}

	return &OTPSendResult{Phone: phone, Code: code, ExpiresAt: rec.ExpiresAt, ResendCount: resendCount}, nil
}

// Verify checks code against the newest row for phone and, on success,
// consumes every row for that phone and logs the user in.
func (s *OTPService) Verify(ctx context.Context, rawPhone, code string) (*AuthResult, error) {
	phone, err := NormalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(phone)
	defer unlock()

	rec, err := s.latest(ctx, s.db, phone)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Expired(s.now()) {
		return nil, ErrOTPExpired
	}
	// Checked before comparing so a correct code cannot slip past the lockout.
	if rec.Attempts >= MaxOTPAttempts {
		return nil, ErrOTPAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		err := s.db.WithContext(ctx).Model(&models.OTPRecord{}).
			Where("id = ?", rec.ID).
			UpdateColumn("attempts", gorm.Expr("attempts + ?", 1)).Error
		if err != nil {
			return nil, apperror.DBUnavailable(err)
		}
		return nil, ErrInvalidOTP
	}

	var user models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("phone = ?", phone).Delete(&models.OTPRecord{}).Error; err != nil {
			return err
		}
		err := tx.Where("phone = ?", phone).Order("created_at asc").First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			user = models.User{
				Name:  otpCustomerName + " " + phone[len(phone)-4:],
				Phone: &phone,
				Role:  models.RoleCustomer,
			}
			return tx.Create(&user).Error
		}
		return err
	})
	if err != nil {
		return nil, apperror.DBUnavailable(err)
	}

	token, err := s.issuer.Issue(&user)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	s.logger.InfoContext(ctx, "otp verified", "user_id", user.ID)
	return &AuthResult{Token: token, User: &user}, nil
}

// latest returns the most recently created row for phone, or nil.
func (s *OTPService) latest(ctx context.Context, db *gorm.DB, phone string) (*models.OTPRecord, error) {
	var rec models.OTPRecord
	err := db.WithContext(ctx).
		Where("phone = ?", phone).
		Order("created_at desc").Order("id desc").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.DBUnavailable(err)
	}
	return &rec, nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
