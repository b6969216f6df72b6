package models

import "time"

// OTPRecord is one generated code. Several rows per phone may coexist; the
// newest one (highest ID) is authoritative.
type OTPRecord struct {
	ID          uint      `gorm:"primaryKey"`
	Phone       string    `gorm:"index;size:10;not null"`
	Code        string    `gorm:"size:6;not null"`
	ExpiresAt   time.Time `gorm:"not null"`
	Attempts    int       `gorm:"not null"`
	ResendCount int       `gorm:"not null"`
	CreatedAt   time.Time
}

func (OTPRecord) TableName() string {
	return "otp_records"
}

// Expired reports whether the code is no longer valid at now.
func (r *OTPRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
