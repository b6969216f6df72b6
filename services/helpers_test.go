package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"papichulo-api/apperror"
	"papichulo-api/auth"
	"papichulo-api/config"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenDB("sqlite", filepath.Join(t.TempDir(), "papichulo.db"))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testIssuer() *auth.Issuer {
	return auth.NewIssuer("test-secret", time.Hour)
}

func requireCode(t *testing.T, err error, code string) *apperror.Error {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.As(err)
	require.True(t, ok, "expected *apperror.Error, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code)
	return appErr
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	fail error
}

func (s *recordingSender) SendOTP(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, phone+":"+code)
	return nil
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []OrderEvent
}

func (b *recordingBroadcaster) Broadcast(event any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := event.(OrderEvent); ok {
		b.events = append(b.events, e)
	}
	return 1
}

func (b *recordingBroadcaster) snapshot() []OrderEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]OrderEvent(nil), b.events...)
}
