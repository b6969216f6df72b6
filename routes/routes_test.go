package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"papichulo-api/apperror"
	"papichulo-api/auth"
	"papichulo-api/config"
	"papichulo-api/handlers"
	"papichulo-api/middleware"
	"papichulo-api/models"
	"papichulo-api/realtime"
	"papichulo-api/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminKey = "ops-key"

type testApp struct {
	router *gin.Engine
	users  *services.UserService
	hub    *realtime.Hub
}

func newTestApp(t *testing.T, mutate func(*config.Config)) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Env:                "test",
		JWTSecret:          "test-secret",
		TokenTTL:           time.Hour,
		AdminAPIKey:        adminKey,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		OTPDebug:           true,
		StoreLatitude:      17.385044,
		StoreLongitude:     78.486671,
		DeliveryRadiusKm:   10,
		RateLimitRPS:       100,
		RateLimitBurst:     100,
	}
	if mutate != nil {
		mutate(cfg)
	}

	db, err := config.OpenDB("sqlite", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	hub := realtime.NewHub(logger)
	users := services.NewUserService(db, issuer, logger)
	delivery := services.NewDeliveryService(db, services.DeliveryDefaults{
		StoreLatitude:  cfg.StoreLatitude,
		StoreLongitude: cfg.StoreLongitude,
		RadiusKm:       cfg.DeliveryRadiusKm,
	})

	router, err := NewRouter(Dependencies{
		Config: cfg,
		Handler: handlers.New(handlers.Options{
			DB:             db,
			Users:          users,
			OTP:            services.NewOTPService(db, issuer, nil, logger),
			Orders:         services.NewOrderService(db, delivery, hub, logger, services.WithStrictTransitions(cfg.StrictTransitions)),
			Delivery:       delivery,
			Menu:           services.NewMenuService(db, logger),
			Logger:         logger,
			ExposeDebugOTP: cfg.ExposeDebugOTP(),
		}),
		Guard:   middleware.NewGuard(issuer, cfg.AdminAPIKey),
		Hub:     hub,
		Limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Logger:  logger,
	})
	require.NoError(t, err)
	t.Cleanup(hub.CloseAll)
	return &testApp{router: router, users: users, hub: hub}
}

func (a *testApp) do(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) customerToken(t *testing.T, email string) (string, string) {
	t.Helper()
	res, err := a.users.Signup(context.Background(), services.SignupInput{Name: "Cust", Email: email, Password: "password1"})
	require.NoError(t, err)
	return res.Token, res.User.ID
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func asAdmin() http.Header { return http.Header{middleware.AdminKeyHeader: {adminKey}} }

func withBearer(tok string) http.Header { return http.Header{"Authorization": {"Bearer " + tok}} }

func orderBody(lat, lng float64) map[string]any {
	return map[string]any{
		"customerName":  "Kiran",
		"phone":         "9876543210",
		"address":       "Jubilee Hills, Hyderabad",
		"paymentMethod": "cod",
		"latitude":      lat,
		"longitude":     lng,
		"items": []map[string]any{
			{"name": "Paneer Pizza", "price": 249, "quantity": 2},
		},
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"service":"papichulo-backend"}`, w.Body.String())
}

func TestOTPLoginFlow(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(t, http.MethodPost, "/api/auth/send-otp", map[string]string{"phone": "+91 98765 43210"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sent := decode[handlers.SendOTPResponse](t, w)
	assert.True(t, sent.OK)
	assert.Equal(t, 300, sent.ExpiresInSeconds)
	require.Len(t, sent.DebugOTP, 6)

	w = app.do(t, http.MethodPost, "/api/auth/verify-otp", map[string]string{"phone": "9876543210", "otp": sent.DebugOTP}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decode[struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}](t, w)
	require.NotEmpty(t, session.Token)
	assert.Equal(t, models.RoleCustomer, session.User.Role)

	w = app.do(t, http.MethodGet, "/api/me", nil, withBearer(session.Token))
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[models.User](t, w)
	assert.Equal(t, session.User.ID, me.ID)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestDebugOTPHiddenInProduction(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.Env = "production" })

	w := app.do(t, http.MethodPost, "/api/auth/send-otp", map[string]string{"phone": "9876543210"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "debugOtp")
}

func TestVerifyOTPValidation(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(t, http.MethodPost, "/api/auth/verify-otp", map[string]string{"phone": "9876543210", "otp": "12ab"}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode[struct {
		Error struct {
			Code    string                `json:"code"`
			Details []apperror.FieldIssue `json:"details"`
		} `json:"error"`
	}](t, w)
	assert.Equal(t, apperror.CodeValidation, env.Error.Code)
	require.NotEmpty(t, env.Error.Details)
	assert.Equal(t, "otp", env.Error.Details[0].Field)

	w = app.do(t, http.MethodPost, "/api/auth/verify-otp", map[string]string{"phone": "9876543210", "otp": "123456"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeOTPExpired)
}

func TestSignupAndLogin(t *testing.T) {
	app := newTestApp(t, nil)
	body := map[string]string{"name": "Meera", "email": "meera@example.com", "password": "hunter22"}

	w := app.do(t, http.MethodPost, "/api/signup", body, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"token"`)

	w = app.do(t, http.MethodPost, "/api/signup", body, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeEmailExists)

	w = app.do(t, http.MethodPost, "/api/login", map[string]string{"email": "meera@example.com", "password": "hunter22"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodPost, "/api/login", map[string]string{"email": "meera@example.com", "password": "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeInvalidCredentials)
}

func TestPlaceOrderGeofence(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(t, http.MethodPost, "/api/orders", orderBody(17.385044, 78.576671), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decode[models.Order](t, w)
	assert.Equal(t, models.StatusNew, order.Status)
	assert.Equal(t, 498.0, order.TotalAmount)
	assert.Nil(t, order.UserID)

	w = app.do(t, http.MethodPost, "/api/orders", orderBody(17.485044, 78.786671), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode[struct {
		Error struct {
			Code    string                       `json:"code"`
			Details services.DeliveryZoneDetails `json:"details"`
		} `json:"error"`
	}](t, w)
	assert.Equal(t, apperror.CodeOutsideDeliveryZone, env.Error.Code)
	assert.InDelta(t, 33.71, env.Error.Details.DistanceKm, 0.01)
	assert.Equal(t, 10.0, env.Error.Details.RadiusKm)
}

func TestPlaceOrderInvalidPayload(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(t, http.MethodPost, "/api/orders", map[string]any{"phone": "9876543210", "items": []any{}}, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode[struct {
		Error struct {
			Code    string                `json:"code"`
			Details []apperror.FieldIssue `json:"details"`
		} `json:"error"`
	}](t, w)
	assert.Equal(t, apperror.CodeValidation, env.Error.Code)

	fields := map[string]bool{}
	for _, d := range env.Error.Details {
		fields[d.Field] = true
	}
	assert.True(t, fields["customerName"])
	assert.True(t, fields["items"])

	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(`{"customerName":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), apperror.CodeValidation)
}

func TestOrderOwnershipAndStatus(t *testing.T) {
	app := newTestApp(t, nil)
	ownerTok, ownerID := app.customerToken(t, "owner@example.com")
	otherTok, _ := app.customerToken(t, "other@example.com")

	w := app.do(t, http.MethodPost, "/api/orders", orderBody(17.385044, 78.486671), withBearer(ownerTok))
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode[models.Order](t, w)
	require.NotNil(t, order.UserID)
	assert.Equal(t, ownerID, *order.UserID)

	// a broken token never blocks placement
	w = app.do(t, http.MethodPost, "/api/orders", orderBody(17.385044, 78.486671), withBearer("garbage"))
	require.Equal(t, http.StatusCreated, w.Code)

	path := "/api/orders/" + order.ID
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, path, nil, withBearer(ownerTok)).Code)
	assert.Equal(t, http.StatusForbidden, app.do(t, http.MethodGet, path, nil, withBearer(otherTok)).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, path, nil, nil).Code)
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, path, nil, asAdmin()).Code)

	w = app.do(t, http.MethodGet, "/api/my/orders", nil, withBearer(ownerTok))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Order](t, w), 1)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/api/my/orders/"+order.ID, nil, withBearer(otherTok)).Code)

	status := map[string]string{"status": "accepted"}
	w = app.do(t, http.MethodPatch, path+"/status", status, withBearer(ownerTok))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeForbidden)

	w = app.do(t, http.MethodPatch, path+"/status", status, asAdmin())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	upd := decode[map[string]any](t, w)
	assert.Equal(t, order.ID, upd["id"])
	assert.Equal(t, "accepted", upd["status"])
	assert.NotEmpty(t, upd["createdAt"])

	w = app.do(t, http.MethodPatch, path+"/status", map[string]string{"status": "teleported"}, asAdmin())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPatch, "/api/orders/ORD404/status", status, asAdmin())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodGet, "/api/orders?status=accepted", nil, asAdmin())
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[[]models.Order](t, w)
	require.Len(t, listed, 1)
	assert.Equal(t, order.ID, listed[0].ID)

	assert.Equal(t, http.StatusForbidden, app.do(t, http.MethodGet, "/api/orders", nil, withBearer(ownerTok)).Code)
}

func TestMenuAndDeliveryConfigRequireAdmin(t *testing.T) {
	app := newTestApp(t, nil)
	tok, _ := app.customerToken(t, "c@example.com")
	item := map[string]any{"name": "Farmhouse", "category": "pizza", "price": 299}

	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodPost, "/api/menu", item, nil).Code)
	assert.Equal(t, http.StatusForbidden, app.do(t, http.MethodPost, "/api/menu", item, withBearer(tok)).Code)

	w := app.do(t, http.MethodPost, "/api/menu", item, asAdmin())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[models.MenuItem](t, w)

	w = app.do(t, http.MethodGet, "/api/menu", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.MenuItem](t, w), 1)

	item["price"] = 319
	w = app.do(t, http.MethodPut, "/api/menu/"+itoa(created.ID), item, asAdmin())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 319.0, decode[models.MenuItem](t, w).Price)

	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodDelete, "/api/menu/abc", nil, asAdmin()).Code)
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodDelete, "/api/menu/"+itoa(created.ID), nil, asAdmin()).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, "/api/menu/"+itoa(created.ID), nil, asAdmin()).Code)

	dc := map[string]float64{"storeLatitude": 17.4, "storeLongitude": 78.5, "radiusKm": 5}
	assert.Equal(t, http.StatusForbidden, app.do(t, http.MethodPut, "/api/delivery-config", dc, withBearer(tok)).Code)
	w = app.do(t, http.MethodPut, "/api/delivery-config", dc, asAdmin())
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/api/delivery-config", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5.0, decode[models.DeliveryConfig](t, w).RadiusKm)

	w = app.do(t, http.MethodPut, "/api/delivery-config", map[string]float64{"storeLatitude": 120, "storeLongitude": 78.5, "radiusKm": 5}, asAdmin())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStateMachineInfo(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.StrictTransitions = true })

	w := app.do(t, http.MethodGet, "/api/state-machine", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[map[string]any](t, w)
	assert.Equal(t, true, info["enforced"])
	assert.Len(t, info["statuses"], 6)
}

func TestRateLimitedAuth(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
	})
	body := map[string]string{"email": "x@example.com", "password": "whatever"}

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodPost, "/api/login", body, nil).Code)
	}
	w := app.do(t, http.MethodPost, "/api/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeRateLimited)

	// other routes are not limited
	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/api/menu", nil, nil).Code)
}

func TestRateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 2
	})
	body := map[string]string{"email": "x@example.com", "password": "whatever"}

	limited := 0
	for i := 0; i < 10; i++ {
		w := app.do(t, http.MethodPost, "/api/login", body, http.Header{"X-Forwarded-For": {"10.0.0." + itoa(uint(i+1))}})
		if w.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 8, limited)
}

func TestRateLimitHonorsForwardedForFromTrustedProxy(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) {
		c.RateLimitRPS = 0.001
		c.RateLimitBurst = 1
		// httptest requests come from 192.0.2.1
		c.TrustedProxies = []string{"192.0.2.1"}
	})
	body := map[string]string{"email": "x@example.com", "password": "whatever"}
	from := func(ip string) http.Header { return http.Header{"X-Forwarded-For": {ip}} }

	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodPost, "/api/login", body, from("203.0.113.7")).Code)
	assert.Equal(t, http.StatusTooManyRequests, app.do(t, http.MethodPost, "/api/login", body, from("203.0.113.7")).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodPost, "/api/login", body, from("203.0.113.8")).Code)
}

func TestCORSBlocked(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(t, http.MethodGet, "/api/menu", nil, http.Header{"Origin": {"https://evil.example"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), apperror.CodeCORSBlocked)

	w = app.do(t, http.MethodGet, "/api/menu", nil, http.Header{"Origin": {"http://localhost:5173"}})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRealtimeOrderEvents(t *testing.T) {
	app := newTestApp(t, nil)
	srv := httptest.NewServer(app.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/orders"

	custTok, _ := app.customerToken(t, "watcher@example.com")
	rejected, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+custTok, nil)
	require.NoError(t, err)
	defer rejected.Close()
	_ = rejected.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = rejected.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?adminKey="+adminKey, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello realtime.Handshake
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Type)
	require.Eventually(t, func() bool { return app.hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	w := app.do(t, http.MethodPost, "/api/orders", orderBody(17.385044, 78.486671), nil)
	require.Equal(t, http.StatusCreated, w.Code)
	placed := decode[models.Order](t, w)

	var event struct {
		Type  string       `json:"type"`
		Order models.Order `json:"order"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, services.EventOrderNew, event.Type)
	assert.Equal(t, placed.ID, event.Order.ID)

	w = app.do(t, http.MethodPatch, "/api/orders/"+placed.ID+"/status", map[string]string{"status": "preparing"}, asAdmin())
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, services.EventOrderUpdate, event.Type)
	assert.Equal(t, models.StatusPreparing, event.Order.Status)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
