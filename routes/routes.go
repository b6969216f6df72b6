package routes

import (
	"fmt"
	"log/slog"

	"papichulo-api/config"
	"papichulo-api/handlers"
	"papichulo-api/middleware"
	"papichulo-api/realtime"

	"github.com/gin-gonic/gin"
)

// Dependencies are the wired components the router needs.
type Dependencies struct {
	Config  *config.Config
	Handler *handlers.Handler
	Guard   *middleware.Guard
	Hub     *realtime.Hub
	Limiter *middleware.RateLimiter
	Logger  *slog.Logger
}

// NewRouter builds the engine with the global middleware chain and all routes.
// Client IPs come from X-Forwarded-For only when the peer is a trusted proxy.
func NewRouter(d Dependencies) (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(d.Config.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.Use(
		middleware.Recovery(d.Logger),
		middleware.RequestLogger(d.Logger),
		middleware.ErrorHandler(d.Logger),
		middleware.CORS(d.Config.CORSAllowedOrigins),
	)
	r.NoRoute(middleware.NotFound())
	SetupRoutes(r, d)
	return r, nil
}

func SetupRoutes(r *gin.Engine, d Dependencies) {
	h := d.Handler
	guard := d.Guard

	r.GET("/health", h.Health)

	ws := realtime.NewHandler(d.Hub, guard, middleware.WebSocketOrigin(d.Config.CORSAllowedOrigins), d.Logger)
	r.GET("/ws/orders", ws.Serve)

	// ── Public routes ──────────────────────────────────────────────
	public := r.Group("/api")
	{
		public.GET("/menu", h.GetMenu)
		public.GET("/delivery-config", h.GetDeliveryConfig)
		public.GET("/state-machine", h.GetStateMachineInfo)
		public.POST("/orders", guard.OptionalAuth(), h.PlaceOrder)
	}

	// ── Auth routes (rate limited) ─────────────────────────────────
	authRoutes := r.Group("/api")
	authRoutes.Use(d.Limiter.Middleware())
	{
		authRoutes.POST("/auth/send-otp", h.SendOTP)
		authRoutes.POST("/auth/verify-otp", h.VerifyOTP)
		authRoutes.POST("/signup", h.Signup)
		authRoutes.POST("/login", h.Login)
	}

	// ── Authenticated routes ───────────────────────────────────────
	signedIn := r.Group("/api")
	signedIn.Use(guard.RequireAuth())
	{
		signedIn.GET("/me", h.Me)
		signedIn.GET("/orders/:id", h.GetOrder)
		signedIn.GET("/my/orders", h.GetMyOrders)
		signedIn.GET("/my/orders/:id", h.GetMyOrder)
	}

	// ── Admin routes ───────────────────────────────────────────────
	admin := r.Group("/api")
	admin.Use(guard.RequireAdmin())
	{
		admin.GET("/orders", h.ListOrders)
		admin.PATCH("/orders/:id/status", h.UpdateOrderStatus)

		admin.POST("/menu", h.AddMenuItem)
		admin.PUT("/menu/:id", h.UpdateMenuItem)
		admin.DELETE("/menu/:id", h.DeleteMenuItem)

		admin.PUT("/delivery-config", h.UpdateDeliveryConfig)
	}
}
