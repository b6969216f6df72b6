package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papichulo-api/auth"
	"papichulo-api/config"
	"papichulo-api/handlers"
	"papichulo-api/middleware"
	"papichulo-api/realtime"
	"papichulo-api/routes"
	"papichulo-api/services"
	"papichulo-api/sms"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.OpenDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	logger.Info("database ready", "driver", cfg.DBDriver)

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)

	var sender sms.Sender = sms.LogSender{Logger: logger}
	if cfg.SMSGatewayURL != "" {
		sender = sms.NewGateway(cfg.SMSGatewayURL, cfg.SMSGatewayToken)
	}

	hub := realtime.NewHub(logger)
	users := services.NewUserService(db, issuer, logger)
	otp := services.NewOTPService(db, issuer, sender, logger)
	delivery := services.NewDeliveryService(db, services.DeliveryDefaults{
		StoreLatitude:  cfg.StoreLatitude,
		StoreLongitude: cfg.StoreLongitude,
		RadiusKm:       cfg.DeliveryRadiusKm,
	})
	orders := services.NewOrderService(db, delivery, hub, logger,
		services.WithStrictTransitions(cfg.StrictTransitions))
	menu := services.NewMenuService(db, logger)

	if err := seed(context.Background(), cfg, users, menu, delivery, logger); err != nil {
		return err
	}

	router, err := routes.NewRouter(routes.Dependencies{
		Config: cfg,
		Handler: handlers.New(handlers.Options{
			DB:             db,
			Users:          users,
			OTP:            otp,
			Orders:         orders,
			Delivery:       delivery,
			Menu:           menu,
			Logger:         logger,
			ExposeDebugOTP: cfg.ExposeDebugOTP(),
		}),
		Guard:   middleware.NewGuard(issuer, cfg.AdminAPIKey),
		Hub:     hub,
		Limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", srv.Addr,
			"env", cfg.Env,
			"admin_key_enabled", cfg.AdminAPIKey != "",
			"strict_transitions", cfg.StrictTransitions)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hub.CloseAll()
	return srv.Shutdown(shutdownCtx)
}

// seed prepares the delivery config, the optional bootstrap admin and the
// optional menu file.
func seed(ctx context.Context, cfg *config.Config, users *services.UserService, menu *services.MenuService, delivery *services.DeliveryService, logger *slog.Logger) error {
	dc, err := delivery.Get(ctx)
	if err != nil {
		return err
	}
	logger.Info("delivery zone",
		"store_latitude", dc.StoreLatitude,
		"store_longitude", dc.StoreLongitude,
		"radius_km", dc.RadiusKm)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := users.EnsureAdmin(ctx, "Papichulo Admin", cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return err
		}
		logger.Info("admin account ready", "email", cfg.AdminEmail)
	}

	if cfg.MenuSeedPath != "" {
		if _, err := menu.SyncFromFile(ctx, cfg.MenuSeedPath); err != nil {
			return err
		}
	}
	return nil
}
