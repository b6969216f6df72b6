package handlers

import (
	"log/slog"

	"papichulo-api/apperror"
	"papichulo-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler serves every HTTP endpoint. Handlers push failures with c.Error
// and leave rendering to middleware.ErrorHandler.
type Handler struct {
	db       *gorm.DB
	users    *services.UserService
	otp      *services.OTPService
	orders   *services.OrderService
	delivery *services.DeliveryService
	menu     *services.MenuService
	logger   *slog.Logger

	exposeDebugOTP bool
}

type Options struct {
	DB       *gorm.DB
	Users    *services.UserService
	OTP      *services.OTPService
	Orders   *services.OrderService
	Delivery *services.DeliveryService
	Menu     *services.MenuService
	Logger   *slog.Logger

	// ExposeDebugOTP echoes generated codes in send-otp responses.
	ExposeDebugOTP bool
}

func New(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	apperror.UseJSONFieldNames()
	return &Handler{
		db:             opts.DB,
		users:          opts.Users,
		otp:            opts.OTP,
		orders:         opts.Orders,
		delivery:       opts.Delivery,
		menu:           opts.Menu,
		logger:         opts.Logger,
		exposeDebugOTP: opts.ExposeDebugOTP,
	}
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, apperror.FromBinding(err))
		return false
	}
	return true
}
