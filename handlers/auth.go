package handlers

import (
	"net/http"

	"papichulo-api/apperror"
	"papichulo-api/middleware"
	"papichulo-api/services"

	"github.com/gin-gonic/gin"
)

type SendOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone" binding:"required"`
	OTP   string `json:"otp" binding:"required,len=6,numeric"`
}

type SignupRequest struct {
	Name     string `json:"name" binding:"required,max=80"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SendOTPResponse struct {
	OK               bool   `json:"ok"`
	Message          string `json:"message"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
	DebugOTP         string `json:"debugOtp,omitempty"`
}

// SendOTP issues a login code for a phone number
func (h *Handler) SendOTP(c *gin.Context) {
	var req SendOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	sent, err := h.otp.Send(c.Request.Context(), req.Phone)
	if err != nil {
		fail(c, err)
		return
	}

	resp := SendOTPResponse{
		OK:               true,
		Message:          "OTP sent",
		ExpiresInSeconds: int(services.OTPValidity.Seconds()),
	}
	if h.exposeDebugOTP {
		resp.DebugOTP = sent.Code
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyOTP exchanges a valid code for a session token
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.otp.Verify(c.Request.Context(), req.Phone, req.OTP)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Signup creates a customer account
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.users.Signup(c.Request.Context(), services.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Login authenticates with email and password
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Me returns the authenticated user's profile
func (h *Handler) Me(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	if !ok {
		fail(c, apperror.Unauthorized("Missing auth token"))
		return
	}
	if p.UserID == "" {
		fail(c, apperror.NotFound("User not found"))
		return
	}

	user, err := h.users.Get(c.Request.Context(), p.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
