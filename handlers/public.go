package handlers

import (
	"net/http"

	"papichulo-api/apperror"
	"papichulo-api/models"
	"papichulo-api/statemachine"

	"github.com/gin-gonic/gin"
)

const serviceName = "papichulo-backend"

// Health reports liveness and database reachability
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		fail(c, apperror.DBUnavailable(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "service": serviceName})
}

// GetMenu returns the catalog. Supports ?category= and ?available=true
func (h *Handler) GetMenu(c *gin.Context) {
	items, err := h.menu.List(c.Request.Context(), c.Query("category"), c.Query("available") == "true")
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetDeliveryConfig returns the store location and delivery radius
func (h *Handler) GetDeliveryConfig(c *gin.Context) {
	cfg, err := h.delivery.Get(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// GetStateMachineInfo describes the order lifecycle and whether it is enforced
func (h *Handler) GetStateMachineInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"statuses":        models.OrderStatuses,
		"transitions":     statemachine.GetAllTransitions(),
		"terminal_states": statemachine.TerminalStates(),
		"enforced":        h.orders.StrictTransitions(),
		"description":     "Papichulo order lifecycle",
	})
}
