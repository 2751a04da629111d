package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/hydraproxy/internal/api/models"
)

// GetConfig godoc
// @Summary Get current configuration
// @Description Returns the effective configuration with the API key redacted
// @Tags config
// @Produce json
// @Success 200 {object} config.Config
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /config [get]
func (h *Handler) GetConfig(c *gin.Context) {
	if h.cfg == nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "config unavailable"})
		return
	}
	c.JSON(http.StatusOK, h.cfg.Redacted())
}
