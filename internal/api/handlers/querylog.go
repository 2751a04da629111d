package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jroosing/hydraproxy/internal/api/models"
)

const (
	defaultQueryLogLimit = 100
	maxQueryLogLimit     = 1000
)

// QueryLog godoc
// @Summary Recent queries
// @Description Returns the most recent query log rows, newest first
// @Tags querylog
// @Produce json
// @Param limit query int false "Maximum rows (1-1000)" default(100)
// @Success 200 {object} models.QueryLogResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /querylog [get]
func (h *Handler) QueryLog(c *gin.Context) {
	if h.queryLog == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "query log disabled"})
		return
	}

	limit := defaultQueryLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxQueryLogLimit {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	entries, err := h.queryLog.RecentQueries(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("query log read failed", "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to read query log"})
		return
	}
	c.JSON(http.StatusOK, models.QueryLogResponse{Count: len(entries), Entries: entries})
}
