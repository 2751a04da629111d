// Package handlers implements the REST API endpoint handlers for hydraproxy.
//
// REST API Endpoints:
//   - GET /api/v1/health - Health check, including the query log store
//   - GET /api/v1/stats - Process and proxy statistics
//   - GET /api/v1/config - Effective configuration (API key redacted)
//   - GET /api/v1/querylog - Most recent answered queries
//
// When an API key is configured every endpoint requires the X-API-Key header.
//
// @title hydraproxy Management API
// @version 1.0
// @description Read-only management API for the hydraproxy caching DNS forwarder.
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jroosing/hydraproxy/internal/config"
	"github.com/jroosing/hydraproxy/internal/database"
	"github.com/jroosing/hydraproxy/internal/server"
)

// StatsSource provides proxy statistics.
type StatsSource interface {
	Snapshot() server.StatsSnapshot
}

// QueryLogSource reads the query log store.
type QueryLogSource interface {
	RecentQueries(ctx context.Context, limit int) ([]database.QueryEntry, error)
	Health() error
}

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time
	stats     StatsSource
	queryLog  QueryLogSource
}

// New creates a Handler. stats and queryLog may be nil.
func New(cfg *config.Config, logger *slog.Logger, stats StatsSource, queryLog QueryLogSource) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
		stats:     stats,
		queryLog:  queryLog,
	}
}
