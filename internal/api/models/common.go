// Package models defines request and response types for the hydraproxy
// management API.
package models

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse represents a simple status response.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse reports the proxy and query log health.
type HealthResponse struct {
	Status   string `json:"status"`
	QueryLog string `json:"querylog,omitempty"`
}
