package models

import "github.com/jroosing/hydraproxy/internal/database"

// QueryLogResponse lists the most recent query log rows, newest first.
type QueryLogResponse struct {
	Count   int                   `json:"count"`
	Entries []database.QueryEntry `json:"entries"`
}
