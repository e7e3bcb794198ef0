package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/scrypster/casefile/internal/storage"
	"github.com/scrypster/casefile/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// StatsResponse is the response format for GET /api/stats.
type StatsResponse struct {
	types.Stats
	DiscoveryCategories map[string]int `json:"discovery_categories"`
}

// DevicesResponse is the response format for GET /api/devices.
type DevicesResponse struct {
	Devices []types.Device `json:"devices"`
	Total   int            `json:"total"`
}

// RecordsResponse is the response format for device data and search queries.
type RecordsResponse struct {
	Records []storage.RecordHit `json:"records"`
	Total   int                 `json:"total"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

// ThreadsResponse is the response format for GET /api/device/{id}/chat-threads.
type ThreadsResponse struct {
	Threads []types.ChatThread `json:"threads"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
}

// MessagesResponse is the response format for GET /api/device/{id}/chat-thread/{tid}.
type MessagesResponse struct {
	Messages []types.ChatMessage `json:"messages"`
	Total    int                 `json:"total"`
}

// DiscoveriesResponse is the response format for GET /api/discoveries.
type DiscoveriesResponse struct {
	Discoveries []types.Discovery `json:"discoveries"`
	Total       int               `json:"total"`
	Page        int               `json:"page"`
	PerPage     int               `json:"per_page"`
	Categories  map[string]int    `json:"categories"`
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing to do but log.
		logrus.WithError(err).Error("failed to encode JSON response")
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]any{"error": err.Error()}
	}
	respondJSON(w, statusCode, errResp)
}

// intParam parses an integer query parameter, falling back on absence or
// garbage.
func intParam(r *http.Request, name string, defaultValue int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}
