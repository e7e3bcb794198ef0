// Package handlers provides the HTTP handlers and middleware of the evidence
// index API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/scrypster/casefile/internal/index"
	"github.com/scrypster/casefile/internal/notify"
	"github.com/scrypster/casefile/internal/storage"
	"github.com/scrypster/casefile/pkg/types"
)

// APIHandlers serves the read-only query surface over one Indexer.
type APIHandlers struct {
	ix  *index.Indexer
	hub *notify.Hub
	log *logrus.Entry
}

// NewAPIHandlers creates the handler set. hub may be nil when no websocket
// layer is attached.
func NewAPIHandlers(ix *index.Indexer, hub *notify.Hub) *APIHandlers {
	return &APIHandlers{
		ix:  ix,
		hub: hub,
		log: logrus.WithField("component", "api"),
	}
}

// GetStats handles GET /api/stats.
func (h *APIHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatsResponse{
		Stats:               h.ix.Stats(),
		DiscoveryCategories: h.ix.DiscoveryCategoryCounts(),
	})
}

// GetDevices handles GET /api/devices.
func (h *APIHandlers) GetDevices(w http.ResponseWriter, r *http.Request) {
	devices := h.ix.Devices()
	respondJSON(w, http.StatusOK, DevicesResponse{Devices: devices, Total: len(devices)})
}

// GetDeviceData handles GET /api/device/{id}. An unknown device yields an
// empty page, not an error.
func (h *APIHandlers) GetDeviceData(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("id")
	q := r.URL.Query()

	res, err := h.ix.DeviceData(r.Context(), deviceID, storage.QueryOptions{
		Category: types.Category(q.Get("category")),
		Query:    q.Get("q"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
		Page:     intParam(r, "page", 1),
		PerPage:  intParam(r, "per_page", 0),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "device query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, RecordsResponse{
		Records: res.Items, Total: res.Total, Page: res.Page, PerPage: res.PerPage,
	})
}

// GetChatThreads handles GET /api/device/{id}/chat-threads.
func (h *APIHandlers) GetChatThreads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.ix.Threads(r.Context(), r.PathValue("id"), storage.ThreadOptions{
		Search:   q.Get("search"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
		Page:     intParam(r, "page", 1),
		PerPage:  intParam(r, "per_page", 0),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "thread query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, ThreadsResponse{
		Threads: res.Items, Total: res.Total, Page: res.Page, PerPage: res.PerPage,
	})
}

// GetThreadMessages handles GET /api/device/{id}/chat-thread/{tid}.
func (h *APIHandlers) GetThreadMessages(w http.ResponseWriter, r *http.Request) {
	threadID, err := strconv.Atoi(r.PathValue("tid"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid thread id", err)
		return
	}
	msgs, err := h.ix.ThreadMessages(r.Context(), r.PathValue("id"), threadID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "message query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, MessagesResponse{Messages: msgs, Total: len(msgs)})
}

// Search handles GET /api/search — a global substring search with optional
// device and category filters.
func (h *APIHandlers) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("q") == "" {
		respondError(w, http.StatusBadRequest, "missing query parameter 'q'", nil)
		return
	}

	opts := storage.QueryOptions{
		Query:    q.Get("q"),
		Category: types.Category(q.Get("category")),
		Page:     intParam(r, "page", 1),
		PerPage:  intParam(r, "per_page", 50),
	}
	if device := q.Get("device"); device != "" {
		opts.DeviceIDs = []string{device}
	}

	res, err := h.ix.Search(r.Context(), opts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "search failed", err)
		return
	}
	respondJSON(w, http.StatusOK, RecordsResponse{
		Records: res.Items, Total: res.Total, Page: res.Page, PerPage: res.PerPage,
	})
}

// GetDiscoveries handles GET /api/discoveries.
func (h *APIHandlers) GetDiscoveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.ix.Discoveries(r.Context(), storage.DiscoveryOptions{
		Category: q.Get("category"),
		Person:   q.Get("person"),
		Sort:     q.Get("sort"),
		Page:     intParam(r, "page", 1),
		PerPage:  intParam(r, "per_page", 0),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "discovery query failed", err)
		return
	}
	respondJSON(w, http.StatusOK, DiscoveriesResponse{
		Discoveries: res.Items,
		Total:       res.Total,
		Page:        res.Page,
		PerPage:     res.PerPage,
		Categories:  h.ix.DiscoveryCategoryCounts(),
	})
}

// GetNetwork handles GET /api/network.
func (h *APIHandlers) GetNetwork(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.ix.Network())
}

// GetPerson handles GET /api/network/person/{id}.
func (h *APIHandlers) GetPerson(w http.ResponseWriter, r *http.Request) {
	details, ok := h.ix.PersonDetails(r.PathValue("id"))
	if !ok {
		respondError(w, http.StatusNotFound, "person not found", nil)
		return
	}
	respondJSON(w, http.StatusOK, details)
}

// Refresh handles POST /api/refresh: runs an incremental pass and broadcasts
// the result to websocket subscribers.
func (h *APIHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	res, err := h.ix.Refresh(r.Context(), false)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "refresh failed", err)
		return
	}
	if h.hub != nil {
		h.hub.Publish(notify.Event{
			Type:           notify.EventRefreshComplete,
			ChangedFiles:   res.ChangedFiles,
			ElapsedSeconds: res.ElapsedSeconds,
		})
	}
	respondJSON(w, http.StatusOK, res)
}

// IndexStatus handles GET /api/index-status — the staleness probe used by
// operators.
func (h *APIHandlers) IndexStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.ix.Stats()
	respondJSON(w, http.StatusOK, map[string]any{
		"last_indexed":  stats.LastIndexed,
		"total_devices": stats.TotalDevices,
	})
}
