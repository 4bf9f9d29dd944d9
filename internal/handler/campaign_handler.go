// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/service"
)

// CampaignHandler serves the send history views.
type CampaignHandler struct {
	Service *service.CampaignService
	Logger  *slog.Logger
}

func NewCampaignHandler(svc *service.CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, Logger: logger}
}

func (h *CampaignHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("encode_response_failed", "error", err)
	}
}

func (h *CampaignHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var nf *appErrors.ErrCampaignNotFound
	if errors.As(err, &nf) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	h.Logger.Error("request_failed", "path", r.URL.Path, "error", err)
	http.Error(w, msg+": "+err.Error(), http.StatusInternalServerError)
}

// GetCampaignHandlerWithStats returns per-status counts and recent failures.
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		h.writeError(w, r, "failed to fetch campaign", err)
		return
	}

	h.writeJSON(w, details)
}

// ListRecordsHandler returns a campaign's send records, filtered by ?status=.
func (h *CampaignHandler) ListRecordsHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status := r.URL.Query().Get("status")
	if status != "" && !model.IsValidStatus(status) {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	records, err := h.Service.ListRecords(r.Context(), id, status)
	if err != nil {
		h.writeError(w, r, "failed to fetch records", err)
		return
	}

	h.writeJSON(w, map[string]any{
		"campaign_id": id,
		"data":        records,
	})
}

// ClearCampaignHandler deletes one campaign's history so it can be sent again.
func (h *CampaignHandler) ClearCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Service.ClearHistory(r.Context(), id); err != nil {
		h.writeError(w, r, "failed to clear campaign", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecentHistoryHandler returns the latest records across campaigns, ?limit= bounded.
func (h *CampaignHandler) RecentHistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = l
	}

	records, err := h.Service.RecentHistory(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, "failed to fetch history", err)
		return
	}

	h.writeJSON(w, map[string]any{"data": records})
}

// ClearHistoryHandler deletes every send record.
func (h *CampaignHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ClearHistory(r.Context(), ""); err != nil {
		h.writeError(w, r, "failed to clear history", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
