// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")

	var body struct {
		Recipient struct {
			Email  string            `json:"email"`
			Fields map[string]string `json:"fields"`
		} `json:"recipient"`
		Subject string `json:"subject"`
		Body    string `json:"body"`
		Format  string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	tmpl := model.MessageTemplate{Subject: body.Subject, Body: body.Body, Format: body.Format}
	recipient := model.Recipient{Address: body.Recipient.Email, Fields: body.Recipient.Fields}

	rendered, err := c.CampaignService.RenderPreview(tmpl, recipient)
	if err != nil {
		status := http.StatusBadRequest
		var re *appErrors.RenderError
		if errors.As(err, &re) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_id":      campaignID,
		"rendered_message": rendered,
	})
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":       campaigns,
		"pagination": pagination, // page, page_size, total_count, total_pages
	})
}

// SendCampaign queues a run of the campaign against a recipient list on the
// server's filesystem. The run happens in the worker.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "id")

	var body struct {
		SourcePath    string `json:"source_path"`
		AddressColumn string `json:"address_column"`
		Subject       string `json:"subject"`
		Body          string `json:"body"`
		Format        string `json:"format"`
		DryRun        bool   `json:"dry_run"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.SourcePath == "" {
		http.Error(w, "source_path is required", http.StatusBadRequest)
		return
	}

	req := model.RunRequest{
		CampaignID:    campaignID,
		SourcePath:    body.SourcePath,
		AddressColumn: body.AddressColumn,
		Subject:       body.Subject,
		Body:          body.Body,
		Format:        body.Format,
		DryRun:        body.DryRun,
	}
	if err := c.CampaignService.EnqueueRun(req); err != nil {
		http.Error(w, "failed to queue campaign: "+err.Error(), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"campaign_id": campaignID,
		"status":      "queued",
		"dry_run":     body.DryRun,
	})
}
