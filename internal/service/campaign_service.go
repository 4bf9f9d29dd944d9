// internal/service/campaign_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/queue"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/repository"
)

// CampaignRunner executes one campaign run. *Dispatcher implements it.
type CampaignRunner interface {
	RunCampaign(ctx context.Context, campaignID string, recipients []model.Recipient, tmpl model.MessageTemplate, cfg DispatchConfig) (*model.CampaignReport, error)
}

// CampaignDefaults fill in whatever a run request leaves empty.
type CampaignDefaults struct {
	Subject       string
	Body          string
	Format        string
	AddressColumn string
}

type CampaignService struct {
	History  repository.SendHistoryRepositoryInterface
	Runner   CampaignRunner
	Renderer *Renderer
	Queue    queue.Queue
	Defaults CampaignDefaults
	Dispatch DispatchConfig
	Logger   *slog.Logger

	// NewSource opens the recipient list named by a run request.
	NewSource func(path, addressColumn string) repository.RecipientSource
}

type CampaignDetails struct {
	CampaignID     string             `json:"campaign_id"`
	Stats          map[string]int     `json:"stats"`
	LastActivity   *time.Time         `json:"last_activity,omitempty"`
	RecentFailures []model.SendRecord `json:"recent_failures"`
}

const (
	defaultPageSize      = 20
	maxPageSize          = 100
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 500
	recentFailuresToShow = 10
)

// ====================== Runs ======================

// Template builds the message template for req, falling back to the defaults.
func (s *CampaignService) Template(req model.RunRequest) model.MessageTemplate {
	return model.MessageTemplate{
		Subject: lo.Ternary(strings.TrimSpace(req.Subject) != "", req.Subject, s.Defaults.Subject),
		Body:    lo.Ternary(strings.TrimSpace(req.Body) != "", req.Body, s.Defaults.Body),
		Format:  lo.Ternary(req.Format != "", req.Format, s.Defaults.Format),
	}
}

// RunRequest loads the recipient list and runs the campaign.
func (s *CampaignService) RunRequest(ctx context.Context, req model.RunRequest) (*model.CampaignReport, error) {
	if strings.TrimSpace(req.CampaignID) == "" {
		return nil, appErrors.NewFatal("run request", errors.New("campaign id is required"))
	}
	if strings.TrimSpace(req.SourcePath) == "" {
		return nil, appErrors.NewFatal("run request", errors.New("source path is required"))
	}

	column := lo.Ternary(req.AddressColumn != "", req.AddressColumn, s.Defaults.AddressColumn)
	newSource := s.NewSource
	if newSource == nil {
		newSource = func(path, column string) repository.RecipientSource {
			return repository.NewCSVFileSource(path, column)
		}
	}

	recipients, err := newSource(req.SourcePath, column).Recipients(ctx)
	if err != nil {
		return nil, appErrors.NewFatal("load recipients", err)
	}

	cfg := s.Dispatch
	cfg.DryRun = cfg.DryRun || req.DryRun

	return s.Runner.RunCampaign(ctx, req.CampaignID, recipients, s.Template(req), cfg)
}

// EnqueueRun hands req to the run queue.
func (s *CampaignService) EnqueueRun(req model.RunRequest) error {
	if strings.TrimSpace(req.CampaignID) == "" || strings.TrimSpace(req.SourcePath) == "" {
		return errors.New("campaign_id and source_path are required")
	}
	if s.Queue == nil {
		return errors.New("run queue is not configured")
	}
	if err := s.Queue.Publish(queue.TopicCampaignRuns, req); err != nil {
		return fmt.Errorf("enqueue run for %s: %w", req.CampaignID, err)
	}
	s.Logger.Info("campaign_run_enqueued", "campaign_id", req.CampaignID, "source_path", req.SourcePath, "dry_run", req.DryRun)
	return nil
}

// ====================== History review ======================

// ListCampaigns returns one page of campaign summaries plus pagination info.
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int) ([]model.CampaignSummary, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.History.ListCampaigns(ctx, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID string) (*CampaignDetails, error) {
	stats, err := s.History.GetCampaignStats(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if stats["total"] == 0 {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}

	records, err := s.History.List(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	details := &CampaignDetails{
		CampaignID: campaignID,
		Stats:      stats,
	}

	if len(records) > 0 {
		latest := lo.MaxBy(records, func(a, b model.SendRecord) bool { return a.UpdatedAt.After(b.UpdatedAt) })
		details.LastActivity = &latest.UpdatedAt
	}

	failures := lo.Filter(records, func(r model.SendRecord, _ int) bool { return r.Status == model.StatusFailed })
	if len(failures) > recentFailuresToShow {
		failures = failures[len(failures)-recentFailuresToShow:]
	}
	details.RecentFailures = failures

	return details, nil
}

// ListRecords returns a campaign's records, optionally only those with status.
func (s *CampaignService) ListRecords(ctx context.Context, campaignID, status string) ([]model.SendRecord, error) {
	if status != "" && !model.IsValidStatus(status) {
		return nil, fmt.Errorf("invalid status %q", status)
	}

	records, err := s.History.List(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}
	if status == "" {
		return records, nil
	}
	return lo.Filter(records, func(r model.SendRecord, _ int) bool { return r.Status == status }), nil
}

// RecentHistory returns the most recently updated records across campaigns.
func (s *CampaignService) RecentHistory(ctx context.Context, limit int) ([]model.SendRecord, error) {
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.History.ListRecent(ctx, limit)
}

// ClearHistory deletes one campaign's records, or all records when campaignID is empty.
func (s *CampaignService) ClearHistory(ctx context.Context, campaignID string) error {
	if campaignID == "" {
		if err := s.History.Truncate(ctx); err != nil {
			return err
		}
		s.Logger.Warn("history_cleared")
		return nil
	}

	if err := s.History.DeleteCampaign(ctx, campaignID); err != nil {
		return err
	}
	s.Logger.Warn("campaign_history_cleared", "campaign_id", campaignID)
	return nil
}

// RenderPreview renders tmpl for one recipient without sending or recording
// anything. Empty subject or body fall back to the defaults.
func (s *CampaignService) RenderPreview(tmpl model.MessageTemplate, recipient model.Recipient) (model.RenderedMessage, error) {
	tmpl = s.Template(model.RunRequest{Subject: tmpl.Subject, Body: tmpl.Body, Format: tmpl.Format})
	if strings.TrimSpace(tmpl.Body) == "" {
		return model.RenderedMessage{}, fmt.Errorf("template cannot be empty")
	}
	if strings.TrimSpace(recipient.Address) == "" {
		return model.RenderedMessage{}, fmt.Errorf("recipient address is required")
	}
	return s.Renderer.Render(tmpl, recipient)
}
