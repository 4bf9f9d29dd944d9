package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

// RunRequester executes a queued run. *CampaignService implements it.
type RunRequester interface {
	RunRequest(ctx context.Context, req model.RunRequest) (*model.CampaignReport, error)
}

// Worker turns queue payloads into campaign runs.
type Worker struct {
	Runs   RunRequester
	Logger *slog.Logger
}

func NewWorker(runs RunRequester, logger *slog.Logger) *Worker {
	return &Worker{Runs: runs, Logger: logger}
}

// Handle accepts a model.RunRequest or its JSON encoding. Payloads that
// cannot be decoded are dropped; failed runs are returned so the queue
// retries them.
func (w *Worker) Handle(ctx context.Context, payload any) error {
	req, err := DecodeRunRequest(payload)
	if err != nil {
		w.Logger.Error("invalid_run_request", "error", err)
		return nil
	}

	report, err := w.Runs.RunRequest(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			w.Logger.Warn("campaign_run_interrupted", "campaign_id", req.CampaignID)
			return nil
		}
		w.Logger.Error("campaign_run_failed", "campaign_id", req.CampaignID, "kind", appErrors.KindOf(err), "error", err)
		return err
	}

	w.Logger.Info("campaign_run_completed",
		"campaign_id", report.CampaignID,
		"run_id", report.RunID,
		"sent", report.Sent,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"deferred", report.Deferred,
	)
	return nil
}

func DecodeRunRequest(payload any) (model.RunRequest, error) {
	var req model.RunRequest
	switch p := payload.(type) {
	case model.RunRequest:
		req = p
	case *model.RunRequest:
		if p == nil {
			return req, fmt.Errorf("nil run request")
		}
		req = *p
	case []byte:
		if err := json.Unmarshal(p, &req); err != nil {
			return req, fmt.Errorf("decode run request: %w", err)
		}
	case json.RawMessage:
		if err := json.Unmarshal(p, &req); err != nil {
			return req, fmt.Errorf("decode run request: %w", err)
		}
	default:
		return req, fmt.Errorf("unexpected payload type %T", payload)
	}

	if req.CampaignID == "" || req.SourcePath == "" {
		return req, fmt.Errorf("run request needs campaign_id and source_path")
	}
	return req, nil
}
