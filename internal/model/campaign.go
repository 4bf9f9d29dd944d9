// internal/model/campaign.go
package model

import "time"

// CampaignSummary aggregates the send records of one campaign.
type CampaignSummary struct {
	CampaignID   string    `db:"campaign_id" json:"campaign_id"`
	Total        int       `json:"total"`
	Pending      int       `json:"pending"`
	Sent         int       `json:"sent"`
	Failed       int       `json:"failed"`
	Skipped      int       `json:"skipped"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
}

// RunRequest asks a worker to run one campaign against one recipient list.
type RunRequest struct {
	CampaignID    string `json:"campaign_id"`
	SourcePath    string `json:"source_path"`
	AddressColumn string `json:"address_column,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Body          string `json:"body,omitempty"`
	Format        string `json:"format,omitempty"`
	DryRun        bool   `json:"dry_run"`
}
