// internal/model/send_record.go
package model

import "time"

// Send record statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// SendRecord is the lifecycle of one recipient inside one campaign.
// (CampaignID, RecipientAddress) is unique.
type SendRecord struct {
	CampaignID       string     `db:"campaign_id" json:"campaign_id"`
	RecipientAddress string     `db:"recipient_address" json:"recipient_address"`
	Status           string     `db:"status" json:"status"` // pending, sent, failed, skipped
	AttemptCount     int        `db:"attempt_count" json:"attempt_count"`
	LastAttemptAt    *time.Time `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	LastError        string     `db:"last_error" json:"last_error,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// IsSent reports whether the recipient already has a confirmed delivery.
func (r *SendRecord) IsSent() bool {
	return r.Status == StatusSent
}

// IsValidStatus checks if the status is one of the known record statuses.
func IsValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusSent, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}
