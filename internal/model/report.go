// internal/model/report.go
package model

// RecipientError is a per-recipient failure captured in a report.
type RecipientError struct {
	Address string `json:"address"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}

// CampaignReport summarizes one run of the dispatch engine.
type CampaignReport struct {
	RunID       string           `json:"run_id"`
	CampaignID  string           `json:"campaign_id"`
	Total       int              `json:"total"`
	Sent        int              `json:"sent"`
	Failed      int              `json:"failed"`
	Skipped     int              `json:"skipped"`
	Deferred    int              `json:"deferred"`
	DryRun      bool             `json:"dry_run"`
	Interrupted bool             `json:"interrupted"`
	Errors      []RecipientError `json:"errors"`
}

// AddError records a failed recipient.
func (r *CampaignReport) AddError(address, kind string, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RecipientError{Address: address, Kind: kind, Error: err.Error()})
}

// FirstErrors returns at most n errors in the order they happened.
func (r *CampaignReport) FirstErrors(n int) []RecipientError {
	if n < 0 || len(r.Errors) <= n {
		return r.Errors
	}
	return r.Errors[:n]
}
