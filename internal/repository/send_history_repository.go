package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/db"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
)

const dateLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SendHistoryRepositoryInterface interface {
	// Engine contract
	Get(ctx context.Context, campaignID, address string) (*model.SendRecord, error)
	Put(ctx context.Context, rec *model.SendRecord) error
	List(ctx context.Context, campaignID string) ([]model.SendRecord, error)

	// History review
	ListRecent(ctx context.Context, limit int) ([]model.SendRecord, error)
	ListCampaigns(ctx context.Context, offset, limit int) ([]model.CampaignSummary, int, error)
	GetCampaignStats(ctx context.Context, campaignID string) (map[string]int, error)
	DeleteCampaign(ctx context.Context, campaignID string) error
	Truncate(ctx context.Context) error
}

// SendHistoryRepository stores send records in SQLite or PostgreSQL.
type SendHistoryRepository struct {
	DB  *db.DB
	Now func() time.Time
}

// NewSendHistoryRepository builds a repository over an opened database.
func NewSendHistoryRepository(d *db.DB) *SendHistoryRepository {
	return &SendHistoryRepository{DB: d, Now: time.Now}
}

const recordColumns = `campaign_id, recipient_address, status, attempt_count, last_attempt_at, last_error, created_at, updated_at`

// ====================== Engine contract ======================

func (r *SendHistoryRepository) Get(ctx context.Context, campaignID, address string) (*model.SendRecord, error) {
	query := r.DB.Rebind(`SELECT ` + recordColumns + ` FROM send_records WHERE campaign_id = ? AND recipient_address = ?`)
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, campaignID, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// Put upserts rec in a single statement. It returns once the write is committed.
func (r *SendHistoryRepository) Put(ctx context.Context, rec *model.SendRecord) error {
	now := r.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	var lastAttempt, lastError sql.NullString
	if rec.LastAttemptAt != nil {
		lastAttempt = sql.NullString{String: rec.LastAttemptAt.UTC().Format(dateLayout), Valid: true}
	}
	if rec.LastError != "" {
		lastError = sql.NullString{String: rec.LastError, Valid: true}
	}

	query := r.DB.Rebind(`
        INSERT INTO send_records (` + recordColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (campaign_id, recipient_address) DO UPDATE SET
            status = excluded.status,
            attempt_count = excluded.attempt_count,
            last_attempt_at = excluded.last_attempt_at,
            last_error = excluded.last_error,
            updated_at = excluded.updated_at
    `)
	_, err := r.DB.ExecContext(ctx, query,
		rec.CampaignID, rec.RecipientAddress, rec.Status, rec.AttemptCount,
		lastAttempt, lastError,
		rec.CreatedAt.Format(dateLayout), rec.UpdatedAt.Format(dateLayout),
	)
	if err != nil {
		return fmt.Errorf("put send record %s/%s: %w", rec.CampaignID, rec.RecipientAddress, err)
	}
	return nil
}

func (r *SendHistoryRepository) List(ctx context.Context, campaignID string) ([]model.SendRecord, error) {
	query := r.DB.Rebind(`SELECT ` + recordColumns + ` FROM send_records WHERE campaign_id = ? ORDER BY created_at, recipient_address`)
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ====================== History review ======================

func (r *SendHistoryRepository) ListRecent(ctx context.Context, limit int) ([]model.SendRecord, error) {
	query := r.DB.Rebind(`SELECT ` + recordColumns + ` FROM send_records ORDER BY updated_at DESC LIMIT ?`)
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *SendHistoryRepository) ListCampaigns(ctx context.Context, offset, limit int) ([]model.CampaignSummary, int, error) {
	query := r.DB.Rebind(`
        SELECT campaign_id,
               COUNT(*),
               SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
               SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END),
               SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END),
               SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END),
               MAX(updated_at)
        FROM send_records
        GROUP BY campaign_id
        ORDER BY MAX(updated_at) DESC, campaign_id
        LIMIT ? OFFSET ?
    `)
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []model.CampaignSummary{}
	for rows.Next() {
		var (
			c    model.CampaignSummary
			last string
		)
		if err := rows.Scan(&c.CampaignID, &c.Total, &c.Pending, &c.Sent, &c.Failed, &c.Skipped, &last); err != nil {
			return nil, 0, err
		}
		c.LastActivity, _ = time.Parse(dateLayout, last)
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// Count total
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(DISTINCT campaign_id) FROM send_records`).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func (r *SendHistoryRepository) GetCampaignStats(ctx context.Context, campaignID string) (map[string]int, error) {
	query := r.DB.Rebind(`SELECT status, COUNT(*) FROM send_records WHERE campaign_id = ? GROUP BY status`)
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"total":             0,
		model.StatusPending: 0,
		model.StatusSent:    0,
		model.StatusFailed:  0,
		model.StatusSkipped: 0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

func (r *SendHistoryRepository) DeleteCampaign(ctx context.Context, campaignID string) error {
	_, err := r.DB.ExecContext(ctx, r.DB.Rebind(`DELETE FROM send_records WHERE campaign_id = ?`), campaignID)
	return err
}

func (r *SendHistoryRepository) Truncate(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM send_records`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*model.SendRecord, error) {
	var (
		rec                  model.SendRecord
		lastAttempt, lastErr sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&rec.CampaignID, &rec.RecipientAddress, &rec.Status, &rec.AttemptCount,
		&lastAttempt, &lastErr, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastAttempt.Valid {
		if t, err := time.Parse(dateLayout, lastAttempt.String); err == nil {
			rec.LastAttemptAt = &t
		}
	}
	rec.LastError = lastErr.String
	rec.CreatedAt, _ = time.Parse(dateLayout, createdAt)
	rec.UpdatedAt, _ = time.Parse(dateLayout, updatedAt)
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]model.SendRecord, error) {
	records := []model.SendRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

var _ SendHistoryRepositoryInterface = (*SendHistoryRepository)(nil)
