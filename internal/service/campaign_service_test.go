package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/ParasBhendarkar/Simple-email-Sender/internal/errors"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/logger"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/queue"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/repository"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/service"
)

// Mock history repository
type MockHistoryRepo struct {
	Records   []model.SendRecord
	Deleted   []string
	Truncated bool
}

func (m *MockHistoryRepo) Get(_ context.Context, campaignID, address string) (*model.SendRecord, error) {
	for _, r := range m.Records {
		if r.CampaignID == campaignID && r.RecipientAddress == address {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *MockHistoryRepo) Put(_ context.Context, rec *model.SendRecord) error {
	m.Records = append(m.Records, *rec)
	return nil
}

func (m *MockHistoryRepo) List(_ context.Context, campaignID string) ([]model.SendRecord, error) {
	out := []model.SendRecord{}
	for _, r := range m.Records {
		if r.CampaignID == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockHistoryRepo) ListRecent(_ context.Context, limit int) ([]model.SendRecord, error) {
	if limit > len(m.Records) {
		limit = len(m.Records)
	}
	return m.Records[:limit], nil
}

func (m *MockHistoryRepo) ListCampaigns(context.Context, int, int) ([]model.CampaignSummary, int, error) {
	return []model.CampaignSummary{}, 0, nil
}

func (m *MockHistoryRepo) GetCampaignStats(_ context.Context, campaignID string) (map[string]int, error) {
	stats := map[string]int{"total": 0}
	for _, r := range m.Records {
		if r.CampaignID == campaignID {
			stats[r.Status]++
			stats["total"]++
		}
	}
	return stats, nil
}

func (m *MockHistoryRepo) DeleteCampaign(_ context.Context, campaignID string) error {
	m.Deleted = append(m.Deleted, campaignID)
	return nil
}

func (m *MockHistoryRepo) Truncate(context.Context) error {
	m.Truncated = true
	return nil
}

var _ repository.SendHistoryRepositoryInterface = (*MockHistoryRepo)(nil)

// Mock runner capturing what the service hands to the engine
type MockRunner struct {
	CampaignID string
	Recipients []model.Recipient
	Template   model.MessageTemplate
	Config     service.DispatchConfig
}

func (m *MockRunner) RunCampaign(_ context.Context, campaignID string, recipients []model.Recipient, tmpl model.MessageTemplate, cfg service.DispatchConfig) (*model.CampaignReport, error) {
	m.CampaignID = campaignID
	m.Recipients = recipients
	m.Template = tmpl
	m.Config = cfg
	return &model.CampaignReport{CampaignID: campaignID, Total: len(recipients), Sent: len(recipients)}, nil
}

type staticSource struct {
	recipients []model.Recipient
	err        error
}

func (s staticSource) Recipients(context.Context) ([]model.Recipient, error) {
	return s.recipients, s.err
}

type recordingQueue struct {
	topic   string
	payload any
}

func (q *recordingQueue) Publish(topic string, payload any) error {
	q.topic, q.payload = topic, payload
	return nil
}

func (q *recordingQueue) Subscribe(context.Context, string, queue.Handler) error { return nil }

func newCampaignService(history *MockHistoryRepo, runner *MockRunner) *service.CampaignService {
	return &service.CampaignService{
		History:  history,
		Runner:   runner,
		Renderer: service.NewRenderer(map[string]string{"company_name": "Acme"}, "https://acme.test/u"),
		Defaults: service.CampaignDefaults{Subject: "Default subject", Body: "Hi {name}", Format: model.FormatText, AddressColumn: "email"},
		Dispatch: service.DefaultDispatchConfig(),
		Logger:   logger.Discard(),
	}
}

func TestRunRequestUsesDefaultsAndSource(t *testing.T) {
	runner := &MockRunner{}
	svc := newCampaignService(&MockHistoryRepo{}, runner)

	var gotPath, gotColumn string
	svc.NewSource = func(path, column string) repository.RecipientSource {
		gotPath, gotColumn = path, column
		return staticSource{recipients: []model.Recipient{{Address: "a@x.com"}}}
	}

	report, err := svc.RunRequest(context.Background(), model.RunRequest{
		CampaignID: "c1", SourcePath: "list.csv", Body: "Custom {name}", DryRun: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, "list.csv", gotPath)
	assert.Equal(t, "email", gotColumn)
	assert.Equal(t, "c1", runner.CampaignID)
	assert.Equal(t, "Default subject", runner.Template.Subject)
	assert.Equal(t, "Custom {name}", runner.Template.Body)
	assert.True(t, runner.Config.DryRun)
	assert.Equal(t, 10, runner.Config.BatchSize)
}

func TestRunRequestSourceFailureIsFatal(t *testing.T) {
	svc := newCampaignService(&MockHistoryRepo{}, &MockRunner{})
	svc.NewSource = func(string, string) repository.RecipientSource {
		return staticSource{err: repository.ErrMissingAddressColumn}
	}

	_, err := svc.RunRequest(context.Background(), model.RunRequest{CampaignID: "c1", SourcePath: "x.csv"})
	require.Error(t, err)
	assert.True(t, appErrors.IsFatal(err))
	assert.ErrorIs(t, err, repository.ErrMissingAddressColumn)

	_, err = svc.RunRequest(context.Background(), model.RunRequest{SourcePath: "x.csv"})
	assert.True(t, appErrors.IsFatal(err))
}

func TestEnqueueRun(t *testing.T) {
	q := &recordingQueue{}
	svc := newCampaignService(&MockHistoryRepo{}, &MockRunner{})
	svc.Queue = q

	req := model.RunRequest{CampaignID: "c1", SourcePath: "list.csv"}
	require.NoError(t, svc.EnqueueRun(req))
	assert.Equal(t, queue.TopicCampaignRuns, q.topic)
	assert.Equal(t, req, q.payload)

	assert.Error(t, svc.EnqueueRun(model.RunRequest{CampaignID: "c1"}))
}

func TestGetCampaignDetailsWithStats(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	history := &MockHistoryRepo{Records: []model.SendRecord{
		{CampaignID: "c1", RecipientAddress: "a@x.com", Status: model.StatusSent, UpdatedAt: t1},
		{CampaignID: "c1", RecipientAddress: "b@x.com", Status: model.StatusFailed, LastError: "550", UpdatedAt: t2},
		{CampaignID: "c2", RecipientAddress: "a@x.com", Status: model.StatusSent, UpdatedAt: t2},
	}}
	svc := newCampaignService(history, &MockRunner{})

	details, err := svc.GetCampaignDetailsWithStats(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, 2, details.Stats["total"])
	assert.Equal(t, 1, details.Stats[model.StatusSent])
	assert.Equal(t, 1, details.Stats[model.StatusFailed])
	require.NotNil(t, details.LastActivity)
	assert.True(t, details.LastActivity.Equal(t2))
	require.Len(t, details.RecentFailures, 1)
	assert.Equal(t, "b@x.com", details.RecentFailures[0].RecipientAddress)

	_, err = svc.GetCampaignDetailsWithStats(context.Background(), "missing")
	var nf *appErrors.ErrCampaignNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestListRecordsFiltersByStatus(t *testing.T) {
	history := &MockHistoryRepo{Records: []model.SendRecord{
		{CampaignID: "c1", RecipientAddress: "a@x.com", Status: model.StatusSent},
		{CampaignID: "c1", RecipientAddress: "b@x.com", Status: model.StatusFailed},
	}}
	svc := newCampaignService(history, &MockRunner{})

	all, err := svc.ListRecords(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	failed, err := svc.ListRecords(context.Background(), "c1", model.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b@x.com", failed[0].RecipientAddress)

	_, err = svc.ListRecords(context.Background(), "c1", "bogus")
	assert.Error(t, err)

	_, err = svc.ListRecords(context.Background(), "nope", "")
	var nf *appErrors.ErrCampaignNotFound
	assert.True(t, errors.As(err, &nf))
}

func TestRecentHistoryAndClear(t *testing.T) {
	history := &MockHistoryRepo{Records: []model.SendRecord{
		{CampaignID: "c1", RecipientAddress: "a@x.com"},
		{CampaignID: "c1", RecipientAddress: "b@x.com"},
	}}
	svc := newCampaignService(history, &MockRunner{})

	recent, err := svc.RecentHistory(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	require.NoError(t, svc.ClearHistory(context.Background(), "c1"))
	assert.Equal(t, []string{"c1"}, history.Deleted)
	assert.False(t, history.Truncated)

	require.NoError(t, svc.ClearHistory(context.Background(), ""))
	assert.True(t, history.Truncated)
}

func TestRenderPreview(t *testing.T) {
	svc := newCampaignService(&MockHistoryRepo{}, &MockRunner{})
	recipient := model.Recipient{Address: "alice@example.com", Fields: map[string]string{"name": "Alice"}}

	msg, err := svc.RenderPreview(model.MessageTemplate{}, recipient)
	require.NoError(t, err)
	assert.Equal(t, "Default subject", msg.Subject)
	assert.Equal(t, "Hi Alice", msg.TextBody)

	msg, err = svc.RenderPreview(model.MessageTemplate{Subject: "For {name}", Body: "{company_name}: {unsubscribe_link}"}, recipient)
	require.NoError(t, err)
	assert.Equal(t, "For Alice", msg.Subject)
	assert.Equal(t, "Acme: https://acme.test/u", msg.TextBody)

	_, err = svc.RenderPreview(model.MessageTemplate{Body: "Hi {missing}"}, recipient)
	assert.Equal(t, appErrors.KindRender, appErrors.KindOf(err))

	_, err = svc.RenderPreview(model.MessageTemplate{Body: "x"}, model.Recipient{})
	assert.Error(t, err)
}
