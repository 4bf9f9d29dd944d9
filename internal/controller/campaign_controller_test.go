package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ParasBhendarkar/Simple-email-Sender/internal/controller"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/logger"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/model"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/queue"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/repository"
	"github.com/ParasBhendarkar/Simple-email-Sender/internal/service"
)

// --- Mocks ---

type MockHistoryRepoForPagination struct {
	repository.SendHistoryRepositoryInterface
	campaigns []model.CampaignSummary
}

func (m *MockHistoryRepoForPagination) ListCampaigns(_ context.Context, offset, limit int) ([]model.CampaignSummary, int, error) {
	total := len(m.campaigns)
	start := offset
	end := offset + limit
	if start > total {
		return []model.CampaignSummary{}, total, nil
	}
	if end > total {
		end = total
	}
	return m.campaigns[start:end], total, nil
}

type MockQueue struct {
	published []any
}

func (q *MockQueue) Publish(topic string, payload any) error {
	if topic != queue.TopicCampaignRuns {
		return fmt.Errorf("unexpected topic %s", topic)
	}
	q.published = append(q.published, payload)
	return nil
}

func (q *MockQueue) Subscribe(context.Context, string, queue.Handler) error { return nil }

func newRouter(svc *service.CampaignService) http.Handler {
	ctrl := &controller.CampaignController{CampaignService: svc}
	r := chi.NewRouter()
	r.Get("/campaigns", ctrl.ListCampaigns)
	r.Post("/campaigns/{id}/send", ctrl.SendCampaign)
	r.Post("/campaigns/{id}/personalized-preview", ctrl.PersonalizedPreview)
	return r
}

func newService() *service.CampaignService {
	return &service.CampaignService{
		Renderer: service.NewRenderer(map[string]string{"company_name": "Acme"}, ""),
		Defaults: service.CampaignDefaults{Subject: "Hello", Body: "Hi {name}", Format: model.FormatText},
		Logger:   logger.Discard(),
	}
}

// --- Tests ---

func TestPersonalizedPreviewHandler(t *testing.T) {
	router := newRouter(newService())

	body := map[string]any{
		"recipient": map[string]any{"email": "alice@example.com", "fields": map[string]string{"name": "Alice"}},
		"body":      "Hi {name}, greetings from {company_name}!",
	}
	b, _ := json.Marshal(body)

	req := httptest.NewRequest("POST", "/campaigns/spring/personalized-preview", bytes.NewReader(b))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var res struct {
		CampaignID string                `json:"campaign_id"`
		Rendered   model.RenderedMessage `json:"rendered_message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if res.CampaignID != "spring" {
		t.Errorf("expected campaign_id spring, got %q", res.CampaignID)
	}
	if !strings.Contains(res.Rendered.TextBody, "Alice") || !strings.Contains(res.Rendered.TextBody, "Acme") {
		t.Errorf("expected personalized body, got %q", res.Rendered.TextBody)
	}
	if res.Rendered.Subject != "Hello" {
		t.Errorf("expected default subject, got %q", res.Rendered.Subject)
	}
}

func TestPersonalizedPreviewUnresolvedPlaceholder(t *testing.T) {
	router := newRouter(newService())

	b, _ := json.Marshal(map[string]any{
		"recipient": map[string]any{"email": "alice@example.com"},
		"body":      "Your code is {coupon}",
	})
	req := httptest.NewRequest("POST", "/campaigns/spring/personalized-preview", bytes.NewReader(b))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "{coupon}") {
		t.Errorf("expected error to name the placeholder, got %q", w.Body.String())
	}
}

func TestListCampaignsPagination(t *testing.T) {
	var campaigns []model.CampaignSummary
	for i := 1; i <= 5; i++ {
		campaigns = append(campaigns, model.CampaignSummary{CampaignID: fmt.Sprintf("c%d", i), Total: i})
	}
	svc := newService()
	svc.History = &MockHistoryRepoForPagination{campaigns: campaigns}
	router := newRouter(svc)

	req := httptest.NewRequest("GET", "/campaigns?page=2&page_size=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var res struct {
		Data       []model.CampaignSummary `json:"data"`
		Pagination map[string]int          `json:"pagination"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if len(res.Data) != 2 || res.Data[0].CampaignID != "c3" {
		t.Errorf("unexpected page contents: %+v", res.Data)
	}
	if res.Pagination["total_count"] != 5 || res.Pagination["total_pages"] != 3 || res.Pagination["page"] != 2 {
		t.Errorf("unexpected pagination: %+v", res.Pagination)
	}
}

func TestSendCampaignQueuesRun(t *testing.T) {
	q := &MockQueue{}
	svc := newService()
	svc.Queue = q
	router := newRouter(svc)

	b, _ := json.Marshal(map[string]any{"source_path": "lists/spring.csv", "dry_run": true})
	req := httptest.NewRequest("POST", "/campaigns/spring/send", bytes.NewReader(b))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(q.published) != 1 {
		t.Fatalf("expected one queued run, got %d", len(q.published))
	}
	run, ok := q.published[0].(model.RunRequest)
	if !ok {
		t.Fatalf("expected RunRequest payload, got %T", q.published[0])
	}
	if run.CampaignID != "spring" || run.SourcePath != "lists/spring.csv" || !run.DryRun {
		t.Errorf("unexpected run request: %+v", run)
	}
}

func TestSendCampaignRequiresSource(t *testing.T) {
	svc := newService()
	svc.Queue = &MockQueue{}
	router := newRouter(svc)

	req := httptest.NewRequest("POST", "/campaigns/spring/send", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
