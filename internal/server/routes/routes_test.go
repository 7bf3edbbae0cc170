package routes_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/ojpp/broadlistening/backend/internal/server/middleware"
	"github.com/ojpp/broadlistening/backend/internal/server/routes"
	"github.com/ojpp/broadlistening/backend/pkg/ai/rulebased"
	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/cursor"
	"github.com/ojpp/broadlistening/backend/pkg/ecosystem"
	"github.com/ojpp/broadlistening/backend/pkg/store/memory"
)

type testValidator struct {
	validator *validator.Validate
}

func (v *testValidator) Validate(i any) error {
	return v.validator.Struct(i)
}

func newTestApp(t *testing.T) (*memory.Storage, *middleware.App) {
	t.Helper()
	store := memory.New()
	engine, err := ecosystem.New(ecosystem.Params{
		Store:    store,
		Analyzer: rulebased.New(16),
		Locker:   cursor.NewMemoryLocker(),
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return store, &middleware.App{Engine: engine}
}

func newRequestContext(t *testing.T, app *middleware.App, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	e.Validator = &testValidator{validator: validator.New()}

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/", reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return &middleware.AppContext{Context: c, App: app}, rec
}

func seedTopicWithOpinions(t *testing.T, store *memory.Storage, topicID string, count int) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateTopic(ctx, &common.Topic{ID: topicID, Title: "Transit", Phase: "open"}); err != nil {
		t.Fatalf("failed to create topic: %v", err)
	}
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		op := &common.Opinion{
			ID:          fmt.Sprintf("op-%d", i),
			TopicID:     topicID,
			Content:     fmt.Sprintf("opinion number %d about transit", i),
			Stance:      common.StanceFor,
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.InsertOpinion(ctx, op); err != nil {
			t.Fatalf("failed to insert opinion: %v", err)
		}
	}
}

func TestAnalyzeTopicDefaultsBatchSize(t *testing.T) {
	store, app := newTestApp(t)
	seedTopicWithOpinions(t, store, "topic-1", 3)

	c, rec := newRequestContext(t, app, http.MethodPost, "{}")
	c.SetPath("/api/topics/:id/analyze")
	c.SetParamNames("id")
	c.SetParamValues("topic-1")

	if err := routes.AnalyzeTopicHandler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		AnalyzedThisBatch   int `json:"analyzedThisBatch"`
		RemainingUnanalyzed int `json:"remainingUnanalyzed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	// An omitted batch_size falls back to the worker's default, which
	// covers all three opinions in one run.
	if resp.AnalyzedThisBatch != 3 {
		t.Errorf("analyzedThisBatch = %d, want 3", resp.AnalyzedThisBatch)
	}
	if resp.RemainingUnanalyzed != 0 {
		t.Errorf("remainingUnanalyzed = %d, want 0", resp.RemainingUnanalyzed)
	}
}

func TestAnalyzeTopicUnknownTopic(t *testing.T) {
	_, app := newTestApp(t)

	c, rec := newRequestContext(t, app, http.MethodPost, "{}")
	c.SetPath("/api/topics/:id/analyze")
	c.SetParamNames("id")
	c.SetParamValues("nope")

	if err := routes.AnalyzeTopicHandler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetSnapshotsWithoutArchive(t *testing.T) {
	_, app := newTestApp(t)

	c, rec := newRequestContext(t, app, http.MethodGet, "")
	c.SetPath("/api/topics/:id/snapshots")
	c.SetParamNames("id")
	c.SetParamValues("topic-1")

	if err := routes.GetSnapshotsHandler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
