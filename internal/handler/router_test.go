package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/zhouzirui/z-survey/backend/internal/config"
	"github.com/zhouzirui/z-survey/backend/internal/model/survey"
	surveyService "github.com/zhouzirui/z-survey/backend/internal/service/survey"
)

func newStore(t *testing.T) *surveyService.Store {
	t.Helper()
	db, err := surveyService.Open(config.StoreConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "router.db"),
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return surveyService.NewStore(db, zap.NewNop())
}

func TestHealthzReportsAIAvailability(t *testing.T) {
	router := NewRouter(newStore(t), nil, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ai_available"] != false {
		t.Fatalf("expected ai_available=false, got %v", body["ai_available"])
	}
}

func TestSurveyRoutesMounted(t *testing.T) {
	store := newStore(t)
	rec, err := store.Save(t.Context(), survey.Draft{
		Title: "Coffee",
		Questions: []survey.Question{
			{Text: "Anything else?", Type: survey.QuestionText},
		},
	}, "coffee habits")
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	router := NewRouter(store, nil, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/surveys/"+rec.PublicID+"/details", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS header, got %q", got)
	}
}
