package survey

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	surveystore "github.com/zhouzirui/z-survey/backend/internal/service/survey"
)

type fakeService struct {
	details     map[string]surveystore.Detail
	detailCalls int
	responses   []surveystore.ResponseInput
}

func (f *fakeService) List(context.Context) ([]surveystore.Summary, error) {
	out := make([]surveystore.Summary, 0, len(f.details))
	for id, d := range f.details {
		out = append(out, surveystore.Summary{ID: d.ID, Title: d.Title, PublicID: id})
	}
	return out, nil
}

func (f *fakeService) Detail(_ context.Context, publicID string) (surveystore.Detail, error) {
	f.detailCalls++
	d, ok := f.details[publicID]
	if !ok {
		return surveystore.Detail{}, surveystore.ErrSurveyNotFound
	}
	return d, nil
}

func (f *fakeService) Delete(_ context.Context, publicID string) error {
	if _, ok := f.details[publicID]; !ok {
		return surveystore.ErrSurveyNotFound
	}
	delete(f.details, publicID)
	return nil
}

func (f *fakeService) SubmitResponse(_ context.Context, publicID string, in surveystore.ResponseInput) (int64, error) {
	if _, ok := f.details[publicID]; !ok {
		return 0, surveystore.ErrSurveyNotFound
	}
	if len(in.Answers) == 0 {
		return 0, surveystore.ErrInvalidAnswer
	}
	f.responses = append(f.responses, in)
	return int64(len(f.responses)), nil
}

func (f *fakeService) Analyze(_ context.Context, publicID string) (surveystore.Report, error) {
	d, ok := f.details[publicID]
	if !ok {
		return surveystore.Report{}, surveystore.ErrSurveyNotFound
	}
	return surveystore.Report{
		SurveyID:       d.ID,
		PublicID:       publicID,
		Title:          d.Title,
		TotalResponses: len(f.responses),
		Questions: []surveystore.QuestionReport{{
			QuestionID:    1,
			Text:          "Favourite roast?",
			Type:          "text",
			ResponseCount: len(f.responses),
			Insight:       "No responses yet.",
		}},
	}, nil
}

func setupRouter() (*chi.Mux, *fakeService) {
	svc := &fakeService{details: map[string]surveystore.Detail{
		"ab12cd34": {ID: 1, Title: "Coffee", PublicID: "ab12cd34"},
	}}
	r := chi.NewRouter()
	New(svc, nil).RegisterRoutes(r)
	return r, svc
}

func serve(r http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestListSurveys(t *testing.T) {
	r, _ := setupRouter()
	resp := serve(r, http.MethodGet, "/surveys/", nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var summaries []surveystore.Summary
	if err := json.Unmarshal(resp.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(summaries) != 1 || summaries[0].PublicID != "ab12cd34" {
		t.Fatalf("unexpected summaries %+v", summaries)
	}
}

func TestDetailIsCachedUntilDelete(t *testing.T) {
	r, svc := setupRouter()

	for i := 0; i < 2; i++ {
		if resp := serve(r, http.MethodGet, "/surveys/ab12cd34/details", nil); resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.Code)
		}
	}
	if svc.detailCalls != 1 {
		t.Fatalf("expected one store lookup, got %d", svc.detailCalls)
	}

	if resp := serve(r, http.MethodDelete, "/surveys/ab12cd34", nil); resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp := serve(r, http.MethodGet, "/surveys/ab12cd34/details", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}

func TestDeleteUnknownSurvey(t *testing.T) {
	r, _ := setupRouter()
	if resp := serve(r, http.MethodDelete, "/surveys/missing", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestRespond(t *testing.T) {
	r, svc := setupRouter()
	text := "more oat milk"
	payload, _ := json.Marshal(surveystore.ResponseInput{
		RespondentName: "Ada",
		Answers:        []surveystore.AnswerInput{{Question: 1, TextAnswer: &text}},
	})

	resp := serve(r, http.MethodPost, "/surveys/ab12cd34/respond", payload)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	if len(svc.responses) != 1 || svc.responses[0].RespondentName != "Ada" {
		t.Fatalf("unexpected responses %+v", svc.responses)
	}
}

func TestRespondValidation(t *testing.T) {
	r, _ := setupRouter()

	if resp := serve(r, http.MethodPost, "/surveys/ab12cd34/respond", []byte("{")); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", resp.Code)
	}
	if resp := serve(r, http.MethodPost, "/surveys/ab12cd34/respond", []byte(`{"answers":[]}`)); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid answers, got %d", resp.Code)
	}
}

func TestReportJSON(t *testing.T) {
	r, _ := setupRouter()
	resp := serve(r, http.MethodGet, "/surveys/ab12cd34/report", nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var report surveystore.Report
	if err := json.Unmarshal(resp.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Title != "Coffee" || len(report.Questions) != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestReportExcel(t *testing.T) {
	r, _ := setupRouter()
	resp := serve(r, http.MethodGet, "/surveys/ab12cd34/report?format=xlsx", nil)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("Content-Type"); got != xlsxContentType {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := resp.Header().Get("Content-Disposition"); got != `attachment; filename="survey-ab12cd34-report.xlsx"` {
		t.Fatalf("unexpected disposition %q", got)
	}

	f, err := excelize.OpenReader(bytes.NewReader(resp.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	title, err := f.GetCellValue("Summary", "B1")
	if err != nil || title != "Coffee" {
		t.Fatalf("unexpected title %q (err %v)", title, err)
	}
}

func TestReportErrors(t *testing.T) {
	r, _ := setupRouter()

	if resp := serve(r, http.MethodGet, "/surveys/ab12cd34/report?format=pdf", nil); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported format, got %d", resp.Code)
	}
	if resp := serve(r, http.MethodGet, "/surveys/missing/report", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
