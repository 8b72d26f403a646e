// Package survey exposes saved surveys to collaborators over REST.
package survey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	surveystore "github.com/zhouzirui/z-survey/backend/internal/service/survey"
	"github.com/zhouzirui/z-survey/backend/pkg/utils"
)

// Service is the slice of the survey store the REST surface needs.
type Service interface {
	List(ctx context.Context) ([]surveystore.Summary, error)
	Detail(ctx context.Context, publicID string) (surveystore.Detail, error)
	Delete(ctx context.Context, publicID string) error
	SubmitResponse(ctx context.Context, publicID string, in surveystore.ResponseInput) (int64, error)
	Analyze(ctx context.Context, publicID string) (surveystore.Report, error)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handler 问卷 REST 处理器。
type Handler struct {
	svc     Service
	details *cache.Cache
	logger  *zap.Logger
}

// New 创建问卷处理器。Detail lookups are cached for ten minutes.
func New(svc Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		svc:     svc,
		details: cache.New(10*time.Minute, 20*time.Minute),
		logger:  logger.With(zap.String("component", "survey_api")),
	}
}

// RegisterRoutes 注册问卷相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/surveys", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Get("/{publicID}/details", h.handleDetail)
		r.Delete("/{publicID}", h.handleDelete)
		r.Post("/{publicID}/respond", h.handleRespond)
		r.Get("/{publicID}/report", h.handleReport)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.List(r.Context())
	if err != nil {
		h.logger.Error("list surveys failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to list surveys")
		return
	}
	utils.RespondJSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	publicID := chi.URLParam(r, "publicID")

	if cached, ok := h.details.Get(publicID); ok {
		utils.RespondJSON(w, http.StatusOK, cached.(surveystore.Detail))
		return
	}

	detail, err := h.svc.Detail(r.Context(), publicID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	h.details.Set(publicID, detail, cache.DefaultExpiration)
	utils.RespondJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	publicID := chi.URLParam(r, "publicID")

	if err := h.svc.Delete(r.Context(), publicID); err != nil {
		h.respondStoreError(w, err)
		return
	}

	h.details.Delete(publicID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRespond(w http.ResponseWriter, r *http.Request) {
	publicID := chi.URLParam(r, "publicID")

	var payload surveystore.ResponseInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.svc.SubmitResponse(r.Context(), publicID, payload)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// handleReport 返回统计报告。format=xlsx 时导出 Excel 文件，默认 JSON。
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	publicID := chi.URLParam(r, "publicID")

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "xlsx" {
		utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("unsupported report format %q", format))
		return
	}

	report, err := h.svc.Analyze(r.Context(), publicID)
	if err != nil {
		h.respondStoreError(w, err)
		return
	}

	if format != "xlsx" {
		utils.RespondJSON(w, http.StatusOK, report)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteExcel(&buf); err != nil {
		h.logger.Error("render report failed", zap.String("public_id", publicID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="survey-%s-report.xlsx"`, publicID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, surveystore.ErrSurveyNotFound):
		utils.RespondError(w, http.StatusNotFound, "survey not found")
	case errors.Is(err, surveystore.ErrInvalidAnswer):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("survey store failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
