package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/config"
	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/core/ports"
	"github.com/kirillkom/paperless-pipeline/internal/observability/metrics"
)

const serviceName = "paperless-api"

// multipart overhead allowed on top of the configured file size limit
const multipartSlack = 1 << 20

type Router struct {
	cfg      config.Config
	uploader ports.DocumentUploader
	docs     ports.DocumentService
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	uploader ports.DocumentUploader,
	docs ports.DocumentService,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		uploader: uploader,
		docs:     docs,
		metrics:  httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/search", rt.searchDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("PATCH /v1/documents/{id}", rt.renameDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("GET /v1/documents/{id}/status", rt.getDocumentStatus)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, 100*time.Millisecond, rt.onReject)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.onReject)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) onReject(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes+multipartSlack)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			rt.recordUpload("too_large", 0)
			writeError(w, r, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		rt.recordUpload("rejected", 0)
		writeError(w, r, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()
	if rt.cfg.MaxUploadBytes > 0 && fileHeader.Size > rt.cfg.MaxUploadBytes {
		rt.recordUpload("too_large", 0)
		writeError(w, r, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}

	var createdAt time.Time
	if raw := strings.TrimSpace(r.FormValue("created_at")); raw != "" {
		createdAt, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			rt.recordUpload("rejected", 0)
			writeError(w, r, http.StatusBadRequest, "created_at must be RFC 3339")
			return
		}
	}

	summary, err := rt.uploader.Upload(r.Context(), ports.UploadInput{
		Title:       r.FormValue("title"),
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
		CreatedAt:   createdAt,
	})
	if err != nil {
		rt.recordUpload(uploadResult(err), 0)
		writeDomainError(w, r, err)
		return
	}

	rt.recordUpload("accepted", summary.FileSize)
	w.Header().Set("Location", "/v1/documents/"+summary.ID)
	writeJSON(w, http.StatusCreated, summary)
}

func (rt *Router) recordUpload(result string, size int64) {
	if rt.metrics != nil {
		rt.metrics.RecordUpload(serviceName, result, size)
	}
}

func uploadResult(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrTooLarge):
		return "too_large"
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "rejected"
	default:
		return "failed"
	}
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	detail, err := rt.docs.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) getDocumentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := rt.docs.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) renameDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title *string `json:"title"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Title == nil {
		writeError(w, r, http.StatusBadRequest, "title is required")
		return
	}

	summary, err := rt.docs.Rename(r.Context(), r.PathValue("id"), *req.Title)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.docs.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) searchDocuments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	hits, err := rt.docs.Search(r.Context(), query, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": hits,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error":      message,
		"status":     status,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, r, status, message)
}
