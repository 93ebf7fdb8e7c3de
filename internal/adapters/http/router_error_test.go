package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/paperless-pipeline/internal/config"
	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
)

func TestDomainErrorsMapToStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", domain.WrapError(domain.ErrInvalidInput, "get", errors.New("bad id")), http.StatusBadRequest},
		{"not found", domain.WrapError(domain.ErrDocumentNotFound, "get", errors.New("id=missing")), http.StatusNotFound},
		{"stale", domain.WrapError(domain.ErrStaleTransition, "transition", errors.New("moved on")), http.StatusConflict},
		{"temporary", domain.WrapError(domain.ErrTemporary, "minio get", errors.New("timeout")), http.StatusServiceUnavailable},
		{"too large", domain.WrapError(domain.ErrTooLarge, "validate upload", errors.New("file larger than 1 bytes")), http.StatusRequestEntityTooLarge},
		{"unsupported", domain.WrapError(domain.ErrUnsupported, "search", errors.New("no index")), http.StatusNotImplemented},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(config.Config{}, nil, &docsFake{err: tc.err})

			req := httptest.NewRequest(http.MethodGet, "/v1/documents/"+routerTestID, nil)
			res := httptest.NewRecorder()
			handler.ServeHTTP(res, req)

			if res.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, res.Code)
			}
			var body map[string]any
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["error"] == "" || body["request_id"] == "" {
				t.Fatalf("unexpected error body %v", body)
			}
		})
	}
}

func TestGetStatusReturnsWorkerStatus(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/"+routerTestID+"/status", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body map[string]any
	_ = json.NewDecoder(res.Body).Decode(&body)
	if body["processing_status"] != "OCR_FAILED" || body["processing_error"] != "Unreadable scan" {
		t.Fatalf("unexpected status body %v", body)
	}
}

func TestRenameRequiresTitle(t *testing.T) {
	docs := &docsFake{}
	handler := newTestHandler(config.Config{}, nil, docs)

	req := httptest.NewRequest(http.MethodPatch, "/v1/documents/"+routerTestID, bytes.NewBufferString(`{}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodPatch, "/v1/documents/"+routerTestID, bytes.NewBufferString(`{"title":"Receipt"}`))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK || docs.renamedTo != "Receipt" {
		t.Fatalf("expected rename to succeed, got %d %q", res.Code, docs.renamedTo)
	}
}

func TestDeleteReturns204(t *testing.T) {
	docs := &docsFake{}
	handler := newTestHandler(config.Config{}, nil, docs)

	req := httptest.NewRequest(http.MethodDelete, "/v1/documents/"+routerTestID, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNoContent || docs.deleted != routerTestID {
		t.Fatalf("expected 204 and delete call, got %d %q", res.Code, docs.deleted)
	}
}

func TestSearchParsesQueryAndLimit(t *testing.T) {
	docs := &docsFake{}
	handler := newTestHandler(config.Config{}, nil, docs)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/search?q=invoice&limit=5", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK || docs.query != "invoice" || docs.limit != 5 {
		t.Fatalf("unexpected search handling %d %q %d", res.Code, docs.query, docs.limit)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/documents/search?q=invoice&limit=abc", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", res.Code)
	}
}

func TestUnknownMethodIsRejected(t *testing.T) {
	handler := newTestHandler(config.Config{}, nil, nil)

	req := httptest.NewRequest(http.MethodPut, "/v1/documents/"+routerTestID, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
