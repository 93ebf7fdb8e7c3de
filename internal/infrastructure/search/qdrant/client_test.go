package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
)

const qdrantTestID = "3b0c8f0e-5d6a-4b1e-9c2d-1f0e2a3b4c5d"

func TestUpsertEnsuresCollectionOnce(t *testing.T) {
	var ensureCalls int32
	var mu sync.Mutex
	var upserted map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			atomic.AddInt32(&ensureCalls, 1)
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if _, ok := body["sparse_vectors"]; !ok {
				t.Errorf("expected sparse vector config, got %v", body)
			}
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs/points":
			mu.Lock()
			_ = json.NewDecoder(r.Body).Decode(&upserted)
			mu.Unlock()
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", nil)
	doc := domain.SearchDocument{
		ID:               qdrantTestID,
		Title:            "Invoice",
		OriginalFilename: "invoice.pdf",
		ProcessingStatus: domain.StatusOCRCompleted,
		OCRText:          "Total: $42",
		CreatedAt:        time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC),
	}

	for i := 0; i < 2; i++ {
		if err := client.Upsert(context.Background(), doc); err != nil {
			t.Fatalf("Upsert() #%d error = %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	points := upserted["points"].([]any)
	point := points[0].(map[string]any)
	if point["id"] != qdrantTestID {
		t.Fatalf("expected point id = document id, got %v", point["id"])
	}
	payload := point["payload"].(map[string]any)
	if payload["processing_status"] != "OCR_COMPLETED" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if _, ok := point["vector"].(map[string]any)["text"]; !ok {
		t.Fatalf("expected named sparse vector, got %v", point["vector"])
	}
}

func TestEnsureCollectionAcceptsConflict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			http.Error(w, "already exists", http.StatusConflict)
		case r.URL.Path == "/collections/docs/points/payload":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", nil)
	if err := client.UpdateStatus(context.Background(), qdrantTestID, domain.StatusOCRFailed, "boom"); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/docs" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := New(server.URL, "docs", nil)
	err := client.Upsert(context.Background(), domain.SearchDocument{ID: qdrantTestID, Title: "a"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected 5xx to be temporary, got %v", err)
	}
}

func TestSearchDecodesHits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/docs":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/collections/docs/points/search":
			var body struct {
				Vector struct {
					Name string `json:"name"`
				} `json:"vector"`
				Limit int `json:"limit"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Vector.Name != "text" || body.Limit != 5 {
				t.Errorf("unexpected search body %+v", body)
			}
			_, _ = w.Write([]byte(`{"result":[{"id":"` + qdrantTestID + `","score":2.5,"payload":{"title":"Invoice","original_filename":"invoice.pdf","processing_status":"COMPLETED"}}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := New(server.URL, "docs", nil)
	hits, err := client.Search(context.Background(), "invoice", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != qdrantTestID || hits[0].ProcessingStatus != domain.StatusCompleted || hits[0].Score != 2.5 {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestSearchWithoutTermsSkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))
	defer server.Close()

	hits, err := New(server.URL, "docs", nil).Search(context.Background(), "!!!", 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected empty result, got %v %v", hits, err)
	}
}

func TestDeleteIgnoresMissingCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	if err := New(server.URL, "docs", nil).Delete(context.Background(), qdrantTestID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}
