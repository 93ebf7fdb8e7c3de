package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
	"github.com/kirillkom/paperless-pipeline/internal/infrastructure/resilience"
)

const sparseVectorName = "text"

// Client maintains a lexical search index in a Qdrant collection. Each
// document is one point keyed by its id, with a sparse term vector built from
// its title, filename, summary and OCR text.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

type statusError struct {
	operation  string
	statusCode int
	body       string
}

func (e *statusError) Error() string {
	if e.body != "" {
		return fmt.Sprintf("qdrant %s status: %d: %s", e.operation, e.statusCode, e.body)
	}
	return fmt.Sprintf("qdrant %s status: %d", e.operation, e.statusCode)
}

var classifyQdrantError = resilience.TransientClassifier(func(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.statusCode >= http.StatusInternalServerError || statusErr.statusCode == http.StatusTooManyRequests
	}
	return false
})

func (c *Client) Upsert(ctx context.Context, doc domain.SearchDocument) error {
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}

	type point struct {
		ID      string                  `json:"id"`
		Vector  map[string]sparseVector `json:"vector"`
		Payload map[string]any          `json:"payload"`
	}
	body := map[string]any{
		"points": []point{{
			ID:     doc.ID,
			Vector: map[string]sparseVector{sparseVectorName: encodeSparseDocument(doc)},
			Payload: map[string]any{
				"title":             doc.Title,
				"original_filename": doc.OriginalFilename,
				"content_type":      doc.ContentType,
				"file_size":         doc.FileSize,
				"processing_status": string(doc.ProcessingStatus),
				"processing_error":  doc.ProcessingError,
				"summary_text":      doc.SummaryText,
				"created_at":        doc.CreatedAt.UTC().Format(time.RFC3339),
			},
		}},
	}
	return c.call(ctx, "upsert", http.MethodPut, "/points?wait=true", body, nil)
}

func (c *Client) UpdateStatus(ctx context.Context, id string, status domain.ProcessingStatus, processingError string) error {
	if err := c.ensureCollection(ctx); err != nil {
		return err
	}
	body := map[string]any{
		"payload": map[string]any{
			"processing_status": string(status),
			"processing_error":  processingError,
		},
		"points": []string{id},
	}
	return c.call(ctx, "set_payload", http.MethodPost, "/points/payload?wait=true", body, nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	body := map[string]any{"points": []string{id}}
	err := c.call(ctx, "delete", http.MethodPost, "/points/delete?wait=true", body, nil)
	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.statusCode == http.StatusNotFound {
		return nil
	}
	return err
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	vector := encodeSparseQuery(query)
	if len(vector.Indices) == 0 {
		return []domain.SearchHit{}, nil
	}
	if err := c.ensureCollection(ctx); err != nil {
		return nil, err
	}

	body := map[string]any{
		"vector": map[string]any{
			"name":   sparseVectorName,
			"vector": vector,
		},
		"limit":        limit,
		"with_payload": []string{"title", "original_filename", "processing_status"},
	}
	var searchResp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := c.call(ctx, "search", http.MethodPost, "/points/search", body, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.SearchHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.SearchHit{
			DocumentID:       fmt.Sprintf("%v", r.ID),
			Title:            getStringPayload(r.Payload, "title"),
			OriginalFilename: getStringPayload(r.Payload, "original_filename"),
			ProcessingStatus: domain.ProcessingStatus(getStringPayload(r.Payload, "processing_status")),
			Score:            r.Score,
		})
	}
	return out, nil
}

// call sends one JSON request under the resilience executor and decodes the
// response into out when out is non-nil.
func (c *Client) call(ctx context.Context, operation, method, path string, reqBody, out any) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	url := fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, path)

	err = resilience.Run(ctx, c.executor, "qdrant."+operation, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return newStatusError(operation, resp)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, classifyQdrantError)
	return resilience.WrapTemporary("qdrant "+operation, err, classifyQdrantError)
}

func (c *Client) ensureCollection(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredCollection {
		return nil
	}

	reqBody := map[string]any{
		"sparse_vectors": map[string]any{
			sparseVectorName: map[string]any{"modifier": "idf"},
		},
	}
	err := c.call(ctx, "ensure_collection", http.MethodPut, "", reqBody, nil)
	// 409 when the collection already exists.
	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.statusCode == http.StatusConflict {
		err = nil
	}
	if err != nil {
		return err
	}
	c.ensuredCollection = true
	return nil
}

func newStatusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &statusError{
		operation:  operation,
		statusCode: resp.StatusCode,
		body:       strings.TrimSpace(string(body)),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
