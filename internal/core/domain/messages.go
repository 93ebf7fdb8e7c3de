package domain

// WorkerOutcome is the status reported by an OCR or GenAI worker.
type WorkerOutcome string

const (
	WorkerCompleted WorkerOutcome = "completed"
	WorkerFailed    WorkerOutcome = "failed"
)

type OCRRequest struct {
	DocumentID       string `json:"document_id"`
	Title            string `json:"title"`
	OriginalFilename string `json:"original_filename"`
	ContentType      string `json:"content_type"`
	FileSize         int64  `json:"file_size"`
	FileBucket       string `json:"file_bucket"`
	FileObjectKey    string `json:"file_object_key"`
}

type OCRResponse struct {
	DocumentID       string        `json:"document_id"`
	Status           WorkerOutcome `json:"status"`
	OCRText          string        `json:"ocr_text,omitempty"`
	OCRTextObjectKey string        `json:"ocr_text_object_key,omitempty"`
	Worker           string        `json:"worker,omitempty"`
	Error            string        `json:"error,omitempty"`
}

type GenAIRequest struct {
	DocumentID string `json:"document_id"`
	OCRText    string `json:"ocr_text"`
}

type GenAIResponse struct {
	DocumentID  string        `json:"document_id"`
	Status      WorkerOutcome `json:"status"`
	SummaryText string        `json:"summary_text,omitempty"`
	Worker      string        `json:"worker,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Outcome classifies how a worker response was handled.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeFailed  Outcome = "failed"
	OutcomeDropped Outcome = "dropped"
	OutcomeStale   Outcome = "stale"
	OutcomeIgnored Outcome = "ignored"
	OutcomeError   Outcome = "error"
)
