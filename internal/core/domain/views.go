package domain

import "time"

type DocumentSummary struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	OriginalFilename string           `json:"original_filename"`
	FileSize         int64            `json:"file_size"`
	ContentType      string           `json:"content_type"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	CreatedAt        time.Time        `json:"created_at"`
}

type DocumentDetail struct {
	DocumentSummary
	FileBucket       string     `json:"file_bucket"`
	FileObjectKey    string     `json:"file_object_key"`
	DownloadURL      string     `json:"download_url,omitempty"`
	SummaryText      string     `json:"summary_text,omitempty"`
	ProcessingError  string     `json:"processing_error,omitempty"`
	OCRProcessedAt   *time.Time `json:"ocr_processed_at,omitempty"`
	GenAIProcessedAt *time.Time `json:"genai_processed_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type WorkerStatus struct {
	ID               string           `json:"id"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ProcessingError  string           `json:"processing_error,omitempty"`
}

// SearchDocument is the projection of a document kept in the search index.
type SearchDocument struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	OriginalFilename string           `json:"original_filename"`
	ContentType      string           `json:"content_type"`
	FileSize         int64            `json:"file_size"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ProcessingError  string           `json:"processing_error,omitempty"`
	OCRText          string           `json:"ocr_text,omitempty"`
	SummaryText      string           `json:"summary_text,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

type SearchHit struct {
	DocumentID       string           `json:"document_id"`
	Title            string           `json:"title"`
	OriginalFilename string           `json:"original_filename"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	Score            float64          `json:"score"`
}

func (d *Document) ToSummary() DocumentSummary {
	return DocumentSummary{
		ID:               d.ID,
		Title:            d.Title,
		OriginalFilename: d.OriginalFilename,
		FileSize:         d.FileSize,
		ContentType:      d.ContentType,
		ProcessingStatus: d.Status(),
		CreatedAt:        d.CreatedAt,
	}
}

func (d *Document) ToDetail(downloadURL string) DocumentDetail {
	return DocumentDetail{
		DocumentSummary:  d.ToSummary(),
		FileBucket:       d.File.Bucket,
		FileObjectKey:    d.File.Key,
		DownloadURL:      downloadURL,
		SummaryText:      d.Summary,
		ProcessingError:  d.State.Failure(),
		OCRProcessedAt:   d.OCRProcessedAt,
		GenAIProcessedAt: d.GenAIProcessedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func (d *Document) ToWorkerStatus() WorkerStatus {
	return WorkerStatus{
		ID:               d.ID,
		ProcessingStatus: d.Status(),
		ProcessingError:  d.State.Failure(),
	}
}

func (d *Document) ToSearchDocument() SearchDocument {
	text, _ := d.OCR.Inline()
	return SearchDocument{
		ID:               d.ID,
		Title:            d.Title,
		OriginalFilename: d.OriginalFilename,
		ContentType:      d.ContentType,
		FileSize:         d.FileSize,
		ProcessingStatus: d.Status(),
		ProcessingError:  d.State.Failure(),
		OCRText:          text,
		SummaryText:      d.Summary,
		CreatedAt:        d.CreatedAt,
	}
}
