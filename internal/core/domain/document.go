package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ObjectLocator addresses a blob in the object store.
type ObjectLocator struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (l ObjectLocator) IsZero() bool {
	return l.Bucket == "" && l.Key == ""
}

func (l ObjectLocator) String() string {
	return l.Bucket + "/" + l.Key
}

// OCRText holds extracted text either inline or as a reference to a blob in
// the OCR text bucket. At most one of the two is ever set.
type OCRText struct {
	inline    string
	objectKey string
}

func InlineOCRText(text string) OCRText {
	return OCRText{inline: text}
}

func ReferencedOCRText(objectKey string) OCRText {
	return OCRText{objectKey: objectKey}
}

// RestoreOCRText rebuilds the representation from persisted columns.
func RestoreOCRText(inline, objectKey string) (OCRText, error) {
	if inline != "" && objectKey != "" {
		return OCRText{}, WrapError(ErrInvalidInput, "restore ocr text", errors.New("both inline text and object key are set"))
	}
	return OCRText{inline: inline, objectKey: objectKey}, nil
}

func (t OCRText) Inline() (string, bool) {
	return t.inline, t.inline != ""
}

func (t OCRText) ObjectKey() (string, bool) {
	return t.objectKey, t.objectKey != ""
}

func (t OCRText) IsEmpty() bool {
	return t.inline == "" && t.objectKey == ""
}

type Document struct {
	ID               string
	Title            string
	OriginalFilename string
	ContentType      string
	FileSize         int64
	File             ObjectLocator
	State            ProcessingState
	OCR              OCRText
	Summary          string
	CreatedAt        time.Time
	OCRProcessedAt   *time.Time
	GenAIProcessedAt *time.Time
	UpdatedAt        time.Time
}

func (d *Document) Status() ProcessingStatus {
	return d.State.Status()
}

// Transitions below are pure: they return a modified copy and leave the
// receiver untouched. Each one checks that the current status accepts it.

func (d *Document) WithOCRText(text string, at time.Time) (*Document, error) {
	if !d.Status().AwaitingOCR() {
		return nil, staleTransition("apply ocr text", d)
	}
	if text == "" {
		return nil, WrapError(ErrInvalidInput, "apply ocr text", errors.New("ocr text is empty"))
	}
	next := *d
	next.State = OCRCompleted()
	next.OCR = InlineOCRText(text)
	next.OCRProcessedAt = timePtr(at)
	next.UpdatedAt = at
	return &next, nil
}

func (d *Document) WithOCRFailure(message string, at time.Time) (*Document, error) {
	if !d.Status().AwaitingOCR() {
		return nil, staleTransition("apply ocr failure", d)
	}
	next := *d
	next.State = OCRFailed(message)
	next.OCR = OCRText{}
	next.OCRProcessedAt = nil
	next.Summary = ""
	next.GenAIProcessedAt = nil
	next.UpdatedAt = at
	return &next, nil
}

func (d *Document) WithSummary(summary string, at time.Time) (*Document, error) {
	if !d.Status().AwaitingGenAI() {
		return nil, staleTransition("apply summary", d)
	}
	if strings.TrimSpace(summary) == "" {
		return nil, WrapError(ErrInvalidInput, "apply summary", errors.New("summary is empty"))
	}
	next := *d
	next.State = Completed()
	next.Summary = summary
	next.GenAIProcessedAt = timePtr(at)
	next.UpdatedAt = at
	return &next, nil
}

func (d *Document) WithGenAIFailure(message string, at time.Time) (*Document, error) {
	if !d.Status().AwaitingGenAI() {
		return nil, staleTransition("apply genai failure", d)
	}
	next := *d
	next.State = GenAIFailed(message)
	next.Summary = ""
	next.GenAIProcessedAt = nil
	next.UpdatedAt = at
	return &next, nil
}

func (d *Document) WithTitle(title string, at time.Time) (*Document, error) {
	title = strings.TrimSpace(title)
	if err := ValidateTitle(title); err != nil {
		return nil, err
	}
	next := *d
	next.Title = title
	next.UpdatedAt = at
	return &next, nil
}

const MaxTitleLength = 255

func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return WrapError(ErrInvalidInput, "validate title", errors.New("title is required"))
	}
	if len([]rune(title)) > MaxTitleLength {
		return WrapError(ErrInvalidInput, "validate title", fmt.Errorf("title longer than %d characters", MaxTitleLength))
	}
	return nil
}

func staleTransition(operation string, d *Document) error {
	return WrapError(ErrStaleTransition, operation, fmt.Errorf("document %s is %s", d.ID, d.Status()))
}

func timePtr(t time.Time) *time.Time {
	return &t
}
