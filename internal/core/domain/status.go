package domain

import (
	"fmt"
	"strings"
)

type ProcessingStatus string

const (
	StatusPending         ProcessingStatus = "PENDING"
	StatusOCRProcessing   ProcessingStatus = "OCR_PROCESSING"
	StatusOCRCompleted    ProcessingStatus = "OCR_COMPLETED"
	StatusGenAIProcessing ProcessingStatus = "GENAI_PROCESSING"
	StatusCompleted       ProcessingStatus = "COMPLETED"
	StatusOCRFailed       ProcessingStatus = "OCR_FAILED"
	StatusGenAIFailed     ProcessingStatus = "GENAI_FAILED"
)

var allStatuses = []ProcessingStatus{
	StatusPending,
	StatusOCRProcessing,
	StatusOCRCompleted,
	StatusGenAIProcessing,
	StatusCompleted,
	StatusOCRFailed,
	StatusGenAIFailed,
}

func (s ProcessingStatus) Valid() bool {
	for _, candidate := range allStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// Terminal reports whether no further pipeline transition can leave s.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusOCRFailed || s == StatusGenAIFailed
}

func (s ProcessingStatus) Failed() bool {
	return s == StatusOCRFailed || s == StatusGenAIFailed
}

// AwaitingOCR reports whether an OCR response may still be applied.
func (s ProcessingStatus) AwaitingOCR() bool {
	return s == StatusPending || s == StatusOCRProcessing
}

// AwaitingGenAI reports whether a GenAI response may still be applied.
func (s ProcessingStatus) AwaitingGenAI() bool {
	return s == StatusOCRCompleted || s == StatusGenAIProcessing
}

func ParseStatus(raw string) (ProcessingStatus, error) {
	status := ProcessingStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", WrapError(ErrInvalidInput, "parse processing status", fmt.Errorf("unknown status %q", raw))
	}
	return status, nil
}

// ProcessingState is the closed set of pipeline states. A failure message
// exists only for the two failure variants.
type ProcessingState struct {
	status  ProcessingStatus
	failure string
}

func Pending() ProcessingState { return ProcessingState{status: StatusPending} }

func OCRCompleted() ProcessingState { return ProcessingState{status: StatusOCRCompleted} }

func Completed() ProcessingState { return ProcessingState{status: StatusCompleted} }

func OCRFailed(message string) ProcessingState {
	return ProcessingState{status: StatusOCRFailed, failure: message}
}

func GenAIFailed(message string) ProcessingState {
	return ProcessingState{status: StatusGenAIFailed, failure: message}
}

// RestoreState rebuilds a state from persisted columns. The failure message
// is discarded for non-failure statuses.
func RestoreState(status ProcessingStatus, failure string) (ProcessingState, error) {
	if !status.Valid() {
		return ProcessingState{}, WrapError(ErrInvalidInput, "restore processing state", fmt.Errorf("unknown status %q", status))
	}
	if !status.Failed() {
		failure = ""
	}
	return ProcessingState{status: status, failure: failure}, nil
}

func (s ProcessingState) Status() ProcessingStatus { return s.status }

// Failure returns the recorded error message; it is empty unless the state
// is a failure variant.
func (s ProcessingState) Failure() string { return s.failure }
