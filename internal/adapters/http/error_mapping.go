package httpadapter

import (
	"net/http"

	"github.com/kirillkom/paperless-pipeline/internal/core/domain"
)

// mapDomainError picks the HTTP status for err and the message shown to the
// client. Server-side failures get a generic message; details stay in the log.
func mapDomainError(err error) (int, string) {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case domain.IsKind(err, domain.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "upload exceeds size limit"
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, "document not found"
	case domain.IsKind(err, domain.ErrStaleTransition):
		return http.StatusConflict, "document changed concurrently, retry"
	case domain.IsKind(err, domain.ErrUnsupported):
		return http.StatusNotImplemented, err.Error()
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable, "dependency temporarily unavailable, retry later"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
