package errutil

import "net/http"

type CoreStatus string

const (
	StatusRemoteUnavailable   CoreStatus = "REMOTE_UNAVAILABLE"
	StatusRemoteExecution     CoreStatus = "REMOTE_EXECUTION"
	StatusMalformedLine       CoreStatus = "MALFORMED_LINE"
	StatusInconsistentCatalog CoreStatus = "INCONSISTENT_CATALOG"
	StatusPrecondition        CoreStatus = "PRECONDITION"
	StatusSubmission          CoreStatus = "SUBMISSION"
	StatusNotFound            CoreStatus = "NOT_FOUND"
	StatusBadRequest          CoreStatus = "BAD_REQUEST"
	StatusValidationFailed    CoreStatus = "VALIDATION_FAILED"
	StatusForbidden           CoreStatus = "FORBIDDEN"
	StatusInternal            CoreStatus = "INTERNAL"
	StatusUnknown             CoreStatus = "UNKNOWN"
)

// HTTPCode converts the CoreStatus to the HTTP status used by the API layer.
func (s CoreStatus) HTTPCode() int {
	switch s {
	case StatusNotFound:
		return http.StatusNotFound
	case StatusForbidden:
		return http.StatusForbidden
	case StatusBadRequest, StatusValidationFailed:
		return http.StatusBadRequest
	case StatusPrecondition:
		return http.StatusConflict
	case StatusRemoteUnavailable:
		return http.StatusServiceUnavailable
	case StatusRemoteExecution, StatusSubmission:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
