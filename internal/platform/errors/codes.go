// Package errors provides structured domain errors with transport mapping.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeSessionNotFound      Code = "SESSION_NOT_FOUND"
	CodeSessionEnded         Code = "SESSION_ENDED"
	CodeSessionIDRequired    Code = "SESSION_ID_REQUIRED"
	CodeSessionViewerLimit   Code = "SESSION_VIEWER_LIMIT"
	CodeSessionContentLength Code = "SESSION_CONTENT_TOO_LONG"

	// Command errors
	CodeCommandInvalidPayload Code = "COMMAND_INVALID_PAYLOAD"
	CodeCommandUnsupported    Code = "COMMAND_UNSUPPORTED"
	CodeCommandNotAttached    Code = "COMMAND_NOT_ATTACHED"
	CodeCommandRateLimited    Code = "COMMAND_RATE_LIMITED"

	// Viewer errors
	CodeViewerTokenMissing Code = "VIEWER_TOKEN_MISSING"
	CodeViewerTokenInvalid Code = "VIEWER_TOKEN_INVALID"
	CodeViewerTokenExpired Code = "VIEWER_TOKEN_EXPIRED"

	// Archive errors
	CodeArchiveNotFound Code = "ARCHIVE_NOT_FOUND"
)

// WireCode returns the code reported in transport error frames.
func (c Code) WireCode() string {
	switch c {
	case CodeSessionIDRequired,
		CodeSessionContentLength,
		CodeCommandInvalidPayload,
		CodeCommandUnsupported:
		return "INVALID_ARGUMENT"

	case CodeSessionEnded,
		CodeCommandNotAttached:
		return "FAILED_PRECONDITION"

	case CodeSessionNotFound,
		CodeArchiveNotFound:
		return "NOT_FOUND"

	case CodeSessionViewerLimit,
		CodeCommandRateLimited:
		return "RESOURCE_EXHAUSTED"

	case CodeViewerTokenMissing,
		CodeViewerTokenInvalid,
		CodeViewerTokenExpired:
		return "UNAUTHENTICATED"

	default:
		return "INTERNAL"
	}
}

// HTTPStatus returns the HTTP status matching the code.
func (c Code) HTTPStatus() int {
	switch c.WireCode() {
	case "INVALID_ARGUMENT":
		return http.StatusBadRequest
	case "FAILED_PRECONDITION":
		return http.StatusConflict
	case "NOT_FOUND":
		return http.StatusNotFound
	case "RESOURCE_EXHAUSTED":
		return http.StatusTooManyRequests
	case "UNAUTHENTICATED":
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
