package api

import (
	"errors"
	"net/http"

	perrors "github.com/jmgilman/go/errors"

	"inkwell/internal/workspace"
)

func errorCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
	}
	return ""
}

// errorFromDomain maps coded workspace failures onto HTTP statuses. The
// message carries the system error text of the wrapped cause, if any.
func errorFromDomain(err error) *apiError {
	if err == nil {
		return nil
	}
	response := perrors.ToJSON(err)
	status := statusForError(err)
	code := response.Code
	if perrors.GetCode(err) == perrors.CodeUnknown {
		code = errorCodeForStatus(status)
	}
	message := response.Message
	var platformErr perrors.PlatformError
	if errors.As(err, &platformErr) {
		if cause := errors.Unwrap(platformErr); cause != nil {
			message += ": " + cause.Error()
		}
	}
	return &apiError{
		Status:  status,
		Message: message,
		Code:    code,
		Context: response.Context,
	}
}

func statusForError(err error) int {
	switch {
	case workspace.IsValidation(err):
		return http.StatusBadRequest
	case workspace.Code(err) == workspace.CodeRootUnset, workspace.Code(err) == workspace.CodeLockFailed:
		return http.StatusServiceUnavailable
	case perrors.GetCode(err) == perrors.CodeNotFound, workspace.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
