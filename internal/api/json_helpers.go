package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const maxRequestBody = 32 << 20

type errorResponse struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, err *apiError) {
	if err == nil {
		return
	}
	code := err.Code
	if code == "" {
		code = errorCodeForStatus(err.Status)
	}
	writeJSON(w, err.Status, errorResponse{
		Message: err.Message,
		Error:   err.Message,
		Code:    code,
		Context: err.Context,
	})
}

// decodeJSONBody decodes a single JSON object and rejects unknown fields.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, target any) *apiError {
	if r.Body == nil {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &apiError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		}
		if errors.Is(err, io.EOF) {
			return &apiError{Status: http.StatusBadRequest, Message: "missing request body"}
		}
		return &apiError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	return nil
}
