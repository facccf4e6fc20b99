package api

import (
	"net/http"

	"inkwell/internal/markdown"
)

func (h *RestHandler) handleMarkdownFiles(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	root := r.URL.Query().Get("root")
	if root == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "missing root"}
	}
	files, err := markdown.ListFiles(root)
	if err != nil {
		return errorFromDomain(err)
	}
	writeJSON(w, http.StatusOK, files)
	return nil
}

func (h *RestHandler) handleMarkdownFile(w http.ResponseWriter, r *http.Request) *apiError {
	switch r.Method {
	case http.MethodGet:
		path := r.URL.Query().Get("path")
		content, err := markdown.ReadFile(path)
		if err != nil {
			return errorFromDomain(err)
		}
		writeJSON(w, http.StatusOK, fileResponse{Path: path, Content: content})
		return nil
	case http.MethodPut:
		var request writeFileRequest
		if apiErr := decodeJSONBody(w, r, &request); apiErr != nil {
			return apiErr
		}
		if err := markdown.WriteFile(request.Path, request.Content); err != nil {
			return errorFromDomain(err)
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
		return nil
	default:
		return methodNotAllowed(w, "GET, PUT")
	}
}
