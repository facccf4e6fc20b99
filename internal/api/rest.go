package api

import (
	"net/http"
	"strings"
	"time"

	"inkwell/internal/event"
	"inkwell/internal/logging"
	"inkwell/internal/metrics"
	"inkwell/internal/watcher"
	"inkwell/internal/workspace"
)

// Workspace is the operation surface served over REST.
type Workspace interface {
	RootInfo() (workspace.RootDescriptor, error)
	Snapshot() (workspace.Catalog, error)
	SetRoot(path *string) (workspace.RootDescriptor, error)
	ListEntries() ([]workspace.Entry, error)
	ReadFile(path string) (string, error)
	WriteFile(path, content string) error
	CreateFile(path string) error
	CreateDir(path string) error
	DeletePath(path string) error
	RenamePath(from, to string) error
}

type RecentRoots interface {
	RecentRoots() []string
}

type WatcherMetrics interface {
	Metrics() watcher.Metrics
}

type BusStats interface {
	Stats() event.Stats
}

type RestHandler struct {
	Workspace Workspace
	Recent    RecentRoots
	Watchers  WatcherMetrics
	Events    BusStats
	History   ChangeHistory
	Registry  *metrics.Registry
	Logger    *logging.Logger
	StartedAt time.Time
}

type rootRequest struct {
	Path *string `json:"path"`
}

type pathRequest struct {
	Path string `json:"path"`
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type renameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type fileResponse struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type recentResponse struct {
	Roots []string `json:"roots"`
}

func (h *RestHandler) requireWorkspace() *apiError {
	if h.Workspace == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "workspace unavailable"}
	}
	return nil
}

func (h *RestHandler) handleRoot(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireWorkspace(); err != nil {
		return err
	}
	switch r.Method {
	case http.MethodGet:
		root, err := h.Workspace.RootInfo()
		if err != nil {
			return errorFromDomain(err)
		}
		writeJSON(w, http.StatusOK, root)
		return nil
	case http.MethodPut:
		var request rootRequest
		if apiErr := decodeJSONBody(w, r, &request); apiErr != nil {
			return apiErr
		}
		root, err := h.Workspace.SetRoot(request.Path)
		if err != nil {
			return errorFromDomain(err)
		}
		writeJSON(w, http.StatusOK, root)
		return nil
	default:
		return methodNotAllowed(w, "GET, PUT")
	}
}

func (h *RestHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireWorkspace(); err != nil {
		return err
	}
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	catalog, err := h.Workspace.Snapshot()
	if err != nil {
		return errorFromDomain(err)
	}
	writeJSON(w, http.StatusOK, catalog)
	return nil
}

func (h *RestHandler) handleEntries(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireWorkspace(); err != nil {
		return err
	}
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	entries, err := h.Workspace.ListEntries()
	if err != nil {
		return errorFromDomain(err)
	}
	writeJSON(w, http.StatusOK, entries)
	return nil
}

func (h *RestHandler) handleFile(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireWorkspace(); err != nil {
		return err
	}
	switch r.Method {
	case http.MethodGet:
		path := r.URL.Query().Get("path")
		content, err := h.Workspace.ReadFile(path)
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
		if err := h.Workspace.WriteFile(request.Path, request.Content); err != nil {
			return errorFromDomain(err)
		}
		writeJSON(w, http.StatusOK, okResponse{OK: true})
		return nil
	case http.MethodPost:
		var request pathRequest
		if apiErr := decodeJSONBody(w, r, &request); apiErr != nil {
			return apiErr
		}
		if err := h.Workspace.CreateFile(request.Path); err != nil {
			return errorFromDomain(err)
		}
		writeJSON(w, http.StatusCreated, okResponse{OK: true})
		return nil
	default:
		return methodNotAllowed(w, "GET, PUT, POST")
	}
}

func (h *RestHandler) handleDir(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireWorkspace(); err != nil {
		return err
	}
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	var request pathRequest
	if apiErr := decodeJSONBody(w, r, &request); apiErr != nil {
		return apiErr
	}
	if err := h.Workspace.CreateDir(request.Path); err != nil {
		return errorFromDomain(err)
	}
	writeJSON(w, http.StatusCreated, okResponse{OK: true})
	return nil
}

func (h *RestHandler) handlePath(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireWorkspace(); err != nil {
		return err
	}
	if r.Method != http.MethodDelete {
		return methodNotAllowed(w, "DELETE")
	}
	if err := h.Workspace.DeletePath(r.URL.Query().Get("path")); err != nil {
		return errorFromDomain(err)
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
	return nil
}

func (h *RestHandler) handleRename(w http.ResponseWriter, r *http.Request) *apiError {
	if err := h.requireWorkspace(); err != nil {
		return err
	}
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	var request renameRequest
	if apiErr := decodeJSONBody(w, r, &request); apiErr != nil {
		return apiErr
	}
	if err := h.Workspace.RenamePath(request.From, request.To); err != nil {
		return errorFromDomain(err)
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
	return nil
}

func (h *RestHandler) handleRecent(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	roots := []string{}
	if h.Recent != nil {
		for _, root := range h.Recent.RecentRoots() {
			if strings.TrimSpace(root) != "" {
				roots = append(roots, root)
			}
		}
	}
	writeJSON(w, http.StatusOK, recentResponse{Roots: roots})
	return nil
}
