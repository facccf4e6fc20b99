package api

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/event"
	"inkwell/internal/logging"
	"inkwell/internal/metrics"
	"inkwell/internal/version"
	"inkwell/internal/watcher"
	"inkwell/internal/workspace"
)

const defaultLogLimit = 200

type statusResponse struct {
	Version    version.Info              `json:"version"`
	Root       *workspace.RootDescriptor `json:"root,omitempty"`
	Watcher    *watcher.Metrics          `json:"watcher,omitempty"`
	Events     *event.Stats              `json:"events,omitempty"`
	Metrics    metrics.Snapshot          `json:"metrics"`
	ServerTime time.Time                 `json:"server_time"`
	Uptime     string                    `json:"uptime,omitempty"`
}

func (h *RestHandler) handleStatus(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	now := time.Now().UTC()
	response := statusResponse{
		Version:    version.Get(),
		Metrics:    h.registry().Snapshot(),
		ServerTime: now,
	}
	if !h.StartedAt.IsZero() {
		response.Uptime = now.Sub(h.StartedAt).Truncate(time.Second).String()
	}
	if h.Workspace != nil {
		if root, err := h.Workspace.RootInfo(); err == nil && root.Path != "" {
			response.Root = &root
		}
	}
	if h.Watchers != nil {
		stats := h.Watchers.Metrics()
		response.Watcher = &stats
	}
	if h.Events != nil {
		stats := h.Events.Stats()
		response.Events = &stats
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	var out bytes.Buffer
	if err := h.registry().WritePrometheus(&out); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "failed to render metrics"}
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Bytes())
	return nil
}

func (h *RestHandler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if h.Logger == nil || h.Logger.Buffer() == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "log buffer unavailable"}
	}

	limit := defaultLogLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
		}
		limit = parsed
	}
	var level logging.Level
	if raw := strings.TrimSpace(r.URL.Query().Get("level")); raw != "" {
		parsed, ok := logging.ParseLevel(raw)
		if !ok {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid level"}
		}
		level = parsed
	}

	writeJSON(w, http.StatusOK, h.Logger.Buffer().Recent(limit, level))
	return nil
}

func (h *RestHandler) registry() *metrics.Registry {
	if h.Registry == nil {
		return metrics.Default
	}
	return h.Registry
}
