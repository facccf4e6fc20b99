package api

import (
	"net/http"
	"time"

	"inkwell/internal/event"
	"inkwell/internal/logging"
	"inkwell/internal/metrics"
	"inkwell/internal/workspace"
)

type RouteOptions struct {
	Workspace      Workspace
	Events         *event.Bus[workspace.ChangeEvent]
	Recent         RecentRoots
	Watchers       WatcherMetrics
	Registry       *metrics.Registry
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

func RegisterRoutes(mux *http.ServeMux, options RouteOptions) {
	logger := options.Logger
	rest := &RestHandler{
		Workspace: options.Workspace,
		Recent:    options.Recent,
		Watchers:  options.Watchers,
		Registry:  options.Registry,
		Logger:    logger,
		StartedAt: time.Now().UTC(),
	}
	if options.Events != nil {
		rest.Events = options.Events
		rest.History = options.Events
	}
	wrap := func(handler http.Handler) http.Handler {
		return loggingMiddleware(logger, handler)
	}
	route := func(pattern string, handler apiHandler) {
		mux.Handle(pattern, wrap(restHandler(options.AuthToken, logger, handler)))
	}

	var events event.TypedSubscriber[workspace.ChangeEvent]
	if options.Events != nil {
		events = options.Events
	}
	mux.Handle("/ws/workspace", wrap(securityHeadersMiddleware(cacheControlNoStore, &WorkspaceEventsHandler{
		Workspace:      options.Workspace,
		Bus:            events,
		Logger:         logger,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	})))
	mux.Handle("/ws/logs", wrap(securityHeadersMiddleware(cacheControlNoStore, &LogsHandler{
		Logger:         logger,
		AuthToken:      options.AuthToken,
		AllowedOrigins: options.AllowedOrigins,
	})))

	route("/api/workspace/root", rest.handleRoot)
	route("/api/workspace/snapshot", rest.handleSnapshot)
	route("/api/workspace/entries", rest.handleEntries)
	route("/api/workspace/file", rest.handleFile)
	route("/api/workspace/dir", rest.handleDir)
	route("/api/workspace/path", rest.handlePath)
	route("/api/workspace/rename", rest.handleRename)
	route("/api/workspace/recent", rest.handleRecent)
	route("/api/workspace/changes", rest.handleChanges)
	route("/api/markdown/files", rest.handleMarkdownFiles)
	route("/api/markdown/file", rest.handleMarkdownFile)
	route("/api/status", rest.handleStatus)
	route("/api/metrics", rest.handleMetrics)
	route("/api/logs", rest.handleLogs)
}
