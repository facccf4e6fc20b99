package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"inkwell/internal/event"
	"inkwell/internal/logging"
	"inkwell/internal/workspace"
)

const snapshotEventType = "workspace_snapshot"

type WorkspaceEventsHandler struct {
	Workspace      Workspace
	Bus            event.TypedSubscriber[workspace.ChangeEvent]
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type workspaceEventPayload struct {
	Type      string                   `json:"type"`
	Source    string                   `json:"source"`
	Root      workspace.RootDescriptor `json:"root"`
	Entries   []workspace.Entry        `json:"entries"`
	Timestamp time.Time                `json:"timestamp"`
}

func newWorkspaceEventPayload(change workspace.ChangeEvent) workspaceEventPayload {
	entries := change.Catalog.Entries
	if entries == nil {
		entries = []workspace.Entry{}
	}
	return workspaceEventPayload{
		Type:      change.Type(),
		Source:    string(change.Source),
		Root:      change.Catalog.Root,
		Entries:   entries,
		Timestamp: change.Timestamp(),
	}
}

// ServeHTTP subscribes before taking the initial snapshot, so a change that
// lands between the two is delivered rather than lost.
func (h *WorkspaceEventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Bus == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "workspace events unavailable",
		})
		return
	}

	output, cancel := h.Bus.SubscribeTypes(workspace.EventWorkspaceChanged)
	if output == nil {
		writeWSError(w, r, nil, h.Logger, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "workspace events unavailable",
		})
		return
	}
	defer cancel()

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logWSError(h.Logger, r, wsError{
			Status:  http.StatusBadRequest,
			Message: "websocket upgrade failed",
			Err:     err,
		})
		return
	}

	serveWSStream(w, r, wsStreamConfig[workspace.ChangeEvent]{
		Conn:           conn,
		AllowedOrigins: h.AllowedOrigins,
		Output:         output,
		Logger:         h.Logger,
		PreWrite:       h.writeInitialSnapshot,
		BuildPayload: func(change workspace.ChangeEvent) (any, bool) {
			return newWorkspaceEventPayload(change), true
		},
	})
}

func (h *WorkspaceEventsHandler) writeInitialSnapshot(conn *websocket.Conn) error {
	if h.Workspace == nil {
		return nil
	}
	catalog, err := h.Workspace.Snapshot()
	if err != nil {
		// Nothing to show before the first root is chosen.
		if workspace.Code(err) == workspace.CodeRootUnset {
			return nil
		}
		return err
	}
	payload := newWorkspaceEventPayload(workspace.ChangeEvent{
		EventType:  snapshotEventType,
		Catalog:    catalog,
		OccurredAt: time.Now().UTC(),
	})
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(payload)
}
