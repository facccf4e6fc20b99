package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"inkwell/internal/logging"
)

const logReplayLimit = 100

type LogsHandler struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type logFilterMessage struct {
	Level string `json:"level"`
}

type levelFilter struct {
	mu    sync.RWMutex
	level logging.Level
}

func (f *levelFilter) Get() logging.Level {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.level
}

func (f *levelFilter) Set(level logging.Level) {
	f.mu.Lock()
	f.level = level
	f.mu.Unlock()
}

func (f *levelFilter) Allows(entry logging.LogEntry) bool {
	minLevel := f.Get()
	if minLevel == "" {
		return true
	}
	return logging.LevelAtLeast(entry.Level, minLevel)
}

// ServeHTTP replays recent entries, then streams new ones. Clients may send
// {"level": "..."} at any time to change the minimum level.
func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !requireWSToken(w, r, h.AuthToken, h.Logger) {
		return
	}
	if h.Logger == nil {
		writeWSError(w, r, nil, nil, wsError{
			Status:  http.StatusServiceUnavailable,
			Message: "log stream unavailable",
		})
		return
	}

	filter := &levelFilter{}
	if rawLevel := r.URL.Query().Get("level"); rawLevel != "" {
		if level, ok := logging.ParseLevel(rawLevel); ok {
			filter.Set(level)
		}
	}

	output, cancel := h.Logger.Subscribe()
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
	defer conn.Close()

	writer, err := startWSWriteLoop(w, r, wsStreamConfig[logging.LogEntry]{
		Conn:           conn,
		AllowedOrigins: h.AllowedOrigins,
		Output:         output,
		Logger:         h.Logger,
		PreWrite: func(conn *websocket.Conn) error {
			return writeLogReplay(conn, h.Logger.Buffer(), filter.Get())
		},
		BuildPayload: func(entry logging.LogEntry) (any, bool) {
			return entry, filter.Allows(entry)
		},
	})
	if err != nil {
		writeWSError(w, r, conn, h.Logger, wsError{
			Status:       http.StatusInternalServerError,
			Message:      "log stream unavailable",
			Err:          err,
			SendEnvelope: true,
		})
		return
	}
	defer writer.Stop()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var payload logFilterMessage
		if err := json.Unmarshal(msg, &payload); err != nil {
			continue
		}
		level, ok := logging.ParseLevel(payload.Level)
		if !ok {
			filter.Set("")
			continue
		}
		filter.Set(level)
	}
}

func writeLogReplay(conn *websocket.Conn, buffer *logging.LogBuffer, minLevel logging.Level) error {
	if conn == nil || buffer == nil {
		return nil
	}
	for _, entry := range buffer.Recent(logReplayLimit, minLevel) {
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return err
		}
		if err := conn.WriteJSON(entry); err != nil {
			return err
		}
	}
	return nil
}
