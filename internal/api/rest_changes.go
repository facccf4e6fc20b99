package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/workspace"
)

const defaultChangeLimit = 16

// ChangeHistory is the retained tail of published workspace events.
type ChangeHistory interface {
	History(count int) []workspace.ChangeEvent
}

type changeSummary struct {
	Type       string                   `json:"type"`
	Source     string                   `json:"source"`
	Root       workspace.RootDescriptor `json:"root"`
	EntryCount int                      `json:"entry_count"`
	Timestamp  time.Time                `json:"timestamp"`
}

type changesResponse struct {
	Changes []changeSummary `json:"changes"`
}

// handleChanges lists recent workspace changes, newest first, without their
// catalogs. Clients fetch the snapshot when they need entries.
func (h *RestHandler) handleChanges(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	limit := defaultChangeLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
		}
		limit = parsed
	}

	changes := []changeSummary{}
	if h.History != nil {
		history := h.History.History(limit)
		for i := len(history) - 1; i >= 0; i-- {
			change := history[i]
			changes = append(changes, changeSummary{
				Type:       change.Type(),
				Source:     string(change.Source),
				Root:       change.Catalog.Root,
				EntryCount: len(change.Catalog.Entries),
				Timestamp:  change.Timestamp(),
			})
		}
	}
	writeJSON(w, http.StatusOK, changesResponse{Changes: changes})
	return nil
}
