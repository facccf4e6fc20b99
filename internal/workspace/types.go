package workspace

import "time"

type RootKind string

const (
	RootInternal RootKind = "internal"
	RootExternal RootKind = "external"
)

// RootDescriptor names the active root. Kind only tags provenance.
type RootDescriptor struct {
	Kind RootKind `json:"kind"`
	Path string   `json:"path"`
}

type EntryKind string

const (
	EntryFile   EntryKind = "file"
	EntryFolder EntryKind = "folder"
)

type Entry struct {
	RelativePath string    `json:"path"`
	DisplayName  string    `json:"name"`
	Kind         EntryKind `json:"kind"`
}

type Catalog struct {
	Root    RootDescriptor `json:"root"`
	Entries []Entry        `json:"entries"`
}

const EventWorkspaceChanged = "workspace_changed"

type ChangeSource string

const (
	SourceOperation ChangeSource = "operation"
	SourceWatcher   ChangeSource = "watcher"
)

// ChangeEvent tells observers to re-fetch; it carries the catalog scanned
// after the change, never a delta.
type ChangeEvent struct {
	EventType  string
	Catalog    Catalog
	Source     ChangeSource
	OccurredAt time.Time
}

func NewChangeEvent(catalog Catalog, source ChangeSource) ChangeEvent {
	return ChangeEvent{
		EventType:  EventWorkspaceChanged,
		Catalog:    catalog,
		Source:     source,
		OccurredAt: time.Now().UTC(),
	}
}

func (e ChangeEvent) Type() string {
	return e.EventType
}

func (e ChangeEvent) Timestamp() time.Time {
	return e.OccurredAt
}
