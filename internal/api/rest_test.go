package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"inkwell/internal/event"
	"inkwell/internal/logging"
	"inkwell/internal/metrics"
	"inkwell/internal/workspace"
)

type testServer struct {
	URL       string
	Service   *workspace.Service
	Bus       *event.Bus[workspace.ChangeEvent]
	Logger    *logging.Logger
	Registry  *metrics.Registry
	Recent    *recentStub
	Internal  string
	AuthToken string
}

type recentStub struct {
	roots []string
}

func (s *recentStub) RecentRoots() []string {
	return s.roots
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	internal := filepath.Join(t.TempDir(), "internal")
	state, err := workspace.NewState(internal)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	registry := &metrics.Registry{}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(100), logging.LevelDebug, io.Discard)
	bus := event.NewBus[workspace.ChangeEvent](context.Background(), event.BusOptions{
		Name:        "workspace",
		HistorySize: 8,
		Registry:    registry,
		Logger:      logger,
	})
	service, err := workspace.NewService(workspace.ServiceOptions{
		State:     state,
		Publisher: bus,
		Logger:    logger,
		Registry:  registry,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	recent := &recentStub{}

	mux := http.NewServeMux()
	RegisterRoutes(mux, RouteOptions{
		Workspace: service,
		Events:    bus,
		Recent:    recent,
		Registry:  registry,
		Logger:    logger,
		AuthToken: token,
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		_ = service.Close()
		bus.Close()
		logger.Close()
	})
	return &testServer{
		URL:       srv.URL,
		Service:   service,
		Bus:       bus,
		Logger:    logger,
		Registry:  registry,
		Recent:    recent,
		Internal:  internal,
		AuthToken: token,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if s.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.AuthToken)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func (s *testServer) expectStatus(t *testing.T, method, path, body string, status int) []byte {
	t.Helper()
	res, data := s.do(t, method, path, body)
	if res.StatusCode != status {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, status, res.StatusCode, data)
	}
	return data
}

func decodeError(t *testing.T, data []byte) errorResponse {
	t.Helper()
	var payload errorResponse
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("decode error body %q: %v", data, err)
	}
	return payload
}

func TestWorkspaceRoutesBeforeInitialization(t *testing.T) {
	server := newTestServer(t, "")

	data := server.expectStatus(t, http.MethodGet, "/api/workspace/entries", "", http.StatusServiceUnavailable)
	payload := decodeError(t, data)
	if payload.Code != string(workspace.CodeRootUnset) || payload.Message == "" || payload.Error != payload.Message {
		t.Fatalf("unexpected error body: %+v", payload)
	}

	data = server.expectStatus(t, http.MethodGet, "/api/workspace/root", "", http.StatusOK)
	var root workspace.RootDescriptor
	if err := json.Unmarshal(data, &root); err != nil {
		t.Fatalf("decode root: %v", err)
	}
	if root.Path != "" {
		t.Fatalf("expected empty root, got %+v", root)
	}
}

func TestWorkspaceFileLifecycle(t *testing.T) {
	server := newTestServer(t, "")
	server.expectStatus(t, http.MethodPut, "/api/workspace/root", `{"path":null}`, http.StatusOK)

	data := server.expectStatus(t, http.MethodGet, "/api/workspace/entries", "", http.StatusOK)
	var entries []workspace.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("decode entries: %v", err)
	}
	if len(entries) != 1 || entries[0].RelativePath != workspace.DefaultFileName {
		t.Fatalf("expected default file, got %+v", entries)
	}

	server.expectStatus(t, http.MethodPost, "/api/workspace/dir", `{"path":"notes"}`, http.StatusCreated)
	server.expectStatus(t, http.MethodPost, "/api/workspace/file", `{"path":"notes/a.md"}`, http.StatusCreated)
	server.expectStatus(t, http.MethodPut, "/api/workspace/file", `{"path":"notes/a.md","content":"# A"}`, http.StatusOK)

	data = server.expectStatus(t, http.MethodGet, "/api/workspace/file?path=notes/a.md", "", http.StatusOK)
	var file fileResponse
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("decode file: %v", err)
	}
	if file.Content != "# A" || file.Path != "notes/a.md" {
		t.Fatalf("unexpected file: %+v", file)
	}

	server.expectStatus(t, http.MethodPost, "/api/workspace/rename", `{"from":"notes/a.md","to":"archive/a.md"}`, http.StatusOK)
	if _, err := os.Stat(filepath.Join(server.Internal, "archive", "a.md")); err != nil {
		t.Fatalf("expected renamed file: %v", err)
	}
	server.expectStatus(t, http.MethodDelete, "/api/workspace/path?path=archive", "", http.StatusOK)
	if _, err := os.Stat(filepath.Join(server.Internal, "archive")); !os.IsNotExist(err) {
		t.Fatalf("expected archive removed, got %v", err)
	}

	data = server.expectStatus(t, http.MethodGet, "/api/workspace/snapshot", "", http.StatusOK)
	var catalog workspace.Catalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if catalog.Root.Kind != workspace.RootInternal || len(catalog.Entries) != 2 {
		t.Fatalf("unexpected snapshot: %+v", catalog)
	}
}

func TestWorkspaceErrorStatuses(t *testing.T) {
	server := newTestServer(t, "")
	server.expectStatus(t, http.MethodPut, "/api/workspace/root", `{"path":null}`, http.StatusOK)

	cases := []struct {
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{http.MethodGet, "/api/workspace/file?path=../secret.md", "", http.StatusBadRequest, string(workspace.CodePathEscape)},
		{http.MethodGet, "/api/workspace/file?path=/etc/passwd", "", http.StatusBadRequest, string(workspace.CodeInvalidPath)},
		{http.MethodGet, "/api/workspace/file?path=", "", http.StatusBadRequest, string(workspace.CodeInvalidPath)},
		{http.MethodGet, "/api/workspace/file?path=missing.md", "", http.StatusNotFound, string(workspace.CodeReadFailed)},
		{http.MethodDelete, "/api/workspace/path?path=missing.md", "", http.StatusNotFound, string(workspace.CodeDeleteFailed)},
		{http.MethodPut, "/api/workspace/root", `{"path":"/definitely/not/here"}`, http.StatusBadRequest, string(workspace.CodeNotADirectory)},
		{http.MethodPut, "/api/workspace/file", `{"path":"a.md","bogus":1}`, http.StatusBadRequest, "invalid_request"},
		{http.MethodPatch, "/api/workspace/file", "", http.StatusMethodNotAllowed, "method_not_allowed"},
	}
	for _, tc := range cases {
		data := server.expectStatus(t, tc.method, tc.path, tc.body, tc.status)
		if payload := decodeError(t, data); payload.Code != tc.code {
			t.Fatalf("%s %s: expected code %s, got %+v", tc.method, tc.path, tc.code, payload)
		}
	}

	data := server.expectStatus(t, http.MethodGet, "/api/workspace/file?path=missing.md", "", http.StatusNotFound)
	payload := decodeError(t, data)
	if !strings.HasPrefix(payload.Message, "failed to read file: ") || !strings.Contains(payload.Message, "no such file") {
		t.Fatalf("expected system error text in message, got %q", payload.Message)
	}
}

func TestChangesRouteListsRecentEvents(t *testing.T) {
	server := newTestServer(t, "")
	data := server.expectStatus(t, http.MethodGet, "/api/workspace/changes", "", http.StatusOK)
	var response changesResponse
	if err := json.Unmarshal(data, &response); err != nil {
		t.Fatalf("decode changes: %v", err)
	}
	if response.Changes == nil || len(response.Changes) != 0 {
		t.Fatalf("expected empty change list, got %s", data)
	}

	server.expectStatus(t, http.MethodPut, "/api/workspace/root", `{"path":null}`, http.StatusOK)
	server.expectStatus(t, http.MethodPost, "/api/workspace/file", `{"path":"second.md"}`, http.StatusCreated)

	data = server.expectStatus(t, http.MethodGet, "/api/workspace/changes", "", http.StatusOK)
	if err := json.Unmarshal(data, &response); err != nil {
		t.Fatalf("decode changes: %v", err)
	}
	if len(response.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %s", data)
	}
	newest := response.Changes[0]
	if newest.Type != workspace.EventWorkspaceChanged || newest.Source != string(workspace.SourceOperation) || newest.EntryCount != 2 {
		t.Fatalf("unexpected newest change: %+v", newest)
	}
	if response.Changes[1].EntryCount != 1 || newest.Root.Path != server.Internal {
		t.Fatalf("unexpected change order: %+v", response.Changes)
	}

	data = server.expectStatus(t, http.MethodGet, "/api/workspace/changes?limit=1", "", http.StatusOK)
	if err := json.Unmarshal(data, &response); err != nil {
		t.Fatalf("decode changes: %v", err)
	}
	if len(response.Changes) != 1 || response.Changes[0].EntryCount != 2 {
		t.Fatalf("expected only the newest change, got %s", data)
	}
	server.expectStatus(t, http.MethodGet, "/api/workspace/changes?limit=zero", "", http.StatusBadRequest)
}

func TestRestRequiresToken(t *testing.T) {
	server := newTestServer(t, "secret")
	server.AuthToken = ""
	server.expectStatus(t, http.MethodGet, "/api/workspace/root", "", http.StatusUnauthorized)
	server.expectStatus(t, http.MethodGet, "/api/workspace/root?token=wrong", "", http.StatusUnauthorized)
	server.expectStatus(t, http.MethodGet, "/api/workspace/root?token=secret", "", http.StatusOK)

	server.AuthToken = "secret"
	res, _ := server.do(t, http.MethodGet, "/api/workspace/root", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected bearer token accepted, got %d", res.StatusCode)
	}
	if res.Header.Get("X-Content-Type-Options") != "nosniff" || res.Header.Get("Cache-Control") != cacheControlNoStore {
		t.Fatalf("expected security headers, got %v", res.Header)
	}
}

func TestRecentRoutesAndStatus(t *testing.T) {
	server := newTestServer(t, "")
	server.Recent.roots = []string{"/notes/a", "", "/notes/b"}

	data := server.expectStatus(t, http.MethodGet, "/api/workspace/recent", "", http.StatusOK)
	var recent recentResponse
	if err := json.Unmarshal(data, &recent); err != nil {
		t.Fatalf("decode recent: %v", err)
	}
	if strings.Join(recent.Roots, ",") != "/notes/a,/notes/b" {
		t.Fatalf("unexpected recent roots: %v", recent.Roots)
	}

	root := t.TempDir()
	body, _ := json.Marshal(rootRequest{Path: &root})
	server.expectStatus(t, http.MethodPut, "/api/workspace/root", string(body), http.StatusOK)

	data = server.expectStatus(t, http.MethodGet, "/api/status", "", http.StatusOK)
	var status statusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Root == nil || status.Root.Path != root || status.Root.Kind != workspace.RootExternal {
		t.Fatalf("unexpected status root: %+v", status.Root)
	}
	if status.Events == nil || status.Events.Name != "workspace" || status.Events.Published == 0 {
		t.Fatalf("expected event stats, got %+v", status.Events)
	}
	if status.Metrics.Operations["set_root"] != 1 {
		t.Fatalf("expected one set_root operation, got %v", status.Metrics.Operations)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, "")
	server.expectStatus(t, http.MethodPut, "/api/workspace/root", `{"path":null}`, http.StatusOK)

	res, data := server.do(t, http.MethodGet, "/api/metrics", "")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if !strings.HasPrefix(res.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", res.Header.Get("Content-Type"))
	}
	for _, want := range []string{
		`inkwell_events_published_total{bus="workspace",type="workspace_changed"} 1`,
		`inkwell_operation_duration_seconds_count{operation="set_root"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected metrics to contain %q:\n%s", want, data)
		}
	}
}

func TestLogsEndpointFilters(t *testing.T) {
	server := newTestServer(t, "")
	server.Logger.Info("first", nil)
	server.Logger.Warn("second", nil)
	server.Logger.Error("third", nil)

	data := server.expectStatus(t, http.MethodGet, "/api/logs?level=warning&limit=1", "", http.StatusOK)
	var entries []logging.LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("decode logs: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "third" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	server.expectStatus(t, http.MethodGet, "/api/logs?limit=zero", "", http.StatusBadRequest)
	server.expectStatus(t, http.MethodGet, "/api/logs?level=loud", "", http.StatusBadRequest)
}

func TestMarkdownRoutes(t *testing.T) {
	server := newTestServer(t, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "deep", "note.md")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	body, _ := json.Marshal(writeFileRequest{Path: path, Content: "hello"})
	server.expectStatus(t, http.MethodPut, "/api/markdown/file", string(body), http.StatusOK)

	data := server.expectStatus(t, http.MethodGet, "/api/markdown/file?path="+path, "", http.StatusOK)
	var file fileResponse
	if err := json.Unmarshal(data, &file); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if file.Content != "hello" {
		t.Fatalf("unexpected content %q", file.Content)
	}

	data = server.expectStatus(t, http.MethodGet, "/api/markdown/files?root="+dir, "", http.StatusOK)
	var files []struct {
		Path         string `json:"path"`
		RelativePath string `json:"relative_path"`
	}
	if err := json.Unmarshal(data, &files); err != nil {
		t.Fatalf("decode files: %v", err)
	}
	if len(files) != 1 || files[0].RelativePath != "deep/note.md" || files[0].Path != path {
		t.Fatalf("unexpected files: %+v", files)
	}

	server.expectStatus(t, http.MethodGet, "/api/markdown/files?root="+filepath.Join(dir, "missing"), "", http.StatusNotFound)
	server.expectStatus(t, http.MethodGet, "/api/markdown/files?root="+path, "", http.StatusBadRequest)
	server.expectStatus(t, http.MethodGet, "/api/markdown/files", "", http.StatusBadRequest)
}
