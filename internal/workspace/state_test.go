package workspace

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestStateSetInternalCreatesDefaultFileOnce(t *testing.T) {
	internal := filepath.Join(t.TempDir(), "workspace")
	state, err := NewState(internal)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}

	root, err := state.Set(nil)
	if err != nil {
		t.Fatalf("set internal: %v", err)
	}
	if root.Kind != RootInternal || root.Path != internal {
		t.Fatalf("unexpected root: %+v", root)
	}
	assertDirNames(t, internal, []string{DefaultFileName})
	data, err := os.ReadFile(filepath.Join(internal, DefaultFileName))
	if err != nil {
		t.Fatalf("read default file: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty default file, got %q", data)
	}

	if _, err := state.Set(nil); err != nil {
		t.Fatalf("second set internal: %v", err)
	}
	assertDirNames(t, internal, []string{DefaultFileName})
}

func TestStateNestedMarkdownSuppressesDefaultFile(t *testing.T) {
	internal := t.TempDir()
	writeTestFile(t, internal, "deep/nested/note.md", "")
	state, err := NewState(internal)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if _, err := state.Set(nil); err != nil {
		t.Fatalf("set internal: %v", err)
	}
	if _, err := os.Stat(filepath.Join(internal, DefaultFileName)); !os.IsNotExist(err) {
		t.Fatalf("expected no default file, got %v", err)
	}
}

func TestStateSymlinkedInternalRootKeepsExistingNotes(t *testing.T) {
	target := t.TempDir()
	writeTestFile(t, target, "note.md", "")
	link := symlinkTestDir(t, target)
	state, err := NewState(link)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if _, err := state.Set(nil); err != nil {
		t.Fatalf("set internal: %v", err)
	}
	assertDirNames(t, target, []string{"note.md"})
}

func TestStateHiddenMarkdownDoesNotCount(t *testing.T) {
	internal := t.TempDir()
	writeTestFile(t, internal, ".trash/old.md", "")
	state, err := NewState(internal)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if _, err := state.Set(nil); err != nil {
		t.Fatalf("set internal: %v", err)
	}
	if _, err := os.Stat(filepath.Join(internal, DefaultFileName)); err != nil {
		t.Fatalf("expected default file: %v", err)
	}
}

func TestStateSetExternal(t *testing.T) {
	state, err := NewState(t.TempDir())
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	external := t.TempDir()

	root, err := state.Set(&external)
	if err != nil {
		t.Fatalf("set external: %v", err)
	}
	if root.Kind != RootExternal || root.Path != external {
		t.Fatalf("unexpected root: %+v", root)
	}
	got, err := state.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != root {
		t.Fatalf("expected %+v, got %+v", root, got)
	}
	entries, err := os.ReadDir(external)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected external root untouched, got %d entries", len(entries))
	}
}

func TestStateSetRejectsNonDirectories(t *testing.T) {
	state, err := NewState(t.TempDir())
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	external := t.TempDir()
	if _, err := state.Set(&external); err != nil {
		t.Fatalf("set external: %v", err)
	}

	file := filepath.Join(t.TempDir(), "file.md")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	missing := filepath.Join(t.TempDir(), "missing")
	blank := "  "
	for _, candidate := range []string{file, missing, blank} {
		candidate := candidate
		if _, err := state.Set(&candidate); Code(err) != CodeNotADirectory {
			t.Fatalf("Set(%q): expected %s, got %v", candidate, CodeNotADirectory, err)
		}
	}

	got, err := state.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Path != external {
		t.Fatalf("expected failed sets to leave %q active, got %q", external, got.Path)
	}
}

func TestStateRequireBeforeInitialization(t *testing.T) {
	state, err := NewState(t.TempDir())
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	root, err := state.Get()
	if err != nil || root.Path != "" {
		t.Fatalf("expected empty root before init, got %+v, %v", root, err)
	}
	if _, err := state.Require(); Code(err) != CodeRootUnset {
		t.Fatalf("expected %s, got %v", CodeRootUnset, err)
	}
}

func TestStateClosedFailsWithLockFailed(t *testing.T) {
	state, err := NewState(t.TempDir())
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	state.Close()
	if _, err := state.Get(); Code(err) != CodeLockFailed {
		t.Fatalf("expected %s from Get, got %v", CodeLockFailed, err)
	}
	if _, err := state.Set(nil); Code(err) != CodeLockFailed {
		t.Fatalf("expected %s from Set, got %v", CodeLockFailed, err)
	}
}

func TestStateConcurrentReadersDuringSwitches(t *testing.T) {
	state, err := NewState(t.TempDir())
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	rootA := t.TempDir()
	rootB := t.TempDir()
	if _, err := state.Set(&rootA); err != nil {
		t.Fatalf("set A: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				root, err := state.Get()
				if err != nil {
					errs <- err
					return
				}
				if root.Path != rootA && root.Path != rootB {
					t.Errorf("torn read: %+v", root)
					return
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		target := rootA
		if i%2 == 0 {
			target = rootB
		}
		if _, err := state.Set(&target); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("reader failed: %v", err)
	}
}

func assertDirNames(t *testing.T, dir string, want []string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries in %s, got %d", len(want), dir, len(entries))
	}
	for i, entry := range entries {
		if entry.Name() != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], entry.Name())
		}
	}
}
