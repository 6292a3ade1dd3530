package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return string(data)
}

func TestNewCopiesWorkspace(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "main.go", "package main\n")
	writeFile(t, ws, "sub/util.go", "package sub\n")
	writeFile(t, ws, ".agentd/state.db", "binary")

	sb, err := New(ws)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sb.Discard()

	if got := readFile(t, sb.Root, "main.go"); got != "package main\n" {
		t.Errorf("main.go = %q", got)
	}
	if got := readFile(t, sb.Root, "sub/util.go"); got != "package sub\n" {
		t.Errorf("sub/util.go = %q", got)
	}
	if _, err := os.Stat(filepath.Join(sb.Root, ".agentd")); !os.IsNotExist(err) {
		t.Error("state directory must not be copied into the sandbox")
	}
}

func TestNewSkipsSymlinks(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "real.txt", "data")
	if err := os.Symlink(filepath.Join(ws, "real.txt"), filepath.Join(ws, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	sb, err := New(ws)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sb.Discard()

	if _, err := os.Lstat(filepath.Join(sb.Root, "link.txt")); !os.IsNotExist(err) {
		t.Error("symlink must not be copied")
	}
}

func TestMergeCopiesTouchedFilesOnly(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "a.txt", "old a")
	writeFile(t, ws, "b.txt", "old b")

	sb, err := New(ws)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sb.Discard()

	writeFile(t, sb.Root, "a.txt", "new a")
	writeFile(t, sb.Root, "b.txt", "new b")
	writeFile(t, sb.Root, "nested/c.txt", "new c")

	if err := sb.Merge([]string{"a.txt", "nested/c.txt"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	if got := readFile(t, ws, "a.txt"); got != "new a" {
		t.Errorf("a.txt = %q", got)
	}
	if got := readFile(t, ws, "nested/c.txt"); got != "new c" {
		t.Errorf("nested/c.txt = %q", got)
	}
	if got := readFile(t, ws, "b.txt"); got != "old b" {
		t.Errorf("untouched b.txt = %q, want unchanged", got)
	}
}

func TestMergeRemovesDeletedFile(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "doomed.txt", "content")

	sb, err := New(ws)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sb.Discard()

	if err := os.Remove(filepath.Join(sb.Root, "doomed.txt")); err != nil {
		t.Fatalf("remove in sandbox: %v", err)
	}

	if err := sb.Merge([]string{"doomed.txt"}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws, "doomed.txt")); !os.IsNotExist(err) {
		t.Error("deleted file must be removed from the workspace")
	}
}

func TestMergeRejectsEscapingPaths(t *testing.T) {
	ws := t.TempDir()
	sb, err := New(ws)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sb.Discard()

	for _, rel := range []string{"../outside.txt", "..", "/etc/passwd", "a/../../b.txt"} {
		err := sb.Merge([]string{rel})
		if err == nil {
			t.Errorf("Merge(%q) succeeded, want error", rel)
			continue
		}
		if !strings.Contains(err.Error(), "outside workspace") {
			t.Errorf("Merge(%q) error = %v", rel, err)
		}
	}
}

func TestMergeTwiceFails(t *testing.T) {
	ws := t.TempDir()
	sb, err := New(ws)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sb.Discard()

	if err := sb.Merge(nil); err != nil {
		t.Fatalf("first Merge: %v", err)
	}
	if err := sb.Merge(nil); err == nil {
		t.Error("second Merge succeeded, want error")
	}
}

func TestDiscardRemovesCopy(t *testing.T) {
	ws := t.TempDir()
	writeFile(t, ws, "keep.txt", "keep")

	sb, err := New(ws)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sb.Discard()

	if _, err := os.Stat(sb.Root); !os.IsNotExist(err) {
		t.Error("sandbox root still exists after Discard")
	}
	if got := readFile(t, ws, "keep.txt"); got != "keep" {
		t.Errorf("workspace file = %q, want untouched", got)
	}
}
