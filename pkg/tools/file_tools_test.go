package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadFile(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root)
	writeTestFile(t, root, "main.go", "package main\n\nfunc main() {}\n")

	spec := ReadFileSpec(ws)
	result := spec.Handler(context.Background(), map[string]any{"path": "main.go", "offset": 1, "limit": defaultReadLines})
	if !result.OK {
		t.Fatalf("read failed: %v", result.Err)
	}
	content := result.Payload["content"].(string)
	if !strings.Contains(content, "     1\tpackage main") {
		t.Errorf("missing numbered first line:\n%s", content)
	}
	if result.Payload["total_lines"] != 4 {
		t.Errorf("total_lines = %v", result.Payload["total_lines"])
	}
}

func TestReadFileOffsetAndLimit(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root)
	writeTestFile(t, root, "lines.txt", "one\ntwo\nthree\nfour\n")

	spec := ReadFileSpec(ws)
	result := spec.Handler(context.Background(), map[string]any{"path": "lines.txt", "offset": 2, "limit": 2})
	if !result.OK {
		t.Fatalf("read failed: %v", result.Err)
	}
	content := result.Payload["content"].(string)
	if !strings.Contains(content, "two") || !strings.Contains(content, "three") {
		t.Errorf("window content wrong:\n%s", content)
	}
	if strings.Contains(content, "one") || strings.Contains(content, "four") {
		t.Errorf("window leaked lines:\n%s", content)
	}

	result = spec.Handler(context.Background(), map[string]any{"path": "lines.txt", "offset": 99, "limit": 1})
	if result.OK {
		t.Error("offset past end of file succeeded")
	}
}

func TestReadFileMissing(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	result := ReadFileSpec(ws).Handler(context.Background(), map[string]any{"path": "ghost.txt", "offset": 1, "limit": 10})
	if result.OK {
		t.Error("reading a missing file succeeded")
	}
}

func TestWriteFile(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root)

	spec := WriteFileSpec(ws)
	result := spec.Handler(context.Background(), map[string]any{
		"path":    "sub/dir/new.txt",
		"content": "hello",
	})
	if !result.OK {
		t.Fatalf("write failed: %v", result.Err)
	}
	if result.Payload["created"] != true {
		t.Errorf("created = %v, want true", result.Payload["created"])
	}

	data, err := os.ReadFile(filepath.Join(root, "sub/dir/new.txt"))
	if err != nil || string(data) != "hello" {
		t.Errorf("file content = %q, err = %v", data, err)
	}
	if got := ws.Touched.Paths(); len(got) != 1 || got[0] != "sub/dir/new.txt" {
		t.Errorf("touched paths = %v", got)
	}

	// Overwrite reports created=false.
	result = spec.Handler(context.Background(), map[string]any{"path": "sub/dir/new.txt", "content": "bye"})
	if !result.OK || result.Payload["created"] != false {
		t.Errorf("overwrite result: %+v", result)
	}
}

func TestWriteFileReadOnlyWorkspace(t *testing.T) {
	ws := NewWorkspace(t.TempDir())
	ws.ReadOnly = true

	result := WriteFileSpec(ws).Handler(context.Background(), map[string]any{"path": "x.txt", "content": "x"})
	if result.OK || result.Err.Code != CodePolicy {
		t.Errorf("got %+v, want %s", result.Err, CodePolicy)
	}
}

func TestEditFile(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root)
	writeTestFile(t, root, "a.go", "const limit = 10\nconst other = 10\n")

	spec := EditFileSpec(ws)

	t.Run("unique match replaced", func(t *testing.T) {
		result := spec.Handler(context.Background(), map[string]any{
			"path":       "a.go",
			"old_string": "const limit = 10",
			"new_string": "const limit = 20",
		})
		if !result.OK {
			t.Fatalf("edit failed: %v", result.Err)
		}
		data, _ := os.ReadFile(filepath.Join(root, "a.go"))
		if !strings.Contains(string(data), "const limit = 20") {
			t.Errorf("content = %q", data)
		}
	})

	t.Run("no match", func(t *testing.T) {
		result := spec.Handler(context.Background(), map[string]any{
			"path":       "a.go",
			"old_string": "nonexistent",
			"new_string": "x",
		})
		if result.OK {
			t.Error("edit with no match succeeded")
		}
	})

	t.Run("ambiguous match", func(t *testing.T) {
		result := spec.Handler(context.Background(), map[string]any{
			"path":       "a.go",
			"old_string": "= ",
			"new_string": "=",
		})
		if result.OK {
			t.Error("ambiguous edit succeeded")
		}
	})

	t.Run("identical strings", func(t *testing.T) {
		result := spec.Handler(context.Background(), map[string]any{
			"path":       "a.go",
			"old_string": "same",
			"new_string": "same",
		})
		if result.OK {
			t.Error("no-op edit succeeded")
		}
	})
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root)
	writeTestFile(t, root, "a.txt", "")
	writeTestFile(t, root, "sub/b.txt", "")
	writeTestFile(t, root, ".git/config", "")

	spec := ListFilesSpec(ws)

	t.Run("flat", func(t *testing.T) {
		result := spec.Handler(context.Background(), map[string]any{"path": ".", "recursive": false})
		if !result.OK {
			t.Fatalf("list failed: %v", result.Err)
		}
		entries := result.Payload["entries"].(string)
		if !strings.Contains(entries, "a.txt") || !strings.Contains(entries, "sub/") {
			t.Errorf("entries = %q", entries)
		}
	})

	t.Run("recursive skips vcs dirs", func(t *testing.T) {
		result := spec.Handler(context.Background(), map[string]any{"path": ".", "recursive": true})
		if !result.OK {
			t.Fatalf("list failed: %v", result.Err)
		}
		entries := result.Payload["entries"].(string)
		if !strings.Contains(entries, filepath.Join("sub", "b.txt")) {
			t.Errorf("entries = %q", entries)
		}
		if strings.Contains(entries, ".git") {
			t.Errorf(".git not skipped: %q", entries)
		}
	})
}

func TestSearchFiles(t *testing.T) {
	root := t.TempDir()
	ws := NewWorkspace(root)
	writeTestFile(t, root, "one.go", "package one\nfunc Handler() {}\n")
	writeTestFile(t, root, "two.go", "package two\nvar handler = 1\n")
	writeTestFile(t, root, "data.bin", "binary\x00junk Handler")

	spec := SearchFilesSpec(ws)

	result := spec.Handler(context.Background(), map[string]any{"pattern": "Handler", "path": "."})
	if !result.OK {
		t.Fatalf("search failed: %v", result.Err)
	}
	matches := result.Payload["matches"].(string)
	if !strings.Contains(matches, "one.go:2:") {
		t.Errorf("missing match line: %q", matches)
	}
	if strings.Contains(matches, "two.go") {
		t.Errorf("case-sensitive pattern matched lowercase: %q", matches)
	}
	if strings.Contains(matches, "data.bin") {
		t.Errorf("binary file searched: %q", matches)
	}

	result = spec.Handler(context.Background(), map[string]any{"pattern": "Handler", "glob": "*.bogus", "path": "."})
	if !result.OK {
		t.Fatalf("search failed: %v", result.Err)
	}
	if result.Payload["count"] != 0 {
		t.Errorf("count = %v, want 0 with non-matching glob", result.Payload["count"])
	}

	result = spec.Handler(context.Background(), map[string]any{"pattern": "(", "path": "."})
	if result.OK {
		t.Error("invalid regexp accepted")
	}
}
