package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	defaultReadLines = 2000 // Default number of lines to read
	maxLineLength    = 2000 // Truncate lines longer than this
	maxListEntries   = 500
)

// ReadFileSpec returns the read_file tool: numbered-line output with offset
// and limit for large files.
func ReadFileSpec(ws *Workspace) *Spec {
	return &Spec{
		Name:        ToolReadFile,
		Description: "Read contents of a file from the workspace. Output uses numbered lines. For large files, use offset and limit to read specific sections.",
		Schema: Schema{
			"path":   {Type: "string", Description: "Relative path to file within workspace", Required: true},
			"offset": {Type: "integer", Description: "Line number to start reading from (1-based)", Default: 1},
			"limit":  {Type: "integer", Description: "Number of lines to read", Default: defaultReadLines},
		},
		Example:        map[string]any{"path": "pkg/server/server.go", "offset": 1, "limit": 100},
		Effects:        []Effect{EffectRead},
		VisibleToModel: true,
		Callable:       true,
		Handler: func(_ context.Context, args map[string]any) *Result {
			absPath, err := ws.Resolve(StringArg(args, "path"))
			if err != nil {
				return Fail(CodeTool, "%v", err)
			}

			data, err := os.ReadFile(absPath)
			if err != nil {
				return Fail(CodeTool, "failed to read file: %v", err)
			}

			offset := IntArg(args, "offset", 1)
			limit := IntArg(args, "limit", defaultReadLines)
			if offset < 1 {
				offset = 1
			}

			lines := strings.Split(string(data), "\n")
			if offset > len(lines) {
				return Fail(CodeTool, "offset %d is beyond end of file (%d lines)", offset, len(lines))
			}
			end := offset - 1 + limit
			if end > len(lines) {
				end = len(lines)
			}

			var b strings.Builder
			for i := offset - 1; i < end; i++ {
				line := lines[i]
				if len(line) > maxLineLength {
					line = line[:maxLineLength] + " …[truncated]"
				}
				fmt.Fprintf(&b, "%6d\t%s\n", i+1, line)
			}

			return Ok(map[string]any{
				"content":     b.String(),
				"total_lines": len(lines),
			})
		},
	}
}

// WriteFileSpec returns the write_file tool. Mutations are tracked for the
// verifier and recorded for undo.
func WriteFileSpec(ws *Workspace) *Spec {
	return &Spec{
		Name:        ToolWriteFile,
		Description: "Write content to a file in the workspace, creating parent directories as needed. Overwrites existing content.",
		Schema: Schema{
			"path":    {Type: "string", Description: "Relative path to file within workspace", Required: true},
			"content": {Type: "string", Description: "Full file content to write", Required: true},
		},
		Example:        map[string]any{"path": "notes.md", "content": "# Notes\n"},
		Effects:        []Effect{EffectWrite},
		VisibleToModel: true,
		Callable:       true,
		Handler: func(_ context.Context, args map[string]any) *Result {
			if ws.ReadOnly {
				return Fail(CodePolicy, "workspace is read-only")
			}
			relPath := StringArg(args, "path")
			absPath, err := ws.Resolve(relPath)
			if err != nil {
				return Fail(CodeTool, "%v", err)
			}

			before, readErr := os.ReadFile(absPath)
			if readErr != nil && !os.IsNotExist(readErr) {
				return Fail(CodeTool, "failed to read existing file: %v", readErr)
			}

			if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
				return Fail(CodeTool, "failed to create directories: %v", err)
			}
			content := []byte(StringArg(args, "content"))
			if err := os.WriteFile(absPath, content, 0o644); err != nil {
				return Fail(CodeTool, "failed to write file: %v", err)
			}

			ws.markTouched(relPath, before, content)
			return Ok(map[string]any{
				"path":          relPath,
				"bytes_written": len(content),
				"created":       os.IsNotExist(readErr),
			})
		},
	}
}

// EditFileSpec returns the edit_file tool: exact-match string replacement.
// The old string must appear exactly once so edits stay unambiguous.
func EditFileSpec(ws *Workspace) *Spec {
	return &Spec{
		Name:        ToolEditFile,
		Description: "Replace an exact string in a file. The old string must match exactly once; include enough surrounding lines to make it unique.",
		Schema: Schema{
			"path":       {Type: "string", Description: "Relative path to file within workspace", Required: true},
			"old_string": {Type: "string", Description: "Exact text to replace", Required: true},
			"new_string": {Type: "string", Description: "Replacement text", Required: true},
		},
		Effects:        []Effect{EffectWrite},
		VisibleToModel: true,
		Callable:       true,
		Handler: func(_ context.Context, args map[string]any) *Result {
			if ws.ReadOnly {
				return Fail(CodePolicy, "workspace is read-only")
			}
			relPath := StringArg(args, "path")
			absPath, err := ws.Resolve(relPath)
			if err != nil {
				return Fail(CodeTool, "%v", err)
			}

			before, err := os.ReadFile(absPath)
			if err != nil {
				return Fail(CodeTool, "failed to read file: %v", err)
			}

			oldStr := StringArg(args, "old_string")
			newStr := StringArg(args, "new_string")
			if oldStr == newStr {
				return Fail(CodeTool, "old_string and new_string are identical")
			}

			count := strings.Count(string(before), oldStr)
			switch {
			case count == 0:
				return Fail(CodeTool, "old_string not found in %s", relPath)
			case count > 1:
				return Fail(CodeTool, "old_string matches %d times in %s; include more context to make it unique", count, relPath)
			}

			after := []byte(strings.Replace(string(before), oldStr, newStr, 1))
			if err := os.WriteFile(absPath, after, 0o644); err != nil {
				return Fail(CodeTool, "failed to write file: %v", err)
			}

			ws.markTouched(relPath, before, after)
			return Ok(map[string]any{"path": relPath})
		},
	}
}

// ListFilesSpec returns the list_files tool.
func ListFilesSpec(ws *Workspace) *Spec {
	return &Spec{
		Name:        ToolListFiles,
		Description: "List files and directories under a workspace path.",
		Schema: Schema{
			"path":      {Type: "string", Description: "Relative directory path; defaults to the workspace root", Default: "."},
			"recursive": {Type: "boolean", Description: "Recurse into subdirectories", Default: false},
		},
		Effects:        []Effect{EffectRead},
		VisibleToModel: true,
		Callable:       true,
		Handler: func(_ context.Context, args map[string]any) *Result {
			absPath, err := ws.Resolve(StringArg(args, "path"))
			if err != nil {
				return Fail(CodeTool, "%v", err)
			}

			var entries []string
			if BoolArg(args, "recursive") {
				entries, err = listRecursive(ws.Root, absPath)
			} else {
				entries, err = listFlat(absPath)
			}
			if err != nil {
				return Fail(CodeTool, "failed to list %s: %v", StringArg(args, "path"), err)
			}

			truncated := false
			if len(entries) > maxListEntries {
				entries = entries[:maxListEntries]
				truncated = true
			}
			return Ok(map[string]any{
				"entries":   strings.Join(entries, "\n"),
				"count":     len(entries),
				"truncated": truncated,
			})
		},
	}
}

func listFlat(absPath string) ([]string, error) {
	dirEntries, err := os.ReadDir(absPath)
	if err != nil {
		return nil, err
	}
	entries := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		entries = append(entries, name)
	}
	sort.Strings(entries)
	return entries, nil
}

func listRecursive(root, absPath string) ([]string, error) {
	var entries []string
	err := filepath.WalkDir(absPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() && (name == ".git" || name == "node_modules" || name == ".agentd") {
			return filepath.SkipDir
		}
		if path == absPath {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			rel += "/"
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	return entries, nil
}
