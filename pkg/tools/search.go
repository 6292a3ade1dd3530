package tools

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const maxSearchMatches = 200

// SearchFilesSpec returns the search_files tool: regexp search over workspace
// files with an optional glob filter on filenames.
func SearchFilesSpec(ws *Workspace) *Spec {
	return &Spec{
		Name:        ToolSearchFiles,
		Description: "Search workspace files for a regular expression. Returns matching lines as path:line:text.",
		Schema: Schema{
			"pattern": {Type: "string", Description: "Go regular expression to search for", Required: true},
			"path":    {Type: "string", Description: "Relative directory to search under; defaults to the workspace root", Default: "."},
			"glob":    {Type: "string", Description: "Filename glob filter, e.g. *.go"},
		},
		Example:        map[string]any{"pattern": "func main", "glob": "*.go"},
		Effects:        []Effect{EffectRead},
		VisibleToModel: true,
		Callable:       true,
		Handler: func(ctx context.Context, args map[string]any) *Result {
			re, err := regexp.Compile(StringArg(args, "pattern"))
			if err != nil {
				return Fail(CodeInvalidArgs, "invalid pattern: %v", err)
			}

			absPath, err := ws.Resolve(StringArg(args, "path"))
			if err != nil {
				return Fail(CodeTool, "%v", err)
			}
			glob := StringArg(args, "glob")

			var matches []string
			truncated := false
			walkErr := filepath.WalkDir(absPath, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return nil //nolint:nilerr // skip unreadable entries
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if d.IsDir() {
					name := d.Name()
					if name == ".git" || name == "node_modules" || name == ".agentd" {
						return filepath.SkipDir
					}
					return nil
				}
				if glob != "" {
					if ok, _ := filepath.Match(glob, d.Name()); !ok {
						return nil
					}
				}
				rel, relErr := filepath.Rel(ws.Root, path)
				if relErr != nil {
					rel = path
				}
				found, scanErr := scanFile(path, rel, re, maxSearchMatches-len(matches))
				if scanErr != nil {
					return nil //nolint:nilerr // skip unreadable files
				}
				matches = append(matches, found...)
				if len(matches) >= maxSearchMatches {
					truncated = true
					return filepath.SkipAll
				}
				return nil
			})
			if walkErr != nil && walkErr != filepath.SkipAll {
				return Fail(CodeTool, "search failed: %v", walkErr)
			}

			return Ok(map[string]any{
				"matches":   strings.Join(matches, "\n"),
				"count":     len(matches),
				"truncated": truncated,
			})
		},
	}
}

func scanFile(path, rel string, re *regexp.Regexp, budget int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var found []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			// Binary file, skip the rest.
			return found, nil
		}
		if re.MatchString(line) {
			if len(line) > maxLineLength {
				line = line[:maxLineLength]
			}
			found = append(found, fmt.Sprintf("%s:%d:%s", rel, lineNo, line))
			if len(found) >= budget {
				return found, nil
			}
		}
	}
	return found, scanner.Err()
}
