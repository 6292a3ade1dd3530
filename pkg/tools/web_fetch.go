package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	webFetchTimeout = 30 * time.Second
	maxFetchBytes   = 512 * 1024
)

// WebFetchSpec returns the web_fetch tool: a plain HTTP GET with a size cap.
// Only http and https URLs are accepted.
func WebFetchSpec(ws *Workspace) *Spec {
	client := &http.Client{Timeout: webFetchTimeout}

	return &Spec{
		Name:        ToolWebFetch,
		Description: "Fetch a URL over HTTP GET and return the response body as text.",
		Schema: Schema{
			"url": {Type: "string", Description: "Absolute http or https URL", Required: true},
		},
		Example:        map[string]any{"url": "https://example.com/changelog.txt"},
		Effects:        []Effect{EffectNetwork},
		VisibleToModel: true,
		Callable:       true,
		Handler: func(ctx context.Context, args map[string]any) *Result {
			if ws.NetworkDisabled {
				return Fail(CodePolicy, "network access is disabled in this workspace")
			}

			rawURL := StringArg(args, "url")
			parsed, err := url.Parse(rawURL)
			if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
				return Fail(CodeInvalidArgs, "url must be an absolute http or https URL")
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return Fail(CodeTool, "failed to build request: %v", err)
			}
			req.Header.Set("User-Agent", "agentd/1.0")

			resp, err := client.Do(req)
			if err != nil {
				return Fail(CodeTool, "fetch failed: %v", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
			if err != nil {
				return Fail(CodeTool, "failed to read response: %v", err)
			}
			truncated := false
			if len(body) > maxFetchBytes {
				body = body[:maxFetchBytes]
				truncated = true
			}

			if resp.StatusCode >= 400 {
				return FailWithDetails(CodeTool, fmt.Sprintf("server returned %s", resp.Status), map[string]any{
					"status": resp.StatusCode,
					"body":   summarizeBody(body),
				})
			}

			return Ok(map[string]any{
				"status":       resp.StatusCode,
				"content_type": resp.Header.Get("Content-Type"),
				"body":         string(body),
				"truncated":    truncated,
			})
		},
	}
}

func summarizeBody(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 500 {
		s = fmt.Sprintf("%s …[%d bytes total]", s[:500], len(body))
	}
	return s
}
