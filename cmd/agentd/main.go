// Command agentd runs one autonomous coding-agent turn against a workspace,
// or performs out-of-band operations: approving a pending request, resuming
// an approved turn, undoing a file mutation, and indexing the workspace.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/philippgille/chromem-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"agentd/internal/runtime"
	"agentd/pkg/config"
	"agentd/pkg/executor"
	"agentd/pkg/index"
	"agentd/pkg/logx"
	"agentd/pkg/metrics"
	"agentd/pkg/persistence"
	"agentd/pkg/proto"
	"agentd/pkg/tools"
	"agentd/pkg/undo"
)

var version = "dev"

func main() {
	var (
		workspace   = flag.String("workspace", ".", "Workspace directory")
		configPath  = flag.String("config", "", "Path to agentd.yaml (optional)")
		prompt      = flag.String("prompt", "", "Run a single turn with this request and exit")
		resumeID    = flag.String("resume", "", "Resume an approved turn by request id")
		approveID   = flag.String("approve", "", "Approve a pending request by id")
		rejectID    = flag.String("reject", "", "Reject a pending request by id")
		listPending = flag.Bool("pending", false, "List pending approval requests")
		undoPath    = flag.String("undo", "", "Undo the last recorded mutation of a workspace path")
		undoForce   = flag.Bool("force", false, "Undo even if the file changed since the mutation")
		runIndex    = flag.Bool("index", false, "Scan and embed the workspace, then exit")
		showUsage   = flag.Bool("usage", false, "Print aggregate token usage and cost, then exit")
		autoYes     = flag.Bool("yes", false, "Auto-confirm mutating tool calls")
		metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("agentd %s\n", version)
		return
	}

	os.Exit(run(&options{
		workspace:   *workspace,
		configPath:  *configPath,
		prompt:      *prompt,
		resumeID:    *resumeID,
		approveID:   *approveID,
		rejectID:    *rejectID,
		listPending: *listPending,
		undoPath:    *undoPath,
		undoForce:   *undoForce,
		runIndex:    *runIndex,
		showUsage:   *showUsage,
		autoYes:     *autoYes,
		metricsAddr: *metricsAddr,
	}))
}

type options struct {
	workspace   string
	configPath  string
	prompt      string
	resumeID    string
	approveID   string
	rejectID    string
	listPending bool
	undoPath    string
	undoForce   bool
	runIndex    bool
	showUsage   bool
	autoYes     bool
	metricsAddr string
}

func run(opts *options) int {
	logger := logx.NewLogger("agentd")

	cfg, err := config.LoadOrDefault(opts.configPath, opts.workspace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create state dir: %v\n", err)
		return 1
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if opts.metricsAddr != "" {
		go serveMetrics(opts.metricsAddr, reg, logger)
	}

	confirmer := buildConfirmer(opts.autoYes || cfg.Policy.AutoConfirm)

	rt, err := runtime.New(cfg, m, confirmer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		return 1
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case opts.approveID != "":
		return decide(rt, opts.approveID, true)
	case opts.rejectID != "":
		return decide(rt, opts.rejectID, false)
	case opts.listPending:
		return showPending(rt)
	case opts.undoPath != "":
		return runUndo(rt, cfg, opts.undoPath, opts.undoForce)
	case opts.runIndex:
		return scanIndex(ctx, cfg, logger)
	case opts.showUsage:
		return printUsage(ctx, cfg)
	case opts.resumeID != "":
		result, err := rt.Resume(ctx, opts.resumeID)
		return report(result, err)
	case opts.prompt != "":
		result, err := rt.RunTurn(ctx, opts.prompt)
		return report(result, err)
	default:
		return repl(ctx, rt)
	}
}

// repl runs turns interactively until EOF.
func repl(ctx context.Context, rt *runtime.Runtime) int {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return 0
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return 0
		}
		result, err := rt.RunTurn(ctx, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}
		printResult(result.StopReason, result.FinalAnswer)
		if ctx.Err() != nil {
			return 0
		}
	}
}

func report(result *executor.TurnResult, err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
		return 1
	}
	printResult(result.StopReason, result.FinalAnswer)
	if result.StopReason != proto.StopDone {
		return 2
	}
	return 0
}

func decide(rt *runtime.Runtime, requestID string, approved bool) int {
	status := persistence.ApprovalRejected
	if approved {
		status = persistence.ApprovalApproved
	}
	if err := rt.Store().DecideApproval(requestID, status); err != nil {
		fmt.Fprintf(os.Stderr, "decision failed: %v\n", err)
		return 1
	}
	fmt.Printf("request %s %s\n", requestID, status)
	if approved {
		fmt.Printf("resume with: agentd -resume %s\n", requestID)
	}
	return 0
}

func showPending(rt *runtime.Runtime) int {
	pending, err := rt.Store().PendingApprovals()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list pending requests: %v\n", err)
		return 1
	}
	if len(pending) == 0 {
		fmt.Println("no pending approval requests")
		return 0
	}
	for _, rec := range pending {
		fmt.Printf("%s  risk=%s  intent=%s\n%s\n\n", rec.ID, rec.Risk, rec.Intent, rec.PlanSummary)
	}
	return 0
}

func runUndo(rt *runtime.Runtime, cfg *config.Config, path string, force bool) int {
	rec := undo.NewRecorder(rt.Store(), cfg.Workspace, stateSubdir(cfg, "undo"), "")
	if err := rec.Undo(path, force); err != nil {
		fmt.Fprintf(os.Stderr, "undo failed: %v\n", err)
		return 1
	}
	fmt.Printf("restored %s\n", path)
	return 0
}

func scanIndex(ctx context.Context, cfg *config.Config, logger *logx.Logger) int {
	var embedFn chromem.EmbeddingFunc
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		embedFn = chromem.NewEmbeddingFuncOpenAI(key, chromem.EmbeddingModelOpenAI3Small)
	}
	ix, err := index.New(cfg.Index, cfg.Workspace, embedFn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "index error: %v\n", err)
		return 1
	}
	if err := ix.Scan(ctx); err != nil {
		logger.Warn("index scan incomplete: %v", err)
		return 1
	}
	return 0
}

func printUsage(ctx context.Context, cfg *config.Config) int {
	if cfg.PrometheusURL == "" {
		fmt.Fprintln(os.Stderr, "no prometheus_url configured")
		return 1
	}
	qs, err := metrics.NewQueryService(cfg.PrometheusURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage query error: %v\n", err)
		return 1
	}
	usage, err := qs.TotalUsage(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage query error: %v\n", err)
		return 1
	}
	fmt.Printf("prompt tokens:     %d\ncompletion tokens: %d\ntotal tokens:      %d\ncost:              $%.4f\n",
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, usage.TotalCostUSD)
	return 0
}

// buildConfirmer returns the confirmation predicate for mutating tools. A
// non-interactive session without -yes denies everything rather than
// proceeding on ambiguous input.
func buildConfirmer(autoYes bool) tools.Confirmer {
	if autoYes {
		return tools.AutoConfirm
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return tools.DenyAll
	}
	reader := bufio.NewReader(os.Stdin)
	return tools.ConfirmerFunc(func(_ context.Context, toolName, description string) bool {
		fmt.Printf("\nallow %s? %s [y/N] ", toolName, description)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	})
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped: %v", err)
	}
}

func printResult(reason proto.StopReason, answer string) {
	if answer != "" {
		fmt.Println(answer)
	}
	if reason != proto.StopDone {
		fmt.Printf("[turn ended: %s]\n", reason)
	}
}

func stateSubdir(cfg *config.Config, name string) string {
	return filepath.Join(cfg.StateDir, name)
}
