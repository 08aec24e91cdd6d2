package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"

	"planner/pkg/config"
	"planner/pkg/export"
	"planner/pkg/llm/factory"
	"planner/pkg/llmerrors"
	"planner/pkg/logx"
	"planner/pkg/metrics"
	mw "planner/pkg/middleware/metrics"
	"planner/pkg/persistence"
	"planner/pkg/pipeline"
	"planner/pkg/recovery"
	"planner/pkg/session"
	"planner/pkg/workflow"
)

// Version information - set by goreleaser via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var (
		projectDir  = flag.String("projectdir", ".", "Project directory")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("planner %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	logx.SetDebug(*debug)
	os.Exit(run(*projectDir))
}

// run contains the main application logic and returns an exit code, so
// defers execute before os.Exit.
func run(projectDir string) int {
	fmt.Println("⏳ Starting up...")

	cfg, err := config.Load(projectDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	vault := config.NewVault()
	if err := unlockVault(vault, projectDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unlock secrets: %v\n", err)
		return 1
	}

	var recorder mw.Recorder
	if cfg.Metrics.Enabled {
		prom := mw.NewPrometheusRecorder()
		recorder = prom
		go serveMetrics(cfg.Metrics.Listen)
	}

	steps := &stepTracker{}
	components, err := factory.Build(cfg, vault, recorder, steps.Current)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build generation client: %v\n", err)
		return 1
	}

	db, err := persistence.Open(filepath.Join(projectDir, cfg.DatabasePath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open session database: %v\n", err)
		return 1
	}
	defer db.Close()

	advisor := recovery.NewAdvisor()
	engine := workflow.NewEngine(
		session.NewStore(),
		pipeline.New(components.Client, recorder, components.Counter),
		advisor,
	)
	dispatcher := workflow.NewDispatcher(engine, advisor)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("🚀 Planner ready (provider: %s, model: %s)\n", cfg.Generation.Provider, cfg.Generation.Model)
	fmt.Println("Describe what you want to build, or type 'help' for commands.")

	repl(ctx, cfg, db, dispatcher, engine, steps)
	fmt.Println("👋 Goodbye")
	return 0
}

// unlockVault decrypts the project secrets file when one exists. The password
// comes from PLANNER_PASSWORD or an interactive prompt.
func unlockVault(vault *config.Vault, projectDir string) error {
	if !config.SecretsFileExists(projectDir) {
		return nil
	}

	password := os.Getenv("PLANNER_PASSWORD")
	if password == "" {
		fmt.Print("Enter project password: ")
		raw, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
		for i := range raw {
			raw[i] = 0
		}
	}

	return vault.Load(projectDir, password)
}

func serveMetrics(listen string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logx.Warnf("metrics listener failed: %v", err)
	}
}

// stepTracker remembers the current workflow step so request metrics can be
// labeled with it.
type stepTracker struct {
	mu   sync.Mutex
	step string
}

func (t *stepTracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.step
}

func (t *stepTracker) set(step session.Step) {
	t.mu.Lock()
	t.step = string(step)
	t.mu.Unlock()
}

//nolint:cyclop // One arm per console command.
func repl(ctx context.Context, cfg *config.Config, db *persistence.DB, dispatcher *workflow.Dispatcher, engine *workflow.Engine, steps *stepTracker) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var sessionID string

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		verb, rest, _ := strings.Cut(line, " ")
		var cmd workflow.Command

		switch verb {
		case "quit", "exit":
			return

		case "help":
			printHelp()
			continue

		case "sessions":
			listSessions(ctx, db)
			continue

		case "report":
			printUsageReport(ctx, cfg)
			continue

		case "open":
			s, err := loadSession(ctx, db, engine, strings.TrimSpace(rest))
			if err != nil {
				fmt.Fprintf(os.Stderr, "❌ %v\n", err)
				continue
			}
			sessionID = s.ID
			steps.set(s.CurrentStep)
			fmt.Printf("📂 Opened session %s at step %s\n", s.ID, s.CurrentStep)
			continue

		case "confirm":
			cmd = workflow.Command{Type: workflow.CommandConfirm, Confirmed: true}

		case "reject":
			cmd = workflow.Command{Type: workflow.CommandConfirm, Confirmed: false, Feedback: rest}

		case "update":
			fields := strings.SplitN(rest, " ", 3)
			if len(fields) < 3 {
				fmt.Println("usage: update <requirement-id> <field> <new value>")
				continue
			}
			cmd = workflow.Command{
				Type:          workflow.CommandUpdateRequirement,
				RequirementID: fields[0],
				Field:         fields[1],
				NewValue:      fields[2],
			}

		case "accept", "dismiss":
			cmd = workflow.Command{
				Type:         workflow.CommandResolveSuggestion,
				SuggestionID: strings.TrimSpace(rest),
				Accepted:     verb == "accept",
			}

		case "more":
			cmd = workflow.Command{
				Type:     workflow.CommandMoreSuggestions,
				Category: session.SuggestionCategory(strings.TrimSpace(rest)),
			}

		case "tickets":
			cmd = workflow.Command{Type: workflow.CommandGenerateTickets}

		case "export":
			format := export.Format(strings.TrimSpace(rest))
			if format == "" {
				format = export.FormatJSON
			}
			cmd = workflow.Command{Type: workflow.CommandExport, Format: format}

		case "restart":
			cmd = workflow.Command{Type: workflow.CommandRestart}

		case "save":
			cmd = workflow.Command{Type: workflow.CommandSave}

		default:
			cmd = workflow.Command{Type: workflow.CommandSendText, Text: line}
		}

		// The first free-text line starts a fresh session.
		if sessionID == "" && cmd.Type == workflow.CommandSendText {
			sessionID = engine.InitializeSession("").ID
		}

		cmd.SessionID = sessionID
		result, err := dispatcher.Execute(ctx, cmd)
		if err != nil {
			renderError(err)
			continue
		}

		if result.Session != nil {
			sessionID = result.Session.ID
			steps.set(result.Session.CurrentStep)
			if err := db.SaveSession(ctx, result.Session); err != nil {
				logx.Warnf("failed to persist session %s: %v", sessionID, err)
			}
		}
		render(result)
	}
}

func render(result workflow.Result) {
	if result.Notice != "" {
		fmt.Printf("ℹ️  %s\n", result.Notice)
	}
	if result.Output != "" {
		fmt.Println(result.Output)
	}
	s := result.Session
	if s == nil {
		return
	}

	if len(s.Transcript) > 0 {
		last := s.Transcript[len(s.Transcript)-1]
		if last.Role == session.RoleAssistant {
			fmt.Println(last.Text)
		}
	}
	if s.Completed {
		fmt.Println("✅ Planning complete. Use 'export <format>' to export tickets.")
		return
	}
	fmt.Printf("[%s]\n", s.CurrentStep)
}

func renderError(err error) {
	fmt.Fprintf(os.Stderr, "❌ %v\n", err)
	for _, opt := range recovery.OptionsFor(llmerrors.TypeOf(err)) {
		marker := "  "
		if opt.Recommended {
			marker = "👉"
		}
		fmt.Fprintf(os.Stderr, "%s %s", marker, opt.Label)
		if opt.Description != "" {
			fmt.Fprintf(os.Stderr, ": %s", opt.Description)
		}
		fmt.Fprintln(os.Stderr)
	}
}

func listSessions(ctx context.Context, db *persistence.DB) {
	summaries, err := db.ListSessions(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return
	}
	if len(summaries) == 0 {
		fmt.Println("No saved sessions.")
		return
	}
	for _, s := range summaries {
		state := string(s.CurrentStep)
		if s.Completed {
			state = "completed"
		}
		fmt.Printf("%s  %s  %s\n", s.ID, s.UpdatedAt.Local().Format(time.RFC3339), state)
	}
}

func loadSession(ctx context.Context, db *persistence.DB, engine *workflow.Engine, id string) (*session.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("usage: open <session-id>")
	}
	stored, err := db.LoadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize stored session: %w", err)
	}
	return engine.RestoreSnapshot(data)
}

func printUsageReport(ctx context.Context, cfg *config.Config) {
	if cfg.Metrics.QueryURL == "" {
		fmt.Println("Set metrics.query_url in config.yaml to enable usage reports.")
		return
	}
	svc, err := metrics.NewQueryService(cfg.Metrics.QueryURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return
	}
	report, err := svc.GetUsageReport(ctx, cfg.Generation.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return
	}
	fmt.Printf("Model %s: %d requests (%d errors), %d prompt + %d completion tokens, %d fallbacks, %.0f%% cache hits\n",
		report.Model, report.Requests, report.Errors,
		report.PromptTokens, report.CompletionTokens,
		report.Fallbacks, report.CacheHitRate*100)
}

func printHelp() {
	fmt.Print(`Commands:
  <free text>            describe or refine what you want to build
  confirm                confirm the current step and advance
  reject [feedback]      reject the current analysis with optional feedback
  update <id> <field> <value>   edit a requirement (title, description, priority, business_value)
  accept <suggestion-id> apply a suggestion
  dismiss <suggestion-id> reject a suggestion
  more [category]        request more suggestions
  tickets                regenerate tickets from confirmed requirements
  export [csv|json|tracker_import|wiki]   export generated tickets
  restart                start over from the original input
  save                   print a session snapshot
  sessions               list saved sessions
  open <session-id>      resume a saved session
  report                 show usage metrics (needs metrics.query_url)
  quit                   exit
`)
}
