package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/voxdeck/voxdeck/internal/api"
	"github.com/voxdeck/voxdeck/internal/catalog"
	"github.com/voxdeck/voxdeck/internal/command"
	"github.com/voxdeck/voxdeck/internal/config"
	"github.com/voxdeck/voxdeck/internal/dispatch"
	"github.com/voxdeck/voxdeck/internal/history"
	"github.com/voxdeck/voxdeck/internal/lock"
	"github.com/voxdeck/voxdeck/internal/log"
	"github.com/voxdeck/voxdeck/internal/osc"
	"github.com/voxdeck/voxdeck/internal/speech"
	"github.com/voxdeck/voxdeck/internal/state"
	"github.com/voxdeck/voxdeck/internal/telemetry"
	"github.com/voxdeck/voxdeck/internal/trigger"
	"github.com/voxdeck/voxdeck/internal/tui"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	case "run", "start": // "start" kept as an alias
		if hasHelpFlag(args) {
			printRunHelp()
			return 0
		}
		return runRun(args)
	case "tail":
		if hasHelpFlag(args) {
			printTailHelp()
			return 0
		}
		return runTail(args)
	case "say":
		if hasHelpFlag(args) {
			printSayHelp()
			return 0
		}
		return runSay(args)
	case "commands":
		if hasHelpFlag(args) {
			printCommandsHelp()
			return 0
		}
		return runCommands(args)
	case "catalog":
		if hasHelpFlag(args) {
			printCatalogHelp()
			return 0
		}
		return runCatalog(args)
	case "history":
		if hasHelpFlag(args) {
			printHistoryHelp()
			return 0
		}
		return runHistory(args)
	case "sessions":
		if hasHelpFlag(args) {
			printSessionsHelp()
			return 0
		}
		return runSessions(args)
	case "config":
		return runConfigNoun(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

// --- run ---

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, resolvedPath, err := loadConfigArg(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("voxdeck starting", "version", version, "config", resolvedPath)

	pidLock, err := lock.Acquire(cfg.Service.PIDFile)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", cfg.Service.PIDFile, "error", err)
		return 1
	}
	defer pidLock.Release()

	// The session log is the record the operator reads back after a take;
	// running without it defeats the point.
	bus, err := telemetry.Open(cfg.Telemetry.LogPath)
	if err != nil {
		logger.Error("failed to open session log", "path", cfg.Telemetry.LogPath, "error", err)
		return 1
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		// History is a convenience, not a dependency.
		logger.Warn("history store unavailable, continuing without it", "path", cfg.History.Path, "error", err)
		store = nil
	}
	sessionID := uuid.NewString()
	if store != nil {
		defer store.Close()
		if id, err := store.StartSession(ctx); err != nil {
			logger.Warn("failed to start history session", "error", err)
		} else {
			sessionID = id
		}
	}

	bus.Emit(telemetry.CategorySystem, "voxdeck %s session %s started", version, sessionID)

	rt, problems := buildRuntime(cfg, logger)
	if rt == nil {
		logger.Error("failed to load command table", "path", cfg.Commands.BasePath)
		return 1
	}
	for _, p := range problems {
		bus.Emit(telemetry.CategoryError, "command %q dropped: %s", p.Key, p.Reason)
	}

	remote := state.NewRemote()
	client := osc.NewClient(cfg.OSC.Host, cfg.OSC.SendPort)
	logger.Info("osc target", "addr", client.Target())

	var rec dispatch.Recorder
	if store != nil {
		rec = store
	}
	exec := dispatch.NewExecutor(client, remote, bus, cfg.Dispatch.StepDelay)
	pipeline := dispatch.NewPipeline(exec, bus, rec, cfg.Dispatch, func() {
		logger.Info("shutdown command received")
		cancel()
	})
	pipeline.SetRuntime(rt)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	errCh := make(chan error, 5)

	go func() {
		if err := pipeline.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("pipeline: %w", err)
		}
	}()

	if cfg.OSC.Listen {
		listener := osc.NewListener(cfg.OSC.Host, cfg.OSC.ListenPort, remote, bus, log.Get())
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("osc listener: %w", err)
			}
		}()
		logger.Info("osc feedback listener enabled", "port", cfg.OSC.ListenPort)
	}

	if cfg.Trigger.Path != "" {
		watcher := trigger.New(cfg.Trigger, pipeline.Submit)
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("trigger watcher: %w", err)
			}
		}()
		logger.Info("trigger file watcher enabled", "path", cfg.Trigger.Path)
	}

	if cfg.Speech.StdinEnabled() {
		reader := speech.NewReader(os.Stdin, "stdin", pipeline.Submit, bus)
		go func() {
			// EOF is a normal end of the transcript stream, not a failure:
			// the trigger file and the API stay usable.
			if err := reader.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("speech reader: %w", err)
			}
		}()
		logger.Info("reading transcripts from stdin")
	}

	if cfg.API.Enabled {
		apiServer := api.New(api.Config{
			Listen:      cfg.API.Listen,
			APIKey:      cfg.API.APIKey,
			Version:     version,
			SessionID:   sessionID,
			Fingerprint: rt.Fingerprint,
		}, pipeline, remote, bus)
		go func() {
			if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("voxdeck running (press Ctrl+C to stop)")

	exitCode := 0
loop:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloadRuntime(cfg, pipeline, bus, logger)
				continue
			}
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
			break loop
		case err := <-errCh:
			logger.Error("component failed", "error", err)
			cancel()
			exitCode = 1
			break loop
		case <-ctx.Done():
			break loop
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	stats := pipeline.Stats()
	bus.Emit(telemetry.CategorySystem, "session %s ended: %d utterances, %d completed, %d partial, %d blocked",
		sessionID, stats.Utterances, stats.Completed, stats.Partial, stats.Blocked)

	if store != nil {
		if err := store.EndSession(shutdownCtx, stats); err != nil {
			logger.Warn("failed to close history session", "error", err)
		}
	}

	if cfg.Telemetry.ReportPath != "" {
		if err := writeSessionReport(bus, cfg.Telemetry.ReportPath, sessionID); err != nil {
			logger.Warn("failed to write session report", "path", cfg.Telemetry.ReportPath, "error", err)
		} else {
			logger.Info("session report written", "path", cfg.Telemetry.ReportPath)
		}
	}

	logger.Info("voxdeck stopped")
	return exitCode
}

// buildRuntime loads the catalog and the command tables and resolves effect
// names. A missing catalog degrades (explicit-ID commands still work); an
// unloadable base table is fatal and reported with a nil return.
func buildRuntime(cfg *config.Config, logger *slog.Logger) (*dispatch.Runtime, []command.Problem) {
	cat, err := catalog.Load(cfg.Catalog.Path, cfg.Catalog.PrimaryContext)
	if err != nil {
		logger.Warn("action catalog unavailable, named effects will not resolve",
			"path", cfg.Catalog.Path, "error", err)
		cat = catalog.Empty(cfg.Catalog.PrimaryContext)
	} else {
		logger.Info("action catalog loaded", "path", cfg.Catalog.Path,
			"actions", cat.Len(), "skipped", cat.Skipped())
	}

	table, err := command.LoadTable(cfg.Commands.BasePath, cfg.Commands.OverridePath, cfg.Dispatch.ShutdownCommand)
	if err != nil {
		return nil, nil
	}
	logger.Info("command table loaded", "commands", table.Len(), "problems", len(table.Problems()))

	bindings, unresolved := command.Resolve(cat, table)
	for _, u := range unresolved {
		logger.Warn("effect name not in catalog", "effect", u.Effect, "command", u.Command)
	}

	return &dispatch.Runtime{
		Table:       table,
		Matcher:     command.NewMatcher(table, cfg.Match.MinConfidence, cfg.Match.TieBreak),
		Bindings:    bindings,
		Fingerprint: tableFingerprint(cfg),
	}, table.Problems()
}

// reloadRuntime rebuilds the runtime on SIGHUP. The fingerprint check makes
// repeated signals cheap; a failed reload keeps the old runtime.
func reloadRuntime(cfg *config.Config, pipeline *dispatch.Pipeline, bus *telemetry.Bus, logger *slog.Logger) {
	current := pipeline.Runtime()
	if current != nil && tableFingerprint(cfg) == current.Fingerprint {
		logger.Info("reload requested but sources unchanged")
		return
	}

	logger.Info("reloading command table")
	rt, problems := buildRuntime(cfg, logger)
	if rt == nil {
		logger.Warn("reload failed, keeping previous command table", "path", cfg.Commands.BasePath)
		bus.Emit(telemetry.CategoryError, "reload failed, previous command table kept")
		return
	}
	for _, p := range problems {
		bus.Emit(telemetry.CategoryError, "command %q dropped: %s", p.Key, p.Reason)
	}
	pipeline.SetRuntime(rt)
}

func tableFingerprint(cfg *config.Config) string {
	return config.Fingerprint(config.ConfigInputs(cfg)...)
}

func writeSessionReport(bus *telemetry.Bus, path, sessionID string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bus.WriteReport(f, sessionID); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// loadConfigArg resolves an explicit --config value or falls back to
// discovery, and returns the loaded config plus the path it came from.
func loadConfigArg(configPath string) (*config.Config, string, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, "", err
		}
		configPath = discovered
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}

// --- tail ---

func runTail(args []string) int {
	fs := flag.NewFlagSet("tail", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:9723", "API base URL")
	apiKey := fs.String("api-key", os.Getenv("VOXDECK_API_KEY"), "API bearer key")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	m := tui.NewTail(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// --- say ---

func runSay(args []string) int {
	fs := flag.NewFlagSet("say", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://127.0.0.1:9723", "API base URL")
	apiKey := fs.String("api-key", os.Getenv("VOXDECK_API_KEY"), "API bearer key")
	confidence := fs.Float64("confidence", 1.0, "Confidence to attach to the phrase")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fmt.Fprintln(os.Stderr, "Usage: voxdeck say [flags] <phrase>")
		return 1
	}

	seq, err := postSay(*apiURL, *apiKey, text, *confidence)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to submit phrase: %v\n", err)
		return 1
	}
	fmt.Printf("accepted #%d %q\n", seq, text)
	return 0
}

// --- version ---

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: voxdeck version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("voxdeck %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalized
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

// --- help ---

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printUsage() {
	fmt.Print(`voxdeck - Voice command dispatcher for OSC-controlled DAWs

Usage:
  voxdeck <command> [flags]

Service:
  run         Start the dispatcher in the foreground (reads transcripts on stdin)
  tail        Live event tail TUI over the HTTP API
  say         Inject a phrase through the HTTP API

Inspection:
  commands    List loaded commands, their readiness, and load problems
  catalog     Summarize the catalog or resolve an action name
  history     Show recent command log entries
  sessions    Show past sessions and their counters

Config:
  config check   Validate config, command tables, and catalog resolution
  config show    Print the effective configuration

General:
  version     Show version information
  help        Show this help message

Signals (while running):
  SIGHUP      Reload the catalog and command tables
  SIGINT      Graceful shutdown

Use 'voxdeck <command> --help' for command-specific flags.
`)
}

func printRunHelp() {
	fmt.Println("Usage: voxdeck run [--config PATH]")
	fmt.Println("Start the dispatcher in the foreground. Transcript lines are read")
	fmt.Println("from stdin as JSON: {\"text\": \"...\", \"confidence\": 0.93}.")
}

func printTailHelp() {
	fmt.Println("Usage: voxdeck tail [--api-url URL] [--api-key KEY]")
	fmt.Println("Follow the live event stream of a running instance.")
}

func printSayHelp() {
	fmt.Println("Usage: voxdeck say [--api-url URL] [--api-key KEY] [--confidence F] <phrase>")
	fmt.Println("Submit a phrase to a running instance as if it had been spoken.")
}

func printCommandsHelp() {
	fmt.Println("Usage: voxdeck commands [--config PATH] [--json]")
	fmt.Println("Load the command tables and catalog offline and report each")
	fmt.Println("command's patterns, steps, and readiness.")
}

func printCatalogHelp() {
	fmt.Println("Usage: voxdeck catalog [stats] [--config PATH] [--json]")
	fmt.Println("       voxdeck catalog resolve [--config PATH] [--json] <action name>")
	fmt.Println("Summarize the action catalog export, or look one action name up.")
}

func printHistoryHelp() {
	fmt.Println("Usage: voxdeck history [--config PATH] [--limit N] [--json]")
	fmt.Println("Show the most recent command log entries, newest first.")
}

func printSessionsHelp() {
	fmt.Println("Usage: voxdeck sessions [--config PATH] [--limit N] [--json]")
	fmt.Println("Show past sessions with their outcome counters, newest first.")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: voxdeck config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, show")
}
