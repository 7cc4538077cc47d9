package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voxdeck/voxdeck/internal/catalog"
	"github.com/voxdeck/voxdeck/internal/command"
	"github.com/voxdeck/voxdeck/internal/history"
	"github.com/voxdeck/voxdeck/internal/lock"
)

// --- commands ---

type commandReport struct {
	Key            string   `json:"key"`
	Description    string   `json:"description,omitempty"`
	Group          string   `json:"group,omitempty"`
	Patterns       []string `json:"patterns"`
	Steps          []string `json:"steps"`
	Busy           bool     `json:"available_while_busy"`
	CooldownMS     int64    `json:"cooldown_ms"`
	Executable     bool     `json:"executable"`
	MissingEffects []string `json:"missing_effects,omitempty"`
}

func runCommands(args []string) int {
	fs := flag.NewFlagSet("commands", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigArg(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	cat, err := catalog.Load(cfg.Catalog.Path, cfg.Catalog.PrimaryContext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: catalog unavailable (%v), named effects will show as missing\n", err)
		cat = catalog.Empty(cfg.Catalog.PrimaryContext)
	}

	table, err := command.LoadTable(cfg.Commands.BasePath, cfg.Commands.OverridePath, cfg.Dispatch.ShutdownCommand)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load command table: %v\n", err)
		return 1
	}

	bindings, _ := command.Resolve(cat, table)

	var reports []commandReport
	for _, spec := range table.Specs() {
		r := commandReport{
			Key:            spec.Key,
			Description:    spec.Description,
			Group:          spec.Group,
			Patterns:       spec.Patterns,
			Busy:           spec.AvailableWhileBusy,
			CooldownMS:     spec.Cooldown.Milliseconds(),
			Executable:     command.Executable(spec, bindings),
			MissingEffects: command.MissingEffects(spec, bindings),
		}
		for _, step := range spec.Steps {
			r.Steps = append(r.Steps, step.String())
		}
		reports = append(reports, r)
	}

	if *jsonOut {
		out := struct {
			Commands []commandReport   `json:"commands"`
			Problems []command.Problem `json:"problems,omitempty"`
		}{reports, table.Problems()}
		return printJSON(out)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tREADY\tGROUP\tPATTERNS\tSTEPS")
	for _, r := range reports {
		ready := "yes"
		if !r.Executable {
			ready = "NO"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.Key, ready, r.Group,
			strings.Join(r.Patterns, ", "),
			strings.Join(r.Steps, "; "))
	}
	w.Flush()

	if problems := table.Problems(); len(problems) > 0 {
		fmt.Println("\nProblems:")
		for _, p := range problems {
			fmt.Printf("  %s: %s\n", p.Key, p.Reason)
		}
	}
	missing := false
	for _, r := range reports {
		if len(r.MissingEffects) > 0 {
			if !missing {
				fmt.Println("\nUnresolved effects:")
				missing = true
			}
			fmt.Printf("  %s: %s\n", r.Key, strings.Join(r.MissingEffects, ", "))
		}
	}
	return 0
}

// --- catalog ---

func runCatalog(args []string) int {
	// Bare "catalog" is a stats alias; "resolve" looks one name up.
	if len(args) > 0 {
		switch args[0] {
		case "resolve":
			return runCatalogResolve(args[1:])
		case "stats":
			args = args[1:]
		}
	}

	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cat, catalogPath, code := loadCatalogArg(*configPath)
	if code != 0 {
		return code
	}

	contexts := cat.Contexts()
	names := make([]string, 0, len(contexts))
	for name := range contexts {
		names = append(names, name)
	}
	sort.Strings(names)

	if *jsonOut {
		out := struct {
			Path     string         `json:"path"`
			Primary  string         `json:"primary_context"`
			Actions  int            `json:"actions"`
			Skipped  int            `json:"skipped_lines"`
			Contexts map[string]int `json:"contexts"`
		}{catalogPath, cat.PrimaryContext(), cat.Len(), cat.Skipped(), contexts}
		return printJSON(out)
	}

	fmt.Printf("catalog: %s\n", catalogPath)
	fmt.Printf("primary context: %s\n", cat.PrimaryContext())
	fmt.Printf("actions: %d (skipped %d malformed lines)\n", cat.Len(), cat.Skipped())
	fmt.Println("contexts:")
	for _, name := range names {
		fmt.Printf("  %-20s %d\n", name, contexts[name])
	}
	return 0
}

func runCatalogResolve(args []string) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	// Action names contain spaces and colons, so everything after the
	// flags is the name.
	name := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if name == "" {
		fmt.Fprintln(os.Stderr, "Usage: voxdeck catalog resolve [--config PATH] <action name>")
		return 1
	}

	cat, _, code := loadCatalogArg(*configPath)
	if code != 0 {
		return code
	}

	entry, found := cat.Resolve(name)

	if *jsonOut {
		out := struct {
			Name    string            `json:"name"`
			Found   bool              `json:"found"`
			ID      *catalog.ActionID `json:"id,omitempty"`
			Context string            `json:"context,omitempty"`
		}{Name: name, Found: found}
		if found {
			out.ID = &entry.ID
			out.Context = entry.Context
		}
		if printJSON(out) != 0 || !found {
			return 1
		}
		return 0
	}

	if !found {
		fmt.Fprintf(os.Stderr, "%q is not in the catalog\n", name)
		return 1
	}
	fmt.Printf("%s\t%s\t%s\n", entry.Context, entry.ID, entry.Name)
	return 0
}

func loadCatalogArg(configPath string) (*catalog.Catalog, string, int) {
	cfg, _, err := loadConfigArg(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, "", 1
	}
	cat, err := catalog.Load(cfg.Catalog.Path, cfg.Catalog.PrimaryContext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
		return nil, "", 1
	}
	return cat, cfg.Catalog.Path, 0
}

// --- history / sessions ---

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Number of entries to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	store, ok := openHistory(*configPath)
	if !ok {
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := store.RecentCommands(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No commands recorded yet.")
		return 0
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tHEARD\tCOMMAND\tRESULT\tSTEPS\tDURATION")
	for _, r := range records {
		detail := r.Result
		if r.Reason != "" {
			detail = fmt.Sprintf("%s (%s)", r.Result, r.Reason)
		}
		fmt.Fprintf(w, "%s\t%q\t%s\t%s\t%d/%d\t%dms\n",
			r.At.Local().Format("15:04:05"),
			r.Heard, r.Command, detail,
			r.StepsSent, r.StepsTotal, r.DurationMS)
	}
	w.Flush()
	return 0
}

func runSessions(args []string) int {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 10, "Number of sessions to show")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	store, ok := openHistory(*configPath)
	if !ok {
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessions, err := store.Sessions(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read sessions: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(sessions)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions recorded yet.")
		return 0
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tID\tUTTERANCES\tCOMPLETED\tPARTIAL\tBLOCKED\tENDED")
	for _, s := range sessions {
		ended := "running"
		if s.EndedAt != nil {
			ended = s.EndedAt.Local().Format("15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.ID[:8], s.Utterances, s.Completed, s.Partial, s.Blocked, ended)
	}
	w.Flush()
	return 0
}

func openHistory(configPath string) (*history.Store, bool) {
	cfg, _, err := loadConfigArg(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history db: %v\n", err)
		return nil, false
	}
	return store, true
}

// --- config ---

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: voxdeck config check [--config PATH] [--json]")
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			fmt.Println("Usage: voxdeck config show [--config PATH]")
			return 0
		}
		return runConfigShow(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

type configCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type configCheckReport struct {
	Healthy bool          `json:"healthy"`
	Checks  []configCheck `json:"checks"`
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := checkConfig(*configPath)

	if *jsonOut {
		if printJSON(report) != 0 {
			return 1
		}
	} else {
		for _, c := range report.Checks {
			status := "OK"
			if !c.OK {
				status = "FAIL"
			}
			line := fmt.Sprintf("%s: %s", c.Name, status)
			if c.Detail != "" {
				line += fmt.Sprintf(" (%s)", c.Detail)
			}
			fmt.Println(line)
		}
	}

	if !report.Healthy {
		return 1
	}
	return 0
}

func checkConfig(configPath string) configCheckReport {
	var report configCheckReport
	add := func(name string, ok bool, detail string) {
		report.Checks = append(report.Checks, configCheck{Name: name, OK: ok, Detail: detail})
	}

	cfg, resolvedPath, err := loadConfigArg(configPath)
	if err != nil {
		add("config_load", false, err.Error())
		add("catalog", false, "skipped: config not loaded")
		add("commands", false, "skipped: config not loaded")
		add("effects", false, "skipped: config not loaded")
		return report
	}
	add("config_load", true, resolvedPath)

	cat, err := catalog.Load(cfg.Catalog.Path, cfg.Catalog.PrimaryContext)
	if err != nil {
		add("catalog", false, err.Error())
		cat = catalog.Empty(cfg.Catalog.PrimaryContext)
	} else {
		add("catalog", true, fmt.Sprintf("%d actions, %d skipped", cat.Len(), cat.Skipped()))
	}

	table, err := command.LoadTable(cfg.Commands.BasePath, cfg.Commands.OverridePath, cfg.Dispatch.ShutdownCommand)
	if err != nil {
		add("commands", false, err.Error())
		add("effects", false, "skipped: commands not loaded")
		return report
	}
	if problems := table.Problems(); len(problems) > 0 {
		add("commands", true, fmt.Sprintf("%d loaded, %d dropped", table.Len(), len(problems)))
	} else {
		add("commands", true, fmt.Sprintf("%d loaded", table.Len()))
	}

	_, unresolved := command.Resolve(cat, table)
	if len(unresolved) > 0 {
		names := make([]string, 0, len(unresolved))
		for _, u := range unresolved {
			names = append(names, u.Effect)
		}
		add("effects", false, "unresolved: "+strings.Join(names, ", "))
	} else {
		add("effects", true, "all effect names resolve")
	}

	// A held lock is informational, not a failure: checking while a
	// session is live is the common case.
	if l, err := lock.Acquire(cfg.Service.PIDFile); err != nil {
		add("pid_lock", true, err.Error())
	} else {
		_ = l.Release()
		add("pid_lock", true, "free")
	}

	report.Healthy = true
	for _, c := range report.Checks {
		if !c.OK {
			report.Healthy = false
			break
		}
	}
	return report
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, resolvedPath, err := loadConfigArg(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Printf("# effective configuration (%s)\n", resolvedPath)
	os.Stdout.Write(data)
	return 0
}

// --- helpers ---

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func postSay(apiURL, apiKey, text string, confidence float64) (int64, error) {
	body, err := json.Marshal(map[string]any{
		"text":       text,
		"confidence": confidence,
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, apiURL+"/v1/say", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return 0, fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return 0, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var say struct {
		Seq int64 `json:"seq"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&say); err != nil {
		return 0, err
	}
	return say.Seq, nil
}
