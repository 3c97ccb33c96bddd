package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/triage/internal/aggregate"
	"github.com/tinytelemetry/triage/internal/archive"
	"github.com/tinytelemetry/triage/internal/classify"
	"github.com/tinytelemetry/triage/internal/duckdb"
	"github.com/tinytelemetry/triage/internal/httpserver"
	"github.com/tinytelemetry/triage/internal/loki"
	"github.com/tinytelemetry/triage/internal/model"
	"github.com/tinytelemetry/triage/internal/normalize"
	"github.com/tinytelemetry/triage/internal/ollama"
	"github.com/tinytelemetry/triage/internal/pattern"
	"github.com/tinytelemetry/triage/internal/rank"
	"github.com/tinytelemetry/triage/internal/report"
	"github.com/tinytelemetry/triage/internal/rules"
)

// run executes one analysis pass: fetch, archive, aggregate, rank, render,
// then optionally summarize, persist, and serve.
func run(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger()
	defer cleanupLogger()

	ruleSet, err := loadRules(cfg.RulesPath)
	if err != nil {
		return err
	}

	extractor, err := pattern.NewExtractor(pattern.Config{MaxLength: cfg.PatternMaxLength})
	if err != nil {
		return fmt.Errorf("building pattern extractor: %w", err)
	}
	classifier, err := classify.NewClassifier(ruleSet)
	if err != nil {
		return fmt.Errorf("building classifier: %w", err)
	}
	pipeline, err := aggregate.NewPipeline(aggregate.Config{
		Extractor:          extractor,
		Classifier:         classifier,
		Workers:            cfg.Workers,
		CriticalSampleSize: cfg.CriticalSample,
	})
	if err != nil {
		return fmt.Errorf("building pipeline: %w", err)
	}

	source, err := buildSource(cfg)
	if err != nil {
		return err
	}

	printStartupBanner(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now — not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		os.Exit(1)
	}()

	fmt.Printf("Fetching entries from %s...\n", source.Name())
	records, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching records: %w", err)
	}
	fmt.Printf("Fetched %d raw records\n", len(records))

	var raw *archive.Archive
	var archivedSeq uint64
	if cfg.ArchiveEnabled && !cfg.Replay {
		raw, err = archive.Open(cfg.ArchivePath)
		if err != nil {
			return fmt.Errorf("opening archive: %w", err)
		}
		defer raw.Close()
		archivedSeq, err = raw.AppendBatch(records)
		if err != nil {
			return fmt.Errorf("archiving records: %w", err)
		}
	}

	state, err := pipeline.Run(ctx, records)
	if err != nil {
		if errors.Is(err, aggregate.ErrAborted) {
			return fmt.Errorf("analysis aborted: %w", err)
		}
		return fmt.Errorf("running pipeline: %w", err)
	}

	ranked := rank.Rank(state, rank.Options{
		TopServices: cfg.TopServices,
		TopPatterns: cfg.TopPatterns,
	})

	renderer := report.NewRenderer(report.Meta{
		Title:        cfg.ReportTitle,
		Organization: cfg.Organization,
		Environment:  cfg.Env,
		DaysBack:     cfg.DaysBack,
		Source:       source.Name(),
		Query:        cfg.Query,
		FetchLimit:   cfg.FetchLimit,
	})
	doc := renderer.Render(ranked, rank.Buckets(state))

	summary := summarize(ctx, cfg, ranked)
	if summary != "" {
		doc += "\n## 🤖 LLM Analysis\n\n" + summary + "\n"
	}

	if err := os.WriteFile(cfg.ReportPath, []byte(doc), 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	fmt.Printf("Report generated: %s\n", cfg.ReportPath)
	fmt.Printf("Analyzed %d entries (%d rejected, %d critical) across %d services\n",
		ranked.TotalCount, ranked.RejectedCount, ranked.CriticalCount, ranked.ServicesAffected())

	var store *duckdb.Store
	if cfg.DBPath != "" {
		store, err = duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
		if err != nil {
			return fmt.Errorf("opening entry store: %w", err)
		}
		defer store.Close()
		if err := persistEntries(ctx, store, records, cfg.InsertBatchSize); err != nil {
			return fmt.Errorf("persisting entries: %w", err)
		}
		if cfg.RetentionDays > 0 {
			cutoff := time.Now().UTC().AddDate(0, 0, -cfg.RetentionDays)
			deleted, err := store.DeleteOlderThan(cutoff)
			if err != nil {
				log.Printf("store: retention delete failed: %v", err)
			} else if deleted > 0 {
				log.Printf("store: retention removed %d entries older than %d days", deleted, cfg.RetentionDays)
			}
		}
	}

	if raw != nil && archivedSeq > 0 {
		if err := raw.Commit(archivedSeq); err != nil {
			log.Printf("archive: commit failed: %v", err)
		}
	}
	if src, ok := source.(*archive.Source); ok && src.LastSeq() > 0 {
		commitReplayed(cfg.ArchivePath, src.LastSeq())
	}

	if cfg.ServeEnabled {
		return serveAPI(ctx, cfg, store, ranked, summary)
	}
	return nil
}

// commitReplayed marks a replayed tail as processed. Best-effort: the
// report already exists, a failed commit only means a redundant replay.
func commitReplayed(path string, seq uint64) {
	a, err := archive.Open(path)
	if err != nil {
		log.Printf("archive: reopen for commit failed: %v", err)
		return
	}
	defer a.Close()
	if err := a.Commit(seq); err != nil {
		log.Printf("archive: commit failed: %v", err)
	}
}

func buildSource(cfg appConfig) (model.EntrySource, error) {
	if cfg.Replay {
		src, err := archive.NewSource(cfg.ArchivePath)
		if err != nil {
			return nil, fmt.Errorf("building archive source: %w", err)
		}
		return src, nil
	}
	if cfg.InputFile != "" {
		src, err := loki.NewFileSource(loki.FileConfig{Path: cfg.InputFile})
		if err != nil {
			return nil, fmt.Errorf("building file source: %w", err)
		}
		return src, nil
	}

	start, end := cfg.timeWindow()
	client, err := loki.NewClient(loki.ClientConfig{
		BaseURL:  cfg.LokiURL,
		OrgID:    cfg.OrgID,
		Query:    cfg.Query,
		Limit:    cfg.FetchLimit,
		Start:    start,
		End:      end,
		DaysBack: cfg.DaysBack,
		Timeout:  cfg.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("building loki client: %w", err)
	}
	return client, nil
}

func loadRules(path string) (rules.RuleSet, error) {
	if path == "" {
		return rules.Default(), nil
	}
	rs, err := rules.Load(path)
	if err != nil {
		return rules.RuleSet{}, fmt.Errorf("loading rules: %w", err)
	}
	return rs, nil
}

// summarize runs the optional LLM pass. Failure is logged, never fatal:
// the markdown report already exists by the time this runs.
func summarize(ctx context.Context, cfg appConfig, ranked *model.RankedReport) string {
	if !cfg.LLMEnabled {
		return ""
	}

	s := ollama.NewSummarizer(ollama.Config{
		Endpoint:   cfg.LLMEndpoint,
		Model:      cfg.LLMModel,
		AutoManage: cfg.LLMAutoManage,
		Timeout:    cfg.LLMTimeout,
	})
	if err := s.Start(ctx); err != nil {
		log.Printf("ollama: unavailable, skipping summary: %v", err)
		return ""
	}
	defer s.Stop()

	fmt.Println("Generating LLM analysis...")
	summary, err := s.Summarize(ctx, ranked)
	if err != nil {
		log.Printf("ollama: summarize failed: %v", err)
		return ""
	}
	return summary
}

// persistEntries re-normalizes the raw batch into the entry store in
// insert-batch-size chunks.
func persistEntries(ctx context.Context, store *duckdb.Store, records []model.RawRecord, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 2000
	}
	normalizer := normalize.NewNormalizer()

	batch := make([]*model.LogEntry, 0, batchSize)
	var inserted int
	for i, record := range records {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		entry, ok := normalizer.Normalize(record)
		if !ok {
			continue
		}
		batch = append(batch, entry)
		if len(batch) >= batchSize {
			if err := store.InsertEntryBatch(batch); err != nil {
				return err
			}
			inserted += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := store.InsertEntryBatch(batch); err != nil {
			return err
		}
		inserted += len(batch)
	}
	log.Printf("store: persisted %d entries", inserted)
	return nil
}

func serveAPI(ctx context.Context, cfg appConfig, store *duckdb.Store, ranked *model.RankedReport, summary string) error {
	var querier model.StoreQuerier
	if store != nil {
		querier = store
	}
	api := httpserver.NewServer(cfg.APIAddr, querier)
	api.SetReport(ranked)
	if summary != "" {
		api.SetSummary(summary)
	}
	if err := api.Start(); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer api.Stop()

	fmt.Printf("Serving API on %s (Ctrl+C to stop)\n", cfg.APIAddr)
	<-ctx.Done()
	return nil
}

func configureRuntimeLogger() func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	home, err := os.UserHomeDir()
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logDir := filepath.Join(home, ".local", "state", "triage")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	logPath := filepath.Join(logDir, "triage.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔╦╗╦═╗╦╔═╗╔═╗╔═╗
     ║ ╠╦╝║╠═╣║ ╦║╣
     ╩ ╩╚═╩╩ ╩╚═╝╚═╝`)

	var lines []string
	lines = append(lines, logo)
	lines = append(lines, "    "+dim.Render("v"+version+" ("+cfg.Env+")"))
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Input"))
	lines = append(lines, "")
	if cfg.Replay {
		lines = append(lines, fmt.Sprintf("    %s  Source         %s", check, cyan.Render(shortenPath(cfg.ArchivePath))))
	} else if cfg.InputFile != "" {
		lines = append(lines, fmt.Sprintf("    %s  Source         %s", check, cyan.Render(shortenPath(cfg.InputFile))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Source         %s", check, cyan.Render(cfg.LokiURL)))
		lines = append(lines, fmt.Sprintf("    %s  Query          %s", check, dim.Render(cfg.Query)))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Output"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Report         %s", check, dim.Render(shortenPath(cfg.ReportPath))))
	if cfg.ArchiveEnabled {
		lines = append(lines, fmt.Sprintf("    %s  Archive        %s", check, dim.Render(shortenPath(cfg.ArchivePath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Archive        %s", dot, dim.Render("disabled")))
	}
	if cfg.DBPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Entry Store    %s", check, dim.Render(shortenPath(cfg.DBPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Entry Store    %s", dot, dim.Render("disabled")))
	}
	if cfg.LLMEnabled {
		lines = append(lines, fmt.Sprintf("    %s  LLM Summary    %s", check, dim.Render(cfg.LLMModel)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  LLM Summary    %s", dot, dim.Render("disabled")))
	}
	if cfg.ServeEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
