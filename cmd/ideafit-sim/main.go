package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/joelkehle/ideafit/internal/apiclient"
	"github.com/joelkehle/ideafit/internal/config"
	"github.com/joelkehle/ideafit/internal/insight"
	"github.com/joelkehle/ideafit/internal/model"
	"github.com/joelkehle/ideafit/internal/simulate"
	"github.com/joelkehle/ideafit/internal/statkit"
	"github.com/joelkehle/ideafit/internal/store"
)

const maxIdeas = 3

func main() {
	idsFlag := flag.String("ids", "", "comma-separated idea ids (default: first seeded ideas)")
	dsnFlag := flag.String("dsn", "", "SQLite DSN or file path (overrides DB_DSN)")
	seedFlag := flag.Uint64("seed", 0, "RNG seed for reproducible runs (0 = STAT_SEED or random)")
	apiFlag := flag.String("api", "", "base URL of a running ideafit-api; simulate there instead of in-process")
	summaries := flag.Bool("summaries", true, "print the summary comment per idea")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dsnFlag != "" {
		cfg.DSN = *dsnFlag
	}
	if *seedFlag != 0 {
		cfg.StatSeed = seedFlag
	}
	setupLogger(cfg.Log)

	ctx := context.Background()
	ids := splitIDs(*idsFlag)
	var results []model.SimulationResult
	if *apiFlag != "" {
		results, err = runRemote(ctx, apiclient.NewClient(*apiFlag), ids)
	} else {
		results, err = runLocal(ctx, cfg, ids)
	}
	if err != nil {
		slog.Error("simulation failed", "err", err)
		os.Exit(1)
	}
	if len(results) == 0 {
		fmt.Println("No ideas simulated.")
		return
	}
	writeTable(os.Stdout, results)
	if *summaries {
		writeSummaries(os.Stdout, results)
	}
}

func runLocal(ctx context.Context, cfg *config.Config, ids []string) ([]model.SimulationResult, error) {
	st, err := store.NewSQLStore(store.Config{DSN: cfg.DSN})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	if err := st.Seed(ctx); err != nil {
		return nil, fmt.Errorf("seed store: %w", err)
	}
	if len(ids) == 0 {
		ideas, err := st.ListIdeas(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("list ideas: %w", err)
		}
		ids = ideaIDs(ideas)
	}

	var caller insight.LLMCaller
	if c, err := insight.NewAnthropicCallerWithKey(cfg.APIKey, cfg.ModelChat); err != nil {
		slog.Warn("llm not configured, running offline", "err", err)
	} else {
		caller = c
	}
	adapter := insight.NewAdapter(caller, insight.Config{
		CacheSize:     cfg.ReactionCacheSize,
		RatePerMinute: cfg.RequestRateLimitPerMinute,
	})
	svc := simulate.NewService(st, adapter, statkit.New(cfg.StatSeed))
	return svc.Simulate(ctx, capIDs(ids))
}

func runRemote(ctx context.Context, c *apiclient.Client, ids []string) ([]model.SimulationResult, error) {
	if err := c.Health(ctx); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ideas, err := c.ListIdeas(ctx, "")
		if err != nil {
			return nil, err
		}
		ids = ideaIDs(ideas)
	}
	return c.Simulate(ctx, capIDs(ids))
}

func ideaIDs(ideas []model.Idea) []string {
	ids := make([]string, 0, len(ideas))
	for _, idea := range ideas {
		ids = append(ids, idea.ID)
	}
	return ids
}

func capIDs(ids []string) []string {
	if len(ids) > maxIdeas {
		slog.Info("simulation capped", "requested", len(ids), "max", maxIdeas)
		return ids[:maxIdeas]
	}
	return ids
}

func writeTable(out io.Writer, results []model.SimulationResult) {
	table := tablewriter.NewWriter(out)
	table.Header("Idea", "Title", "PSF", "PMF", "CI95", "Win", "Verdict")
	for _, r := range results {
		table.Append(
			r.IdeaID,
			r.IdeaTitle,
			fmt.Sprintf("%.1f", r.PSF),
			fmt.Sprintf("%.1f", r.PMF),
			fmt.Sprintf("%.1f-%.1f", r.CI95.Low, r.CI95.High),
			fmt.Sprintf("%.3f", r.WinProb),
			string(statkit.Verdict(r.PMF, r.PSF)),
		)
	}
	table.Render()
}

func writeSummaries(out io.Writer, results []model.SimulationResult) {
	for _, r := range results {
		fmt.Fprintf(out, "\n%s: %s\n", r.IdeaID, r.SummaryComment)
		for _, pr := range r.PersonaReactions {
			fmt.Fprintf(out, "  - %s (%s): %s\n", pr.PersonaName, pr.Category, pr.Comment)
		}
	}
}

func splitIDs(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
