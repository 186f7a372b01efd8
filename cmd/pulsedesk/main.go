package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/pulsedesk/pulsedesk/internal/analyze"
	"github.com/pulsedesk/pulsedesk/internal/config"
	"github.com/pulsedesk/pulsedesk/internal/llm"
	"github.com/pulsedesk/pulsedesk/internal/pipeline"
	"github.com/pulsedesk/pulsedesk/internal/process"
	"github.com/pulsedesk/pulsedesk/internal/report"
	"github.com/pulsedesk/pulsedesk/internal/scheduler"
	"github.com/pulsedesk/pulsedesk/internal/server"
	"github.com/pulsedesk/pulsedesk/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "pulsedesk",
	Short:   "AI insights from customer feedback",
	Long:    "PulseDesk categorizes customer feedback, discovers insights, clusters themes, generates ideas, and links them into an actionable backlog.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		logger, err = newLogger(cfg.Logging.Level, verbose)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(themesCmd)
	rootCmd.AddCommand(ideasCmd)
	rootCmd.AddCommand(stakeholdersCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(attackCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(personasCmd)
}

func newLogger(level string, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("pulsedesk", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/pulsedesk/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the LLM provider and API keys.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.GetStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Feedback:")
		fmt.Printf("  Total: %d\n", stats.TotalFeedback)
		fmt.Printf("  Categorized: %d\n", stats.ProcessedFeedback)
		fmt.Printf("  Awaiting insights: %d\n", stats.ReadyFeedback)
		fmt.Println("\nAnalysis:")
		fmt.Printf("  Insights: %d\n", stats.Insights)
		fmt.Printf("  Themes: %d\n", stats.Themes)
		fmt.Printf("  Ideas: %d\n", stats.Ideas)
		fmt.Printf("  Stakeholder segments: %d\n", stats.Segments)
		fmt.Printf("  Idea relationships: %d\n", stats.Relationships)
		fmt.Println("\nOutput:")
		fmt.Printf("  Pulse reports: %d\n", stats.PulseReports)
		return nil
	},
}

// --- import command ---

type importItem struct {
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	AuthorName string `json:"author_name"`
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import feedback items from a JSON file",
	Long:  "Import reads a JSON array of feedback items ({source, external_id, title, content, author_name}) and inserts them, skipping duplicates by (source, external_id).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading import file: %w", err)
		}
		var items []importItem
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("parsing import file: %w", err)
		}

		inserted, skipped := 0, 0
		for _, item := range items {
			id, err := st.InsertFeedback(cmd.Context(), &store.Feedback{
				Source:     item.Source,
				ExternalID: item.ExternalID,
				Title:      item.Title,
				Content:    item.Content,
				AuthorName: item.AuthorName,
			})
			if err != nil {
				return fmt.Errorf("inserting feedback: %w", err)
			}
			if id == 0 {
				skipped++
				continue
			}
			inserted++
		}

		fmt.Printf("Imported %d feedback items (%d duplicates skipped).\n", inserted, skipped)
		return nil
	},
}

// --- process command ---

var processLimit int

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Categorize unprocessed feedback with the LLM",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		an, err := newAnalyzer(cmd.Context(), st)
		if err != nil {
			return err
		}

		items, err := st.UnprocessedFeedback(cmd.Context(), processLimit)
		if err != nil {
			return fmt.Errorf("loading unprocessed feedback: %w", err)
		}
		if len(items) == 0 {
			fmt.Println("No unprocessed feedback.")
			return nil
		}

		fmt.Printf("Categorizing %d feedback items...\n", len(items))
		result, err := process.New(st, an, logger.Named("process")).ProcessBatch(cmd.Context(), items)
		if err != nil {
			return err
		}
		fmt.Printf("Processed: %d, failed: %d\n", result.Processed, result.Failed)
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processLimit, "limit", 100, "Maximum items to process")
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full pipeline: process -> insights -> themes -> ideas -> stakeholders -> links",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		an, err := newAnalyzer(cmd.Context(), st)
		if err != nil {
			return err
		}

		items, err := st.UnprocessedFeedback(cmd.Context(), cfg.Pipeline.FeedbackBatchLimit)
		if err != nil {
			return fmt.Errorf("loading unprocessed feedback: %w", err)
		}
		if len(items) > 0 {
			fmt.Printf("Categorizing %d feedback items...\n", len(items))
			if _, err := process.New(st, an, logger.Named("process")).ProcessBatch(cmd.Context(), items); err != nil {
				return err
			}
		}

		pipe := pipeline.New(st, an, cfg, logger.Named("pipeline"))
		counts, err := pipe.Run(cmd.Context(), nil)
		if err != nil {
			return err
		}

		fmt.Println("\nPipeline complete:")
		fmt.Printf("  Feedback analyzed: %d\n", counts.FeedbacksAnalyzed)
		fmt.Printf("  Insights: %d\n", counts.InsightsCreated)
		fmt.Printf("  Themes: %d\n", counts.ThemesCreated)
		fmt.Printf("  Ideas: %d\n", counts.IdeasCreated)
		fmt.Printf("  Stakeholders: %d\n", counts.StakeholdersIdentified)
		fmt.Printf("  Relationships: %d\n", counts.RelationshipsLinked)
		fmt.Println("\nRun 'pulsedesk serve' to browse the results.")
		return nil
	},
}

// --- standalone stage commands ---

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Discover insights from categorized feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline) error {
			result, err := pipe.RunDiscovery(ctx, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Discovered %d insights.\n", result.Created)
			return nil
		})
	},
}

var themesCmd = &cobra.Command{
	Use:   "themes",
	Short: "Cluster actionable insights into themes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline) error {
			result, err := pipe.RunThemeAnalysis(ctx, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Created %d themes.\n", result.Created)
			return nil
		})
	},
}

var ideasCmd = &cobra.Command{
	Use:   "ideas",
	Short: "Generate ideas for insights without solutions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline) error {
			result, err := pipe.RunIdeaGeneration(ctx, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Generated %d ideas.\n", result.Created)
			return nil
		})
	},
}

var stakeholdersCmd = &cobra.Command{
	Use:   "stakeholders",
	Short: "Identify stakeholder segments for actionable insights",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline) error {
			result, err := pipe.RunStakeholderIdentification(ctx, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Identified %d stakeholder links (%d distinct segments).\n", result.Identified, len(result.Segments))
			return nil
		})
	},
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Infer relationships between actionable ideas",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline) error {
			result, err := pipe.RunIdeaLinking(ctx, nil)
			if err != nil {
				return err
			}
			fmt.Printf("Linked %d idea relationships.\n", result.Linked)
			return nil
		})
	},
}

var attackCmd = &cobra.Command{
	Use:   "attack-groups",
	Short: "Bundle insights and ideas into coordinated attack groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withPipeline(cmd.Context(), func(ctx context.Context, pipe *pipeline.Pipeline) error {
			result, err := pipe.BuildAttackGroups(ctx, nil, nil, nil)
			if err != nil {
				return err
			}
			if len(result.Groups) == 0 {
				fmt.Println("No attack groups formed.")
				return nil
			}
			for i, g := range result.Groups {
				fmt.Printf("\nGroup %d: %s\n", i+1, g.Name)
				fmt.Printf("  %s\n", g.Summary)
				fmt.Printf("  Effort: %s, impact: %s\n", g.CombinedEffort, g.CombinedImpact)
				fmt.Printf("  Insights: %d, ideas: %d\n", len(g.Insights), len(g.Ideas))
				for j, idea := range g.Ideas {
					fmt.Printf("    %d. %s\n", j+1, idea.Title)
				}
			}
			return nil
		})
	},
}

// --- report command ---

var reportHours int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a pulse report for the trailing period",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		provider, err := llm.CreateProvider(cfg.Analysis, logger.Named("llm"))
		if err != nil {
			logger.Warn("no LLM provider configured, skipping trends", zap.Error(err))
			provider = nil
		}

		end := time.Now().UTC()
		start := end.Add(-time.Duration(reportHours) * time.Hour)
		r, err := report.New(st, provider, logger.Named("report")).Generate(cmd.Context(), start, end)
		if err != nil {
			return err
		}

		fmt.Printf("Pulse report %d saved (%d feedback items).\n\n", r.ID, r.FeedbackCount)
		fmt.Println(r.Summary)
		return nil
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportHours, "hours", 24, "Reporting window in hours")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(st, port, logger.Named("server"))
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

// --- schedule command ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the recurring pipeline jobs until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		an, err := newAnalyzer(cmd.Context(), st)
		if err != nil {
			return err
		}
		pipe := pipeline.New(st, an, cfg, logger.Named("pipeline"))
		proc := process.New(st, an, logger.Named("process"))

		var trendProvider llm.Provider
		if p, err := llm.CreateProvider(cfg.Analysis, logger.Named("llm")); err == nil {
			trendProvider = p
		}
		reporter := report.New(st, trendProvider, logger.Named("report"))

		sched := scheduler.New(logger.Named("scheduler"))
		sched.Add("process", minutes(cfg.Scheduler.ProcessIntervalMinutes), func(ctx context.Context) error {
			items, err := st.UnprocessedFeedback(ctx, cfg.Pipeline.FeedbackBatchLimit)
			if err != nil {
				return err
			}
			_, err = proc.ProcessBatch(ctx, items)
			return err
		})
		sched.Add("insights", minutes(cfg.Scheduler.InsightIntervalMinutes), func(ctx context.Context) error {
			_, err := pipe.Run(ctx, nil)
			return err
		})
		sched.Add("attack-groups", minutes(cfg.Scheduler.AttackIntervalMinutes), func(ctx context.Context) error {
			result, err := pipe.BuildAttackGroups(ctx, nil, nil, nil)
			if err != nil {
				return err
			}
			for _, g := range result.Groups {
				logger.Info("attack group formed",
					zap.String("name", g.Name),
					zap.Int("insights", len(g.Insights)),
					zap.Int("ideas", len(g.Ideas)))
			}
			return nil
		})
		sched.Add("maintain", minutes(cfg.Scheduler.MaintainIntervalMinutes), func(ctx context.Context) error {
			if err := pipe.MaintainThemes(ctx); err != nil {
				return err
			}
			end := time.Now().UTC()
			_, err := reporter.Generate(ctx, end.Add(-24*time.Hour), end)
			return err
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Println("Scheduler running. Press Ctrl+C to stop.")
		sched.Run(ctx)
		return nil
	},
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// --- personas command ---

var personasCmd = &cobra.Command{
	Use:   "personas",
	Short: "Manage analysis personas",
}

var personasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all personas",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		personas, err := st.ListPersonas(cmd.Context())
		if err != nil {
			return err
		}
		if len(personas) == 0 {
			fmt.Println("No personas defined. Add one with: pulsedesk personas add")
			return nil
		}

		fmt.Println("Personas:")
		for _, p := range personas {
			icon := " "
			if p.Active {
				icon = "*"
			}
			fmt.Printf("  %s %s (%s)\n", icon, p.Name, p.Archetype)
			if p.Description != "" {
				fmt.Printf("      %s\n", p.Description)
			}
		}
		return nil
	},
}

var (
	personaName        string
	personaDescription string
	personaPrompt      string
)

var personasAddCmd = &cobra.Command{
	Use:   "add [archetype]",
	Short: "Add or update a persona",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		p := &store.Persona{
			Name:         personaName,
			Archetype:    args[0],
			Description:  personaDescription,
			SystemPrompt: personaPrompt,
		}
		if p.Name == "" {
			p.Name = args[0]
		}
		if err := st.UpsertPersona(cmd.Context(), p); err != nil {
			return err
		}
		fmt.Printf("Saved persona %q (%s).\n", p.Name, p.Archetype)
		return nil
	},
}

var personasActivateCmd = &cobra.Command{
	Use:   "activate [archetype]",
	Short: "Make a persona the active analysis viewpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SetActivePersona(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Activated persona %q.\n", args[0])
		return nil
	},
}

func init() {
	personasAddCmd.Flags().StringVar(&personaName, "name", "", "Display name (defaults to archetype)")
	personasAddCmd.Flags().StringVar(&personaDescription, "description", "", "Short description")
	personasAddCmd.Flags().StringVar(&personaPrompt, "prompt", "", "System prompt appended to every stage")
	personasCmd.AddCommand(personasListCmd)
	personasCmd.AddCommand(personasAddCmd)
	personasCmd.AddCommand(personasActivateCmd)
}

// --- shared helpers ---

func openStore() (*store.Store, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return store.Open(filepath.Join(dataDir, "pulsedesk.db"))
}

func newAnalyzer(ctx context.Context, st *store.Store) (*analyze.Analyzer, error) {
	provider, err := llm.CreateProvider(cfg.Analysis, logger.Named("llm"))
	if err != nil {
		return nil, err
	}

	interval := time.Duration(cfg.Analysis.RateIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	an := analyze.New(provider, rate.NewLimiter(rate.Every(interval), 1), logger.Named("analyze"))

	persona, err := st.ActivePersona(ctx)
	if err != nil {
		return nil, err
	}
	if persona != nil {
		logger.Info("using persona", zap.String("archetype", persona.Archetype))
		an.SetPersona(persona)
	}
	return an, nil
}

func withPipeline(ctx context.Context, fn func(context.Context, *pipeline.Pipeline) error) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	an, err := newAnalyzer(ctx, st)
	if err != nil {
		return err
	}
	return fn(ctx, pipeline.New(st, an, cfg, logger.Named("pipeline")))
}
