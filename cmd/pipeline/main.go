package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retail-pipeline/config"
	"retail-pipeline/internal/broker"
	"retail-pipeline/internal/engine"
	"retail-pipeline/internal/export"
	"retail-pipeline/internal/ingest"
	"retail-pipeline/internal/redisclient"
	"retail-pipeline/internal/service"
	"retail-pipeline/internal/store"
	"retail-pipeline/internal/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Clean retail transactions and build the sales star schema",
	Long: `pipeline runs the cleaning and dimensional modeling engine over a raw
online retail extract and loads fact_sales, dim_date, dim_product and
dim_customer into Postgres and OUTPUT_DIR.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		return util.InitLogger(cfg.Server.Env)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		util.SyncLogger()
	},
}

var runFlags struct {
	input   string
	output  string
	formats []string
	runID   string
	skipDB  bool
	publish bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one full-refresh pipeline run",
	Long: `Execute one synchronous run: ingest the input CSV, classify, deduplicate,
build the dimensions and facts, verify referential integrity, then load the
star schema and export the tables. The run summary is printed as JSON.

With --skip-db the run touches neither Postgres nor Redis and only writes files.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Show row counts of the loaded star schema",
	Args:  cobra.NoArgs,
	RunE:  showTables,
}

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recent runs, or show one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  showRuns,
}

var runsLimit int

var checkFlags struct {
	input string
	rows  bool
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry run: classify and model the input without loading or exporting",
	Long: `Run the engine over the input and print its report and quality ledger.
Nothing is written to Postgres, Redis or OUTPUT_DIR.`,
	Args: cobra.NoArgs,
	RunE: checkInput,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the business rules in evaluation order",
	Args:  cobra.NoArgs,
	RunE:  listRules,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.input, "input", "i", "", "Input CSV (defaults to INPUT_PATH)")
	runCmd.Flags().StringVarP(&runFlags.output, "output", "o", "", "Output directory (defaults to OUTPUT_DIR)")
	runCmd.Flags().StringSliceVarP(&runFlags.formats, "formats", "f", nil, "Export formats: parquet, csv (defaults to EXPORT_FORMATS)")
	runCmd.Flags().StringVar(&runFlags.runID, "run-id", "", "Run identifier (generated when empty)")
	runCmd.Flags().BoolVar(&runFlags.skipDB, "skip-db", false, "Skip Postgres and Redis")
	runCmd.Flags().BoolVar(&runFlags.publish, "publish", false, "Publish run events to Kafka")

	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list")

	checkCmd.Flags().StringVarP(&checkFlags.input, "input", "i", "", "Input CSV (defaults to INPUT_PATH)")
	checkCmd.Flags().BoolVar(&checkFlags.rows, "rows", false, "Include offending row indices in the ledger")

	rootCmd.AddCommand(runCmd, checkCmd, rulesCmd, tablesCmd, runsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := util.GetLogger()

	outputDir := cfg.Pipeline.OutputDir
	if runFlags.output != "" {
		outputDir = runFlags.output
	}
	formats := cfg.Pipeline.ExportFormats
	if len(runFlags.formats) > 0 {
		formats = runFlags.formats
	}
	formats, err := export.ParseFormats(formats)
	if err != nil {
		return err
	}

	var (
		runStore  service.RunStore
		runCache  service.RunCache
		publisher service.RunEventPublisher
	)

	if !runFlags.skipDB {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		runStore = db

		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Pipeline.RecentRunsLimit)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		runCache = redisClient
	}

	if runFlags.publish {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPipeline)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
	}

	svc := service.NewPipelineService(runStore, runCache, publisher, export.NewWriter(outputDir, logger), service.Options{
		DefaultInputPath: cfg.Pipeline.InputPath,
		ExportFormats:    formats,
		LockTTL:          time.Duration(cfg.Pipeline.RunLockTTLSeconds) * time.Second,
		RecentRunsLimit:  cfg.Pipeline.RecentRunsLimit,
		Engine:           engineOptions(),
	})

	summary, runErr := svc.Run(ctx, service.RunRequest{
		RunID:     runFlags.runID,
		InputPath: runFlags.input,
		Formats:   formats,
	})
	if summary != nil {
		if err := printJSON(cmd, summary); err != nil {
			return err
		}
	}
	if runErr != nil {
		logger.Error("Pipeline run failed", zap.Error(runErr))
		return runErr
	}
	return nil
}

func checkInput(cmd *cobra.Command, args []string) error {
	input := cfg.Pipeline.InputPath
	if checkFlags.input != "" {
		input = checkFlags.input
	}

	raw, err := ingest.ReadFile(input)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	result, err := engine.New(engineOptions(), util.GetLogger()).Run(cmd.Context(), raw)
	if err != nil {
		return err
	}

	return printJSON(cmd, struct {
		Report engine.Report        `json:"report"`
		Ledger []engine.LedgerEntry `json:"ledger"`
	}{
		Report: result.Report,
		Ledger: result.Ledger.Entries(checkFlags.rows),
	})
}

func listRules(cmd *cobra.Command, args []string) error {
	type ruleView struct {
		Name    string `json:"name"`
		Kind    string `json:"kind"`
		Outcome string `json:"outcome,omitempty"`
	}

	catalog := engine.New(engineOptions(), util.GetLogger()).Catalog()
	views := make([]ruleView, 0, len(catalog))
	for _, r := range catalog {
		outcome := string(r.Reason)
		if r.Flag != "" {
			outcome = string(r.Flag)
		}
		views = append(views, ruleView{Name: r.Name, Kind: r.Kind.String(), Outcome: outcome})
	}
	return printJSON(cmd, views)
}

func showTables(cmd *cobra.Command, args []string) error {
	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	counts, err := db.TableCounts(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd, counts)
}

func showRuns(cmd *cobra.Command, args []string) error {
	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if len(args) == 1 {
		run, err := db.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, run)
	}

	runs, err := db.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	return printJSON(cmd, runs)
}

func engineOptions() engine.Options {
	return engine.Options{
		HighQuantityThreshold: cfg.Pipeline.HighQuantityThreshold,
		UnknownProductLabel:   cfg.Pipeline.UnknownProductLabel,
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
