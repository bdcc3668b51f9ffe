package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/st-keller/galacash-smoke/config"
	"github.com/st-keller/galacash-smoke/history"
	"github.com/st-keller/galacash-smoke/runner"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Run flags; applied over the config file and environment only when set.
	baseURL   string
	saveDir   string
	historyDB string
	keepGoing bool
	extended  bool
	checkMe   bool
	wait      bool

	historyLimit int
	forceInit    bool

	// Logger
	logger *zap.Logger
	// logLevel is raised to debug once the loaded config asks for verbose output.
	logLevel = zap.NewAtomicLevel()

	// exitCode is what main exits with after a run.
	exitCode int
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "galacash-smoke",
		Short: "Smoke test every read endpoint of a GalaCash API deployment",
		Long: `galacash-smoke logs in as a student and as a bendahara, walks the
dashboard, label, transaction, export, fund application and cash bill routes,
and prints per-category latency statistics.

Requests are paced to stay under the API's auth rate limits: 300ms between
requests, 20s between the two logins and 60s before the flows start.

Exit status is 0 when every request succeeded and 1 otherwise.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logConfig := zap.NewProductionConfig()
			logLevel.SetLevel(zapcore.InfoLevel)
			if verbose {
				logLevel.SetLevel(zapcore.DebugLevel)
			}
			logConfig.Level = logLevel
			var err error
			logger, err = logConfig.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: runSmoke,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file (env vars override it; default $SMOKE_CONFIG)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "print every request and debug logs")
	pf.StringVar(&historyDB, "history-db", "", "SQLite file recording run history")

	f := rootCmd.Flags()
	f.StringVar(&baseURL, "base-url", "", "API base URL including /api")
	f.StringVar(&saveDir, "save-dir", "", "directory to save transaction exports to")
	f.BoolVar(&keepGoing, "keep-going", false, "continue after failed requests")
	f.BoolVar(&extended, "extended", false, "also cover /users, /cash-bills/my and /cron/health")
	f.BoolVar(&checkMe, "check-me", false, "call /auth/me after login")
	f.BoolVar(&wait, "wait", false, "wait for ENTER before logging in")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the history database",
		Args:  cobra.NoArgs,
		RunE:  listHistory,
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of runs to show")

	initCmd := &cobra.Command{
		Use:   "init-config [path]",
		Short: "Write a config file with the default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE:  initConfig,
	}
	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")

	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(initCmd)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}

// loadConfig layers defaults, the config file, the environment and set flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("SMOKE_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = baseURL
	}
	if flags.Changed("save-dir") {
		cfg.SaveDir = saveDir
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB = historyDB
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if flags.Changed("keep-going") {
		cfg.KeepGoing = keepGoing
	}
	if flags.Changed("extended") {
		cfg.Extended = extended
	}
	if flags.Changed("check-me") {
		cfg.CheckMe = checkMe
	}
	if flags.Changed("wait") {
		cfg.WaitBeforeStart = wait
	}

	// VERBOSE=1 or verbose: true also enables debug logs.
	if cfg.Verbose {
		logLevel.SetLevel(zapcore.DebugLevel)
	}
	return cfg, nil
}

// runSmoke executes the smoke test.
func runSmoke(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger.Debug("Loaded config", zap.Stringer("config", cfg))

	r, err := runner.New(cfg, cmd.OutOrStdout(),
		runner.WithLogger(logger),
		runner.WithStdin(cmd.InOrStdin()),
	)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	exitCode = r.Run(ctx)
	return nil
}

// listHistory prints recent runs.
func listHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.HistoryDB == "" {
		return fmt.Errorf("no history database configured (use --history-db or SMOKE_HISTORY_DB)")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := history.Open(ctx, cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tEXIT\tREQUESTS\tFAILED\tDURATION\tBASE URL")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\t%s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.ExitCode,
			run.Summary.Total,
			run.Summary.Failed,
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second),
			run.BaseURL,
		)
	}
	return tw.Flush()
}

// initConfig writes the default config.
func initConfig(cmd *cobra.Command, args []string) error {
	path := "galacash-smoke.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
