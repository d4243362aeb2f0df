package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/3cpo-dev/conveyor/internal/core"
	"github.com/3cpo-dev/conveyor/internal/pipeline"
	"github.com/3cpo-dev/conveyor/internal/process"
	"github.com/3cpo-dev/conveyor/internal/task"
	"github.com/3cpo-dev/conveyor/internal/telemetry"
)

var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

// state is shared by the root command and its subcommands.
type state struct {
	cfg       core.Config
	collector *telemetry.Collector
	registry  *task.Registry
}

// Create the root command
func newRootCmd() *cobra.Command {
	st := &state{}
	cmd := &cobra.Command{
		Use:   "conveyor [task]",
		Short: "Conveyor: build task orchestration",
		Long:  "Conveyor resolves a graph of build tasks and runs each one once, in series or in parallel, stopping at the first failure.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := pipeline.DefaultTask
			if len(args) == 1 {
				name = args[0]
			}
			if err := st.load(cmd); err != nil {
				return err
			}
			return st.run(cmd.Context(), name)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("log", "l", "info", "Set log level. Available: trace, debug, info, warn, error, fatal")
	cmd.PersistentFlags().String("config", "", "config file (default ./conveyor.yaml)")
	cmd.PersistentFlags().Bool("debug", false, "Forward the output of external processes")
	cmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this file after the run")
	cmd.PersistentFlags().Bool("no-history", false, "Do not record the run in the history database")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		levelStr, _ := c.Flags().GetString("log")
		setLevel(levelStr)
		return core.LoadDotEnv("")
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newTasksCmd(st))
	cmd.AddCommand(newPlanCmd(st))
	cmd.AddCommand(newHistoryCmd(st))
	return cmd
}

// Create the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "conveyor %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

// load resolves configuration and registers the build graph.
func (st *state) load(cmd *cobra.Command) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := core.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	core.ApplyEnv(&cfg)
	if cmd.Flags().Changed("log") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log")
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Debug = true
	}
	if path, _ := cmd.Flags().GetString("metrics-file"); path != "" {
		cfg.Metrics.Textfile = path
	}
	if off, _ := cmd.Flags().GetBool("no-history"); off {
		cfg.History.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setLevel(cfg.LogLevel)

	st.cfg = cfg
	st.collector = telemetry.NewCollector(cfg.Metrics.Textfile != "")
	runner := process.New(process.Config{
		Debug:    cfg.Debug,
		Dir:      cfg.BuildPath(),
		Timeout:  cfg.Process.Timeout,
		Logger:   log.Logger,
		Recorder: st.collector,
	})
	st.registry = task.NewRegistry()
	return pipeline.Register(st.registry, pipeline.Deps{Config: cfg, Runner: runner})
}

// run executes name under the build lock, recording history and metrics.
func (st *state) run(ctx context.Context, name string) error {
	plan, err := task.Compile(st.registry, name)
	if err != nil {
		return err
	}

	lock, err := core.AcquireLock(ctx, st.cfg.RootDir, 0)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn().Err(err).Msg("Failed to release build lock")
		}
	}()

	var rec *core.RunRecorder
	if st.cfg.History.Enabled {
		store, err := core.NewStore(st.cfg.HistoryPath())
		if err != nil {
			return err
		}
		defer store.Close()
		if rec, err = store.Begin(ctx, name); err != nil {
			return err
		}
	}

	opts := []task.ExecutorOption{task.WithLogger(log.Logger), task.WithObserver(st.collector.Observer())}
	if rec != nil {
		opts = append(opts, task.WithObserver(rec))
	}
	exec := task.NewExecutor(st.registry, opts...)

	log.Info().Str("task", name).Int("nodes", plan.Len()).Msg("Running")
	d, runErr := st.collector.WithTimerScope("execute", func() error {
		return exec.Run(ctx, plan)
	})

	if rec != nil {
		// the run context may be cancelled already; history is still written
		if _, err := rec.Finish(context.WithoutCancel(ctx), runErr); err != nil {
			log.Warn().Err(err).Msg("Failed to record run history")
		}
	}
	if err := st.collector.WriteTextfile(st.cfg.Metrics.Textfile); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}
	if runErr != nil {
		return runErr
	}
	log.Info().Str("task", name).Dur("duration", d).Msg("Done")
	return nil
}

func setLevel(levelStr string) {
	switch levelStr {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Setup the logger
func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	noColor := !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd())
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339, NoColor: noColor})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// reportFailure logs err with the failing task when there is one.
func reportFailure(err error) {
	var failure *task.Error
	if errors.As(err, &failure) {
		log.Error().Str("task", failure.Task).Err(failure.Err).Msg("Task failed")
		return
	}
	log.Error().Err(err).Msg("Conveyor failed")
}

// Main entry point
func main() {
	setupLogger()
	root := newRootCmd()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		reportFailure(err)
		cancel()
		os.Exit(1)
	}
}
