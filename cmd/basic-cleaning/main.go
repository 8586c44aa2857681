// Package main provides the CLI entry point for the basic cleaning stage.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rentalpipeline/basiccleaning/internal/artifact"
	"github.com/rentalpipeline/basiccleaning/internal/cli"
	"github.com/rentalpipeline/basiccleaning/internal/config"
	"github.com/rentalpipeline/basiccleaning/internal/errhandling"
	"github.com/rentalpipeline/basiccleaning/internal/factory"
	"github.com/rentalpipeline/basiccleaning/internal/logger"
	"github.com/rentalpipeline/basiccleaning/internal/pathutil"
	"github.com/rentalpipeline/basiccleaning/internal/registry"
	"github.com/rentalpipeline/basiccleaning/internal/runtime"
	"github.com/rentalpipeline/basiccleaning/pkg/stage"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitFailure = 1
)

var (
	// Build information (set via ldflags during build)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitFailure
	}
	return ExitSuccess
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	verbose bool
	quiet   bool
}

func (g *globalFlags) outputOptions() cli.OutputOptions {
	return cli.OutputOptions{Verbose: g.verbose, Quiet: g.quiet}
}

func newRootCmd() *cobra.Command {
	var (
		g      globalFlags
		params stage.Params
	)

	root := &cobra.Command{
		Use:   "basic-cleaning",
		Short: "Clean a rental listings dataset and publish it as a new artifact",
		Long: `basic-cleaning downloads a raw listings dataset from the artifact store,
drops rows whose price or coordinates fall outside the accepted ranges,
normalises last_review to a date and publishes the result as a new artifact
version.

Store, logging and durability settings come from the settings file
($BASIC_CLEANING_CONFIG or ./basic-cleaning.yaml) and BASIC_CLEANING_*
environment variables.

Exit codes:
  0 - Artifact published and confirmed durable
  1 - Any failure

Examples:
  basic-cleaning --input_artifact sample.csv:latest \
    --output_artifact clean_sample.csv --output_type clean_sample \
    --output_description "Data with outliers and null values removed" \
    --min_price 10 --max_price 350`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStage(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), params, &g)
		},
	}

	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable verbose output")
	root.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "Suppress non-error output")

	flags := root.Flags()
	flags.StringVar(&params.InputArtifact, "input_artifact", "", "Fully-qualified name of the input artifact")
	flags.StringVar(&params.OutputArtifact, "output_artifact", "", "Name of the output artifact")
	flags.StringVar(&params.OutputType, "output_type", "", "Type of the output artifact")
	flags.StringVar(&params.OutputDescription, "output_description", "", "Description of the output artifact")
	flags.Float64Var(&params.MinPrice, "min_price", 0, "Minimum nightly price to keep")
	flags.Float64Var(&params.MaxPrice, "max_price", 0, "Maximum nightly price to keep")
	for _, name := range []string{"input_artifact", "output_artifact", "output_type", "output_description", "min_price", "max_price"} {
		_ = root.MarkFlagRequired(name)
	}

	root.AddCommand(newVersionCmd(), newConfigCmd(&g), newArtifactCmd(&g))
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print version, commit hash, and build date information.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version: %s\n", version)
			fmt.Fprintf(out, "Commit: %s\n", commit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

func newConfigCmd(g *globalFlags) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the settings file",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "check [settings-file]",
		Short: "Parse and validate a settings file",
		Long: `Parse a settings file (JSON or YAML) and validate it against the schema.
Without an argument the file named by $BASIC_CLEANING_CONFIG is checked,
then ./basic-cleaning.yaml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := os.Getenv(config.EnvConfigPath)
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = config.DefaultConfigFile
			}
			if !cli.PrintSettingsResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), path, config.ParseSettingsFile(path), g.outputOptions()) {
				return fmt.Errorf("invalid settings file %s", path)
			}
			return nil
		},
	})
	return configCmd
}

// runStage executes one cleaning run. Arguments are checked before any
// settings or store access.
func runStage(ctx context.Context, stdout, stderr io.Writer, params stage.Params, g *globalFlags) error {
	if err := validateParams(params); err != nil {
		return err
	}

	settings, err := loadSettings(g)
	if err != nil {
		return err
	}
	defer logger.CloseLogFile()

	store, err := openStore(ctx, settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close artifact store", slog.String("error", err.Error()))
		}
	}()

	run, err := store.StartRun(ctx, stage.JobType, params.Map())
	if err != nil {
		return fmt.Errorf("starting run: %w", err)
	}
	logger.LogRunStart(logger.RunContext{RunID: run.ID(), JobType: stage.JobType, FilterIndex: -1}, params.Map())

	modules, err := factory.CreateModules(run, params, settings.WorkDir)
	if err != nil {
		return errors.Join(err, run.Finish(context.WithoutCancel(ctx), err))
	}
	result, execErr := runtime.NewExecutor(modules.Input, modules.Filters, modules.Output).Execute(ctx, run.ID())

	// Recording the outcome must not be skipped because ctx was canceled.
	if err := run.Finish(context.WithoutCancel(ctx), execErr); err != nil {
		logger.Warn("failed to record run status",
			slog.String("run_id", run.ID()),
			slog.String("error", err.Error()))
	}

	cli.PrintExecutionResult(stdout, stderr, result, execErr, g.outputOptions())
	return execErr
}

func validateParams(params stage.Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if _, err := artifact.ParseRef(params.InputArtifact); err != nil {
		return errhandling.NewArgumentError("invalid input_artifact", err)
	}
	if err := pathutil.ValidateArtifactName(params.OutputArtifact); err != nil {
		return errhandling.NewArgumentError("invalid output_artifact", err)
	}
	return nil
}

// loadSettings loads the settings and configures logging from them. The
// --verbose and --quiet flags override the configured level.
func loadSettings(g *globalFlags) (*config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	level, err := logger.ParseLevel(settings.Log.Level)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseFormat(settings.Log.Format)
	if err != nil {
		return nil, err
	}
	switch {
	case g.verbose:
		level = slog.LevelDebug
	case g.quiet:
		level = slog.LevelError
	}

	if settings.Log.File != "" {
		if err := logger.SetLogFile(settings.Log.File, level, format); err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
	} else {
		logger.SetLevelAndFormat(level, format)
	}

	logger.Debug("settings loaded",
		slog.String("source", settings.Source),
		slog.String("project", settings.Project),
		slog.String("backend", settings.Store.Backend))
	return settings, nil
}

// openStore builds the blob backend named in the settings and the registry.
func openStore(ctx context.Context, settings *config.Settings) (*artifact.Store, error) {
	blob, err := registry.NewBlob(ctx, settings.Store)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", settings.Store.Backend, err)
	}
	reg, err := artifact.OpenRegistry(settings.Store.Registry)
	if err != nil {
		return nil, errors.Join(err, blob.Close())
	}
	store, err := artifact.NewStore(reg, blob, artifact.Options{
		Project:           settings.Project,
		CacheDir:          settings.Store.CacheDir,
		DurabilityTimeout: settings.Durability.Timeout,
		PollInterval:      settings.Durability.PollInterval,
	})
	if err != nil {
		return nil, errors.Join(err, reg.Close(), blob.Close())
	}
	return store, nil
}
