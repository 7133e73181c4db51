package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/bgproces/internal/config"
	"github.com/roach88/bgproces/internal/spec"
	"github.com/roach88/bgproces/internal/store"
)

// RootOptions holds global flags for all commands, and the settings and
// logger derived from them before a subcommand runs.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	StorePath  string

	Config *config.Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the bgproces CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "bgproces",
		Short: "bgproces - BG-process scenario specifications",
		Long: `Author, check and inspect scenario specifications of the legislative
process of a bevoegd gezag: instruments, their versions, and the branches
and snapshots that projects produce over time.

Scenarios are JSON documents or CUE sources checked against the scenario schema.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.init(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default .bgproces/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.StorePath, "store", "", "export journal database (overrides store.path)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewTimelineCommand(opts))
	cmd.AddCommand(NewCodesCommand(opts))
	cmd.AddCommand(NewEditCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// init loads the configuration and builds the logger. Logs go to stderr
// so JSON output stays parseable.
func (o *RootOptions) init(cmd *cobra.Command) error {
	cfg, used, err := config.Load(o.ConfigPath, config.WithFlag("store.path", cmd.Flags().Lookup("store")))
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	o.Config = &cfg

	level := cfg.Log.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), handlerOpts)
	} else {
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), handlerOpts)
	}
	o.Logger = slog.New(handler)

	if used != "" {
		o.Logger.Debug("config loaded", "file", used)
	}
	return nil
}

// settings returns the loaded configuration, or the defaults when the
// command runs without the root command.
func (o *RootOptions) settings() config.Config {
	if o.Config != nil {
		return *o.Config
	}
	return config.Defaults()
}

func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loadOptions returns the loader options for input files.
func (o *RootOptions) loadOptions() []spec.LoadOption {
	opts := o.settings().Session.LoadOptions()
	return append(opts, spec.WithLogger(o.logger()))
}

// storePath returns the journal location; --store wins over the config.
func (o *RootOptions) storePath() string {
	if o.StorePath != "" {
		return o.StorePath
	}
	return o.settings().Store.Path
}

// openStore opens the export journal. It returns nil without error when
// no journal is configured.
func (o *RootOptions) openStore() (*store.Store, error) {
	path := o.storePath()
	if path == "" {
		return nil, nil
	}
	opts := append(o.settings().Store.Options(), store.WithLogger(o.logger()))
	st, err := store.Open(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return st, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
