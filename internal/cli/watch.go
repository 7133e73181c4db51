package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bgproces/internal/watcher"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Strict bool
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-validate a scenario whenever it changes",
		Long: `Validate a scenario (.json or .cue), then validate it again every time
the file is saved. Saves in quick succession are reported once, after
watch.debounce. Stop with Ctrl-C.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat lint findings as errors")

	return cmd
}

func runWatch(opts *WatchOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()

	// A missing file cannot be watched; everything else is reported and
	// watched.
	if err := reportValidation(opts, formatter, path); err != nil {
		var le *LoadError
		if errors.As(err, &le) && le.Code == ErrCodeNotFound {
			return WrapExitError(ExitCommandError, "watch "+path, le)
		}
	}

	w, err := watcher.New(watcher.Config{
		Path:     path,
		Debounce: opts.settings().Watch.Debounce,
		Logger:   logger,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	changes, err := w.Start()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	defer w.Stop()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Debug("watching", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changes:
			logger.Debug("change detected", "path", path)
			_ = reportValidation(opts, formatter, path)
		}
	}
}

// reportValidation validates path once and writes the outcome. The
// returned error is the load error, if any.
func reportValidation(opts *WatchOptions, formatter *OutputFormatter, path string) error {
	result, err := validateFile(opts.RootOptions, path, opts.Strict)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			_ = formatter.Error(le.Code, le.Message, nil)
			return le
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	if err := outputValidation(formatter, result); err != nil && GetExitCode(err) != ExitFailure {
		return fmt.Errorf("report %s: %w", path, err)
	}
	return nil
}
