package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/bgproces/internal/engine"
	"github.com/roach88/bgproces/internal/harness"
	"github.com/roach88/bgproces/internal/spec"
)

// EditOptions holds flags for the edit command.
type EditOptions struct {
	*RootOptions
	SessionID string // overrides the script's session id
	Metrics   bool   // report bus metrics
}

// EditResult holds the outcome of an edit script.
type EditResult struct {
	Script        string              `json:"script"`
	SessionID     string              `json:"session_id"`
	Pass          bool                `json:"pass"`
	Steps         []harness.StepEvent `json:"steps"`
	Errors        []string            `json:"errors,omitempty"`
	ListenerCalls int                 `json:"listener_calls"`
	Export        json.RawMessage     `json:"export"`
	Metrics       map[string]float64  `json:"metrics,omitempty"`
}

// NewEditCommand creates the edit command.
func NewEditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EditOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "edit <script.yaml>",
		Short: "Apply an edit script to a new session",
		Long: `Run a YAML edit script against a fresh editing session and check its
assertions. Every change the script makes is exported; with --store (or
store.path) the exports are appended to the journal under the script's
session id.

Exit codes:
  0 - Script passed
  1 - A step or assertion failed
  2 - Command error (script not found or malformed, store unavailable)

Examples:
  bgproces edit scripts/build.yaml
  bgproces edit scripts/build.yaml --store journal.db --session draft-1
  bgproces edit scripts/build.yaml --metrics --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.SessionID, "session", "", "session id (default: the script's)")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "report notification bus metrics")

	return cmd
}

func runEdit(opts *EditOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := opts.logger()
	cfg := opts.settings()

	script, err := harness.LoadScript(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("script not found: %s", path), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeScript, err.Error(), nil)
	}
	if opts.SessionID != "" {
		script.SessionID = opts.SessionID
	}
	sessionID := script.SessionID
	if sessionID == "" {
		sessionID = harness.DefaultSessionID
	}

	reg := prometheus.NewRegistry()
	busOpts := append(cfg.Session.BusOptions(),
		engine.WithMetrics(engine.NewMetrics(reg)),
		engine.WithLogger(logger),
	)
	sessOpts := []spec.SessionOption{spec.WithBusOptions(busOpts...)}
	if start := cfg.Session.Startdatum(); !start.IsZero() {
		sessOpts = append(sessOpts, spec.WithSessionStartdatum(start))
	}
	runOpts := []harness.Option{
		harness.WithLogger(logger),
		harness.WithSessionOptions(sessOpts...),
	}

	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if st != nil {
		defer st.Close()
		runOpts = append(runOpts, harness.WithStore(st))
	}

	formatter.VerboseLog("Running %s (%d steps, %d assertions)", script.Name, len(script.Steps), len(script.Assertions))
	res, err := harness.Run(script, runOpts...)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	result := EditResult{
		Script:        script.Name,
		SessionID:     sessionID,
		Pass:          res.Pass,
		Steps:         res.Steps,
		Errors:        res.Errors,
		ListenerCalls: res.ListenerCalls,
		Export:        json.RawMessage(res.Export),
	}
	if opts.Metrics {
		metrics, err := gatherMetrics(reg)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		result.Metrics = metrics
	}

	return outputEdit(formatter, result)
}

func outputEdit(formatter *OutputFormatter, result EditResult) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("script %s failed with %d error(s)", result.Script, len(result.Errors)))

	if formatter.IsJSON() {
		if result.Pass {
			return formatter.SuccessFor(result.SessionID, result)
		}
		if err := formatter.encode(CLIResponse{
			Status:    "error",
			Data:      result,
			Error:     &CLIError{Code: ErrCodeScript, Message: result.Errors[0]},
			SessionID: result.SessionID,
		}); err != nil {
			return err
		}
		return failed
	}

	w := formatter.Writer
	if result.Pass {
		fmt.Fprintf(w, "\u2713 %s passed (%d steps, %d changes)\n", result.Script, len(result.Steps), result.ListenerCalls)
	} else {
		fmt.Fprintf(w, "\u2717 %s failed\n", result.Script)
		for _, e := range result.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	if len(result.Metrics) > 0 {
		names := make([]string, 0, len(result.Metrics))
		for name := range result.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s %g\n", name, result.Metrics[name])
		}
	}

	if formatter.Verbose {
		fmt.Fprintln(w, string(result.Export))
	}

	if !result.Pass {
		return failed
	}
	return nil
}

// gatherMetrics sums every counter and gauge of g by metric name.
func gatherMetrics(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			}
		}
		out[mf.GetName()] = total
	}
	return out, nil
}
