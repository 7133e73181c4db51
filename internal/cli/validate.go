package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/bgproces/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Strict bool // lint findings fail validation
}

// ValidationResult holds validation results.
type ValidationResult struct {
	File        string             `json:"file"`
	Valid       bool               `json:"valid"`
	Activities  int                `json:"activities"`
	Branches    int                `json:"branches"`
	Instruments int                `json:"instruments"`
	Findings    []compiler.Finding `json:"findings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a scenario file",
		Long: `Load a scenario (.json or .cue) and report whether it is valid.

Loading is all-or-nothing: the first structural error (unknown bevoegd
gezag, branch reuse, missing Tijdstip, ...) is reported with its code.
A valid scenario is then linted for content the loader skips silently,
such as unknown activity kinds or annotations an instrument type does
not permit. Lint findings are warnings unless --strict is set.

Exit codes:
  0 - Scenario valid
  1 - Scenario invalid (or findings with --strict)
  2 - Command error (file not found, unsupported input)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat lint findings as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result, err := validateFile(opts.RootOptions, path, opts.Strict)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Loaded %s: %d activities, %d branches, %d instruments",
		path, result.Activities, result.Branches, result.Instruments)

	return outputValidation(formatter, result)
}

// validateFile loads and lints path.
func validateFile(opts *RootOptions, path string, strict bool) (ValidationResult, error) {
	input, err := LoadInput(path, opts.loadOptions()...)
	if err != nil {
		return ValidationResult{}, err
	}

	s := input.Spec
	result := ValidationResult{
		File:        filepath.Base(path),
		Valid:       true,
		Activities:  len(s.Overig),
		Branches:    len(s.Timeline.Branches()),
		Instruments: s.Registry.Len(),
		Findings:    compiler.Lint(input.Document),
	}
	for _, p := range s.Projecten {
		result.Activities += len(p.Activities)
	}
	if strict && len(result.Findings) > 0 {
		result.Valid = false
	}
	return result, nil
}

// outputValidation writes result and returns an ExitError when it is not
// valid.
func outputValidation(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.IsJSON() {
		if result.Valid {
			return formatter.Success(result)
		}
		first := result.Findings[0]
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: ErrCodeLint, Message: first.String()},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s has %d finding(s)", result.File, len(result.Findings)))
	}

	if result.Valid {
		fmt.Fprintf(formatter.Writer, "\u2713 %s valid (%d activities, %d branches, %d instruments)\n",
			result.File, result.Activities, result.Branches, result.Instruments)
		writeFindings(formatter.Writer, result.Findings)
		return nil
	}

	fmt.Fprintf(formatter.Writer, "\u2717 %s has %d finding(s)\n", result.File, len(result.Findings))
	writeFindings(formatter.Writer, result.Findings)
	return NewExitError(ExitFailure, fmt.Sprintf("%s has %d finding(s)", result.File, len(result.Findings)))
}

func writeFindings(w io.Writer, findings []compiler.Finding) {
	for _, f := range findings {
		fmt.Fprintf(w, "  %s\n", f)
	}
}
