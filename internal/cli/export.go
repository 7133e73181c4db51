package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bgproces/internal/ir"
	"github.com/roach88/bgproces/internal/spec"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output    string // output file path
	SessionID string // journal the export under this session
}

// ExportResult describes a written export.
type ExportResult struct {
	File        string          `json:"file"`
	Output      string          `json:"output,omitempty"`
	Fingerprint string          `json:"fingerprint"`
	Seq         int64           `json:"seq,omitempty"`
	Document    json.RawMessage `json:"document"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the canonical JSON of a scenario",
		Long: `Load a scenario (.json or .cue) and write its canonical export: keys
sorted, empty values pruned, four-space indent.

With --session the export is also appended to the export journal
(--store or store.path).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "journal the export under this session id")

	return cmd
}

func runExport(opts *ExportOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	input, err := LoadInput(path, opts.loadOptions()...)
	if err != nil {
		return failLoad(formatter, err)
	}

	doc, err := spec.Export(input.Spec)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, fmt.Sprintf("export %s: %v", path, err), nil)
	}

	result := ExportResult{
		File:        path,
		Output:      opts.Output,
		Fingerprint: ir.Fingerprint(doc),
		Document:    json.RawMessage(doc),
	}

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(doc+"\n"), 0o644); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, fmt.Sprintf("write %s: %v", opts.Output, err), nil)
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	if opts.SessionID != "" {
		st, err := opts.openStore()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		if st == nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "no export journal configured: set --store or store.path", nil)
		}
		defer st.Close()

		seq, err := st.AppendExport(cmd.Context(), opts.SessionID, doc)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		result.Seq = seq
		opts.logger().Debug("export journaled", "session", opts.SessionID, "seq", seq)
	}

	if formatter.IsJSON() {
		return formatter.SuccessFor(opts.SessionID, result)
	}
	if opts.Output == "" {
		fmt.Fprintln(formatter.Writer, doc)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "Wrote %s (%s)\n", opts.Output, result.Fingerprint)
	return nil
}
