package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bgproces/internal/instrument"
)

// CodesOptions holds flags for the codes command.
type CodesOptions struct {
	*RootOptions
	Type string // type tag or code prefix
}

// CodeView is one registered instrument.
type CodeView struct {
	Code   string `json:"code"`
	Type   string `json:"type"`
	WorkID string `json:"work_id"`
}

// CodesResult lists the instrument codes of a scenario.
type CodesResult struct {
	File  string     `json:"file"`
	Codes []CodeView `json:"codes"`
	Next  string     `json:"next,omitempty"` // first free code of Type
}

// NewCodesCommand creates the codes command.
func NewCodesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "codes <file>",
		Short: "List the instrument codes of a scenario",
		Long: `Load a scenario and list every instrument it mentions, ordered by type
and number. With --type the list is restricted to one instrument type
and the first free code of that type is shown.

Types: Besluit (b), Regeling (reg), GIO (gio), PDF (pdf).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodes(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "instrument type or code prefix")

	return cmd
}

func runCodes(opts *CodesOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	var tags []instrument.TypeTag
	if opts.Type != "" {
		tag, err := instrument.ParseTypeTag(opts.Type)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
		}
		tags = append(tags, tag)
	}

	input, err := LoadInput(path, opts.loadOptions()...)
	if err != nil {
		return failLoad(formatter, err)
	}

	reg := input.Spec.Registry
	result := CodesResult{File: path, Codes: []CodeView{}}
	for _, code := range reg.AllKnownCodes(tags...) {
		inst, ok := reg.LookupCode(code)
		if !ok {
			continue
		}
		result.Codes = append(result.Codes, CodeView{
			Code:   inst.Code,
			Type:   string(inst.Type),
			WorkID: inst.WorkID,
		})
	}
	if len(tags) == 1 {
		result.Next = reg.FreeCode(tags[0])
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	for _, c := range result.Codes {
		fmt.Fprintf(formatter.Writer, "%-8s %s\n", c.Code, c.WorkID)
	}
	if result.Next != "" {
		fmt.Fprintf(formatter.Writer, "next: %s\n", result.Next)
	}
	return nil
}
