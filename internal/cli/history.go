package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/bgproces/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Latest bool // print the latest export document
}

// SessionView summarises the journal of one session.
type SessionView struct {
	ID        string `json:"id"`
	Exports   int    `json:"exports"`
	LatestSeq int64  `json:"latest_seq"`
}

// ExportView is one journaled export.
type ExportView struct {
	Seq         int64           `json:"seq"`
	Fingerprint string          `json:"fingerprint"`
	Document    json.RawMessage `json:"document,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [session]",
		Short: "Inspect the export journal",
		Long: `List the sessions in the export journal, or the exports of one session
in the order they were journaled. The journal is --store or store.path.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			session := ""
			if len(args) == 1 {
				session = args[0]
			}
			return runHistory(opts, session, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "print the latest export of the session")

	return cmd
}

func runHistory(opts *HistoryOptions, session string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	st, err := opts.openStore()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if st == nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "no export journal configured: set --store or store.path", nil)
	}
	defer st.Close()

	if session == "" {
		if opts.Latest {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--latest needs a session", nil)
		}
		return listSessions(formatter, st, cmd)
	}
	return listExports(opts, formatter, st, session, cmd)
}

func listSessions(formatter *OutputFormatter, st *store.Store, cmd *cobra.Command) error {
	summaries, err := st.Sessions(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}

	views := make([]SessionView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, SessionView{ID: s.ID, Exports: s.Exports, LatestSeq: s.LatestSeq})
	}

	if formatter.IsJSON() {
		return formatter.Success(views)
	}
	if len(views) == 0 {
		fmt.Fprintln(formatter.Writer, "No sessions journaled")
		return nil
	}
	for _, v := range views {
		fmt.Fprintf(formatter.Writer, "%s  %d export(s), latest seq %d\n", v.ID, v.Exports, v.LatestSeq)
	}
	return nil
}

func listExports(opts *HistoryOptions, formatter *OutputFormatter, st *store.Store, session string, cmd *cobra.Command) error {
	notFound := fmt.Sprintf("no exports journaled for session %q", session)

	if opts.Latest {
		latest, ok, err := st.Latest(cmd.Context(), session)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
		}
		if !ok {
			return formatter.Fail(ExitFailure, ErrCodeNotFound, notFound, nil)
		}
		if formatter.IsJSON() {
			return formatter.SuccessFor(session, exportView(latest, true))
		}
		fmt.Fprintln(formatter.Writer, latest.Document)
		return nil
	}

	records, err := st.History(cmd.Context(), session)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error(), nil)
	}
	if len(records) == 0 {
		return formatter.Fail(ExitFailure, ErrCodeNotFound, notFound, nil)
	}

	views := make([]ExportView, 0, len(records))
	for _, r := range records {
		views = append(views, exportView(r, false))
	}

	if formatter.IsJSON() {
		return formatter.SuccessFor(session, views)
	}
	for _, v := range views {
		fmt.Fprintf(formatter.Writer, "%4d  %s\n", v.Seq, v.Fingerprint)
	}
	return nil
}

func exportView(r store.ExportRecord, withDocument bool) ExportView {
	v := ExportView{Seq: r.Seq, Fingerprint: r.Fingerprint}
	if withDocument {
		v.Document = json.RawMessage(r.Document)
	}
	return v
}
