package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/bgproces/internal/momentopname"
	"github.com/roach88/bgproces/internal/spec"
)

// TimelineOptions holds flags for the timeline command.
type TimelineOptions struct {
	*RootOptions
	Branch string // only this branch
}

// VersionView is one instrument version held by a snapshot.
type VersionView struct {
	Code         string `json:"code"`
	WorkID       string `json:"work_id"`
	VersionCode  string `json:"version"`
	ExpressionID string `json:"expression_id"`
	Withdrawn    bool   `json:"withdrawn,omitempty"`
}

// SnapshotView is one momentopname.
type SnapshotView struct {
	Target    string        `json:"target"`
	Index     int           `json:"index"`
	Owner     string        `json:"owner,omitempty"`
	CreatedAt string        `json:"created_at"`
	Versions  []VersionView `json:"versions"`
}

// TimelineResult lists snapshots in the order they were built.
type TimelineResult struct {
	File      string         `json:"file"`
	Snapshots []SnapshotView `json:"snapshots"`
}

// NewTimelineCommand creates the timeline command.
func NewTimelineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TimelineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "timeline <file>",
		Short: "Show the snapshots a scenario produces",
		Long: `Load a scenario and list its momentopnamen: the Uitgangssituatie first,
then every branch snapshot in Tijdstip order, with the instrument versions
each one holds.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Branch, "branch", "", "only show snapshots of this branch")

	return cmd
}

func runTimeline(opts *TimelineOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	input, err := LoadInput(path, opts.loadOptions()...)
	if err != nil {
		return failLoad(formatter, err)
	}

	tl := input.Spec.Timeline
	snapshots := tl.All()
	if opts.Branch != "" {
		if opts.Branch == momentopname.Uitgangssituatie {
			snapshots = nil
			if b := tl.Baseline(); b != nil {
				snapshots = append(snapshots, b)
			}
		} else {
			snapshots = tl.Snapshots(opts.Branch)
		}
		if len(snapshots) == 0 {
			return formatter.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("branch %q has no snapshots", opts.Branch), nil)
		}
	}

	result := TimelineResult{File: path, Snapshots: make([]SnapshotView, 0, len(snapshots))}
	for _, m := range snapshots {
		result.Snapshots = append(result.Snapshots, snapshotView(tl, m))
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	writeTimeline(formatter.Writer, result)
	return nil
}

func snapshotView(tl *momentopname.Timeline, m *momentopname.Momentopname) SnapshotView {
	view := SnapshotView{
		Target:    m.Target,
		Index:     m.Index,
		CreatedAt: formatMoment(m.CreatedAt),
		Versions:  []VersionView{},
	}
	if owner, ok := tl.Owner(m.Target); ok {
		view.Owner = owner
		if owner == "" {
			view.Owner = spec.KeyOverig
		}
	}
	for _, v := range m.Versions() {
		view.Versions = append(view.Versions, VersionView{
			Code:         v.Instrument.Code,
			WorkID:       v.Instrument.WorkID,
			VersionCode:  v.VersionCode,
			ExpressionID: v.ExpressionID,
			Withdrawn:    v.Withdrawn,
		})
	}
	return view
}

// formatMoment prints whole days as dates and keeps the time otherwise.
func formatMoment(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format(spec.DateLayout)
	}
	return t.Format("2006-01-02T15:04")
}

func writeTimeline(w io.Writer, result TimelineResult) {
	for _, s := range result.Snapshots {
		header := s.Target
		if s.Target != momentopname.Uitgangssituatie {
			header = fmt.Sprintf("%s #%d", s.Target, s.Index)
		}
		if s.Owner != "" {
			header += " (" + s.Owner + ")"
		}
		fmt.Fprintf(w, "%s  %s\n", header, s.CreatedAt)
		if len(s.Versions) == 0 {
			fmt.Fprintln(w, "  (no instruments)")
		}
		for _, v := range s.Versions {
			line := fmt.Sprintf("  %-8s v%-3s %s", v.Code, v.VersionCode, v.ExpressionID)
			if v.Withdrawn {
				line += "  [withdrawn]"
			}
			fmt.Fprintln(w, line)
		}
	}
}
