package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dalemusser/leadtrack/internal/app/store/audit"
	"github.com/dalemusser/leadtrack/internal/app/system/inputval"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// mergeEvents is the read side of the audit trail used by `leadctl merges`.
type mergeEvents interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	FailedMerges(ctx context.Context, since time.Time, limit int64) ([]audit.Event, error)
}

type mergesOpts struct {
	failed bool
	lead   string
	since  time.Duration
	limit  int64
}

func newMergesCmd(g *globalOpts) *cobra.Command {
	var (
		o      mergesOpts
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "merges",
		Short: "List recorded merges, newest first",
		Long: "List merges from the audit trail. Use --failed to find merges that\n" +
			"stopped partway and may need to be finished by hand.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.lead != "" && !inputval.IsValidObjectID(o.lead) {
				return fmt.Errorf("%q is not a valid lead id", o.lead)
			}

			svc, closeFn, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			events, err := fetchMerges(cmd.Context(), svc.Events, o, time.Now())
			if err != nil {
				return fmt.Errorf("read audit trail: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			printMergeEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}

	cmd.Flags().BoolVar(&o.failed, "failed", false, "Only merges that were refused or stopped partway")
	cmd.Flags().StringVar(&o.lead, "lead", "", "Only merges where this lead was primary or secondary")
	cmd.Flags().DurationVar(&o.since, "since", 7*24*time.Hour, "How far back to look")
	cmd.Flags().Int64Var(&o.limit, "limit", 50, "Maximum number of events")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the events as JSON")
	return cmd
}

// fetchMerges picks the narrowest audit query for o.
func fetchMerges(ctx context.Context, src mergeEvents, o mergesOpts, now time.Time) ([]audit.Event, error) {
	since := now.Add(-o.since)
	if o.failed && o.lead == "" {
		return src.FailedMerges(ctx, since, o.limit)
	}

	filter := audit.QueryFilter{
		Category:  audit.CategoryMerge,
		Failed:    o.failed,
		StartTime: &since,
		Limit:     o.limit,
	}
	if o.lead != "" {
		id, err := primitive.ObjectIDFromHex(strings.ToLower(strings.TrimSpace(o.lead)))
		if err != nil {
			return nil, err
		}
		filter.LeadID = &id
	}
	return src.Query(ctx, filter)
}

func printMergeEvents(w io.Writer, events []audit.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "no merges found")
		return
	}
	for _, ev := range events {
		status := color.New(color.FgHiGreen).Sprintf("%-6s", "ok")
		if !ev.Success {
			status = color.New(color.FgRed).Sprintf("%-6s", "FAILED")
		}
		line := fmt.Sprintf("%s  %s  %s <- %s",
			ev.Timestamp.Local().Format(time.DateTime), status, hexOrDash(ev.LeadID), hexOrDash(ev.RelatedLeadID))
		if ev.FailureReason != "" {
			line += "  (" + ev.FailureReason + ")"
		}
		if last := ev.Details["last_completed_step"]; last != "" {
			line += "  last completed: " + last
		}
		if ev.Source != "" {
			line += "  via " + ev.Source
		}
		fmt.Fprintln(w, line)
	}
}

func hexOrDash(id *primitive.ObjectID) string {
	if id == nil {
		return "-"
	}
	return id.Hex()
}
