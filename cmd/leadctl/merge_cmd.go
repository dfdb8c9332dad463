package main

import (
	"fmt"
	"strings"

	"github.com/dalemusser/leadtrack/internal/app/merger"
	"github.com/dalemusser/leadtrack/internal/app/system/inputval"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newMergeCmd(g *globalOpts) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "merge PRIMARY_ID SECONDARY_ID",
		Short: "Fold the secondary lead into the primary and retire it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]primitive.ObjectID, 2)
			for i, a := range args {
				if !inputval.IsValidObjectID(a) {
					return fmt.Errorf("%q is not a valid lead id", a)
				}
				ids[i], _ = primitive.ObjectIDFromHex(strings.ToLower(strings.TrimSpace(a)))
			}

			svc, closeFn, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			rep, err := svc.Merger.Merge(cmd.Context(), ids[0], ids[1])
			if err != nil {
				svc.Audit.MergeFailed(cmd.Context(), auditSource, ids[0], ids[1], merger.Reason(err), merger.LastCompleted(err))
				if last := merger.LastCompleted(err); last != "" {
					return fmt.Errorf("merge failed (%s, last completed step: %s): %w", merger.Reason(err), last, err)
				}
				return fmt.Errorf("merge failed (%s): %w", merger.Reason(err), err)
			}
			svc.Audit.MergeCompleted(cmd.Context(), auditSource, ids[0], ids[1], rep)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			printMergeReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}
