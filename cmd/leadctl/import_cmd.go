package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dalemusser/leadtrack/internal/app/importer"
	"github.com/dalemusser/leadtrack/internal/app/system/csvutil"
	"github.com/spf13/cobra"
)

func newImportCmd(g *globalOpts) *cobra.Command {
	var (
		isNew        bool
		commit       bool
		relationship string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Plan (and with --commit, apply) a CSV or JSON contact import",
		Long: "Reads contacts from FILE (.json for a JSON array, anything else as CSV),\n" +
			"reconciles them against existing leads and prints the report.\n" +
			"Without --commit nothing is written.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readImportFile(args[0])
			if err != nil {
				return err
			}
			req.IsNew = isNew
			req.DryRun = !commit
			req.DefaultRelationship = strings.TrimSpace(relationship)

			svc, closeFn, err := g.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			rep, err := svc.Importer.Import(cmd.Context(), req)
			if err != nil {
				svc.Audit.ImportRejected(cmd.Context(), auditSource, importer.ErrorReason(err))
				return fmt.Errorf("import rejected (%s): %w", importer.ErrorReason(err), err)
			}
			if !rep.DryRun {
				svc.Audit.ImportCommitted(cmd.Context(), auditSource, rep)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			printImportReport(cmd.OutOrStdout(), rep)
			return nil
		},
	}

	cmd.Flags().BoolVar(&isNew, "new", false, "Treat every emailed row as a new lead (existing email is a conflict)")
	cmd.Flags().BoolVar(&commit, "commit", false, "Apply the plan (default is a dry run)")
	cmd.Flags().StringVar(&relationship, "relationship", "", "Relationship for rows that supply none")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

// readImportFile loads path into a request, choosing the format by extension.
func readImportFile(path string) (importer.Request, error) {
	info, err := os.Stat(path)
	if err != nil {
		return importer.Request{}, err
	}
	if info.Size() > csvutil.MaxUploadSize {
		return importer.Request{}, fmt.Errorf("%s is larger than the %d byte import limit", path, csvutil.MaxUploadSize)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return importer.Request{}, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return importer.Request{JSONData: body}, nil
	}
	return importer.Request{CSVText: string(body)}, nil
}
