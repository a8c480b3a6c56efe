package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/returns-cli/internal/ingest"
	"github.com/sells-group/returns-cli/internal/model"
	"github.com/sells-group/returns-cli/internal/validate"
)

var (
	validateFile   string
	validateBranch string
	validateFormat string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a single branch submission",
	Long: `Checks one submission file against the column contract and prints
every anomaly found. Findings are output, not failure: the command exits
0 whenever the file could be read, clean or not.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		contract, err := loadContract()
		if err != nil {
			return err
		}

		sub, err := ingest.LoadWithOptions(validateFile, ingest.Options{
			BranchID:  validateBranch,
			SheetName: cfg.Input.Sheet,
			Delimiter: cfg.Input.Delimiter(),
			Charset:   cfg.Input.CSVCharset,
		})
		if err != nil {
			return eris.Wrap(err, "validate")
		}

		res := validate.Run(sub, contract)

		switch validateFormat {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				BranchID     string          `json:"branch_id"`
				SourceFile   string          `json:"source_file"`
				RowsTotal    int             `json:"rows_total"`
				RowsValid    int             `json:"rows_valid"`
				RowsExcluded int             `json:"rows_excluded"`
				Anomalies    []model.Anomaly `json:"anomalies"`
			}{sub.BranchID, sub.SourceFile, res.RowsTotal, len(res.Valid), res.RowsExcluded, res.Anomalies})
		case "table":
			fmt.Fprintf(os.Stdout, "%s: %d rows, %d valid, %d excluded, %d anomalies\n",
				sub.SourceFile, res.RowsTotal, len(res.Valid), res.RowsExcluded, len(res.Anomalies))
			formatAnomalies(os.Stdout, res.Anomalies)
			return nil
		default:
			return eris.Errorf("validate: unknown format %q (want table or json)", validateFormat)
		}
	},
}

// formatAnomalies renders findings as an aligned table. File-level
// findings show "-" in the row column.
func formatAnomalies(w io.Writer, anomalies []model.Anomaly) {
	if len(anomalies) == 0 {
		fmt.Fprintln(w, "No anomalies.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tKIND\tROW\tCOLUMN\tOBSERVED\tEXPECTED\tSUGGESTION")
	for _, a := range anomalies {
		row := "-"
		if a.Row > 0 {
			row = fmt.Sprintf("%d", a.Row)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.Severity, a.Kind, row, a.Column, a.Observed, a.Expected, a.Suggestion)
	}
	tw.Flush() //nolint:errcheck
}

func init() {
	validateCmd.Flags().StringVar(&validateFile, "file", "", "submission file to validate (required)")
	validateCmd.Flags().StringVar(&validateBranch, "branch", "", "branch ID (default: file name)")
	validateCmd.Flags().StringVar(&validateFormat, "format", "table", "output format: table or json")
	_ = validateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(validateCmd)
}
