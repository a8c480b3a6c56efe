package report

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/returns-cli/internal/model"
	"github.com/sells-group/returns-cli/internal/schema"
)

// provenanceHeader holds the audit columns appended after the contract
// columns in the master table output. The underscore prefix keeps them
// clear of submission column names.
var provenanceHeader = []string{"_branch", "_source_file", "_source_row", "_merge_status"}

var anomalyHeader = []string{"kind", "severity", "branch", "source_file", "row", "column", "observed", "expected", "suggestion"}

// WriteMasterCSV writes the consolidated master table. Columns follow the
// contract order, then the provenance columns.
func WriteMasterCSV(path string, contract *schema.Contract, table model.MasterTable) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	header := make([]string, 0, len(contract.Columns)+len(provenanceHeader))
	for i := range contract.Columns {
		header = append(header, contract.Columns[i].Name)
	}
	header = append(header, provenanceHeader...)
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "report: write master header")
	}

	for _, rec := range table.Records {
		row := make([]string, 0, len(header))
		for i := range contract.Columns {
			row = append(row, schema.FormatValue(rec.Values[contract.Columns[i].Name]))
		}
		row = append(row,
			rec.Provenance.BranchID,
			rec.Provenance.SourceFile,
			strconv.Itoa(rec.Provenance.SourceRow),
			string(rec.Status),
		)
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "report: write master row")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "report: flush master csv")
}

// WriteAnomalyCSV writes the error report, one line per anomaly in the
// order they were found.
func WriteAnomalyCSV(path string, anomalies []model.Anomaly) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(anomalyHeader); err != nil {
		return eris.Wrap(err, "report: write anomaly header")
	}

	for _, a := range anomalies {
		row := ""
		if a.Row > 0 {
			row = strconv.Itoa(a.Row)
		}
		record := []string{
			string(a.Kind),
			string(a.Severity),
			a.BranchID,
			a.SourceFile,
			row,
			a.Column,
			a.Observed,
			a.Expected,
			a.Suggestion,
		}
		if err := w.Write(record); err != nil {
			return eris.Wrap(err, "report: write anomaly row")
		}
	}

	w.Flush()
	return eris.Wrap(w.Error(), "report: flush anomaly csv")
}

// WriteRankingCSV writes the full reason ranking with the unclassified
// bucket as the final line.
func WriteRankingCSV(path string, ranking model.ReasonRanking) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write([]string{"reason", "count", "percent"}); err != nil {
		return eris.Wrap(err, "report: write ranking header")
	}

	for _, e := range ranking.Entries {
		record := []string{
			e.Reason,
			strconv.Itoa(e.Count),
			strconv.FormatFloat(e.Percent, 'f', 1, 64),
		}
		if err := w.Write(record); err != nil {
			return eris.Wrap(err, "report: write ranking row")
		}
	}
	if err := w.Write([]string{"(unclassified)", strconv.Itoa(ranking.Unclassified), ""}); err != nil {
		return eris.Wrap(err, "report: write unclassified row")
	}

	w.Flush()
	return eris.Wrap(w.Error(), "report: flush ranking csv")
}
