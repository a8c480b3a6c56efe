package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/returns-cli/internal/model"
	"github.com/sells-group/returns-cli/internal/schema"
)

// summaryChartGroups caps how many groups the summary chart plots.
const summaryChartGroups = 10

// WriteWorkbook writes the master database workbook: the consolidated
// table, the anomaly list, the reason ranking with its top 3 chart, and,
// when the contract configures a summary, per-group totals with a
// comparison chart.
func WriteWorkbook(path string, contract *schema.Contract, table model.MasterTable, anomalies []model.Anomaly, ranking model.ReasonRanking, groups []model.GroupTotal) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := writeMasterSheet(f, contract, table); err != nil {
		return err
	}
	if err := writeAnomalySheet(f, anomalies); err != nil {
		return err
	}
	if err := writeReasonSheet(f, ranking); err != nil {
		return err
	}
	if contract.Summary != nil && len(groups) > 0 {
		if err := writeSummarySheet(f, contract.Summary, groups); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func writeMasterSheet(f *excelize.File, contract *schema.Contract, table model.MasterTable) error {
	const sheet = "Master"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return eris.Wrap(err, "report: rename master sheet")
	}

	header := make([]any, 0, len(contract.Columns)+len(provenanceHeader))
	for i := range contract.Columns {
		header = append(header, contract.Columns[i].Name)
	}
	for _, name := range provenanceHeader {
		header = append(header, name)
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}

	for i, rec := range table.Records {
		row := make([]any, 0, len(header))
		for j := range contract.Columns {
			row = append(row, cellValue(rec.Values[contract.Columns[j].Name]))
		}
		row = append(row,
			rec.Provenance.BranchID,
			rec.Provenance.SourceFile,
			rec.Provenance.SourceRow,
			string(rec.Status),
		)
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeAnomalySheet(f *excelize.File, anomalies []model.Anomaly) error {
	const sheet = "Anomalies"
	if _, err := f.NewSheet(sheet); err != nil {
		return eris.Wrap(err, "report: add anomalies sheet")
	}

	header := make([]any, len(anomalyHeader))
	for i, name := range anomalyHeader {
		header[i] = name
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}

	for i, a := range anomalies {
		var row any
		if a.Row > 0 {
			row = a.Row
		} else {
			row = ""
		}
		record := []any{
			string(a.Kind), string(a.Severity), a.BranchID, a.SourceFile,
			row, a.Column, a.Observed, a.Expected, a.Suggestion,
		}
		if err := setRow(f, sheet, i+2, record); err != nil {
			return err
		}
	}
	return nil
}

func writeReasonSheet(f *excelize.File, ranking model.ReasonRanking) error {
	const sheet = "Reasons"
	if _, err := f.NewSheet(sheet); err != nil {
		return eris.Wrap(err, "report: add reasons sheet")
	}

	if err := setRow(f, sheet, 1, []any{"Reason", "Count", "Percent"}); err != nil {
		return err
	}
	for i, e := range ranking.Entries {
		if err := setRow(f, sheet, i+2, []any{e.Reason, e.Count, e.Percent}); err != nil {
			return err
		}
	}
	last := len(ranking.Entries) + 2
	if err := setRow(f, sheet, last, []any{"(unclassified)", ranking.Unclassified, ""}); err != nil {
		return err
	}

	top := ranking.Top(3)
	if len(top) == 0 {
		return nil
	}
	chart := &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{{
			Name:       fmt.Sprintf("%s!$B$1", sheet),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", sheet, len(top)+1),
			Values:     fmt.Sprintf("%s!$B$2:$B$%d", sheet, len(top)+1),
		}},
		Title:  []excelize.RichTextRun{{Text: "Top 3 Reasons for Returns"}},
		Legend: excelize.ChartLegend{Position: "none"},
	}
	if err := f.AddChart(sheet, "E2", chart); err != nil {
		return eris.Wrap(err, "report: add reasons chart")
	}
	return nil
}

func writeSummarySheet(f *excelize.File, spec *schema.SummarySpec, groups []model.GroupTotal) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	header := make([]any, 0, len(spec.ValueColumns)+1)
	header = append(header, spec.GroupColumn)
	for _, name := range spec.ValueColumns {
		header = append(header, name)
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}

	limit := len(groups)
	if limit > summaryChartGroups {
		limit = summaryChartGroups
	}
	for i := 0; i < limit; i++ {
		row := make([]any, 0, len(header))
		row = append(row, groups[i].Group)
		for _, total := range groups[i].Totals {
			row = append(row, total)
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	series := make([]excelize.ChartSeries, len(spec.ValueColumns))
	for i := range spec.ValueColumns {
		col, err := excelize.ColumnNumberToName(i + 2)
		if err != nil {
			return eris.Wrap(err, "report: summary chart column")
		}
		series[i] = excelize.ChartSeries{
			Name:       fmt.Sprintf("%s!$%s$1", sheet, col),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", sheet, limit+1),
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", sheet, col, col, limit+1),
		}
	}
	chart := &excelize.Chart{
		Type:   excelize.Col,
		Series: series,
		Title: []excelize.RichTextRun{{
			Text: fmt.Sprintf("%s by %s", strings.Join(spec.ValueColumns, " vs "), spec.GroupColumn),
		}},
	}
	cell, err := excelize.CoordinatesToCellName(len(header)+2, 2)
	if err != nil {
		return eris.Wrap(err, "report: summary chart cell")
	}
	if err := f.AddChart(sheet, cell, chart); err != nil {
		return eris.Wrap(err, "report: add summary chart")
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return eris.Wrapf(err, "report: %s row %d", sheet, row)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return eris.Wrapf(err, "report: write %s row %d", sheet, row)
	}
	return nil
}

// cellValue keeps numbers native in the workbook and renders dates as
// plain text so they survive round trips without cell styles.
func cellValue(v any) any {
	switch t := v.(type) {
	case nil:
		return ""
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return t
	}
}
