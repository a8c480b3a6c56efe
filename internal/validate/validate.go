package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/returns-cli/internal/model"
	"github.com/sells-group/returns-cli/internal/schema"
)

// Result carries everything validation produced for one submission.
// len(Valid) + RowsExcluded always equals RowsTotal.
type Result struct {
	Valid        []model.ValidatedRow
	Anomalies    []model.Anomaly
	RowsTotal    int
	RowsExcluded int
}

// Run checks one submission against the contract. It never returns an
// error: every defect becomes an anomaly, and blocking anomalies exclude
// the offending row, or the whole file when a merge identity column is
// missing from the header.
func Run(sub *model.RawSubmission, contract *schema.Contract) Result {
	res := Result{RowsTotal: len(sub.Rows)}

	headerSet := make(map[string]bool, len(sub.Header))
	for _, name := range sub.Header {
		if name != "" {
			headerSet[name] = true
		}
	}

	// Header pass. A required column missing from the header is reported
	// once for the whole file; the file is only rejected when the column
	// is part of the merge identity.
	rejected := false
	for i := range contract.Columns {
		col := &contract.Columns[i]
		if headerSet[col.Name] || !col.Required {
			continue
		}
		severity := model.SeverityWarning
		if contract.IsKey(col.Name) {
			severity = model.SeverityBlocking
			rejected = true
		}
		res.Anomalies = append(res.Anomalies, model.Anomaly{
			Kind:       model.AnomalyMissingColumn,
			Severity:   severity,
			BranchID:   sub.BranchID,
			SourceFile: sub.SourceFile,
			Column:     col.Name,
			Expected:   string(col.Type),
		})
	}
	for _, name := range sub.Header {
		if name == "" || contract.Column(name) != nil {
			continue
		}
		res.Anomalies = append(res.Anomalies, model.Anomaly{
			Kind:       model.AnomalyUnexpectedColumn,
			Severity:   model.SeverityWarning,
			BranchID:   sub.BranchID,
			SourceFile: sub.SourceFile,
			Column:     name,
			Observed:   name,
		})
	}
	if rejected {
		res.RowsExcluded = len(sub.Rows)
		return res
	}

	for _, row := range sub.Rows {
		values, anomalies := checkRow(sub, contract, row, headerSet)
		res.Anomalies = append(res.Anomalies, anomalies...)
		if values == nil {
			res.RowsExcluded++
			continue
		}
		res.Valid = append(res.Valid, model.ValidatedRow{
			BranchID:   sub.BranchID,
			SourceFile: sub.SourceFile,
			SourceRow:  row.Index,
			Values:     values,
		})
	}

	// Within-file duplicate keys are a warning; both rows proceed to the
	// merge, which decides who wins.
	seen := make(map[string]int, len(res.Valid))
	for _, v := range res.Valid {
		key, ok := contract.RowKey(v.Values)
		if !ok {
			continue
		}
		if first, dup := seen[key]; dup {
			res.Anomalies = append(res.Anomalies, model.Anomaly{
				Kind:       model.AnomalyDuplicateKey,
				Severity:   model.SeverityWarning,
				BranchID:   sub.BranchID,
				SourceFile: sub.SourceFile,
				Row:        v.SourceRow,
				Column:     strings.Join(contract.NaturalKey, ", "),
				Observed:   schema.DisplayKey(key),
				Expected:   fmt.Sprintf("first seen at row %d", first),
			})
			continue
		}
		seen[key] = v.SourceRow
	}

	return res
}

// checkRow validates one row against every contract column present in the
// header. It returns nil values when a blocking anomaly excluded the row.
func checkRow(sub *model.RawSubmission, contract *schema.Contract, row model.RawRow, headerSet map[string]bool) (map[string]any, []model.Anomaly) {
	values := make(map[string]any, len(contract.Columns))
	var anomalies []model.Anomaly
	blocked := false

	report := func(a model.Anomaly) {
		a.BranchID = sub.BranchID
		a.SourceFile = sub.SourceFile
		a.Row = row.Index
		anomalies = append(anomalies, a)
		if a.Severity == model.SeverityBlocking {
			blocked = true
		}
	}

	for i := range contract.Columns {
		col := &contract.Columns[i]
		if !headerSet[col.Name] {
			continue // reported file-level
		}
		raw, present := row.Cells[col.Name]
		normalized := schema.NormalizeValue(col.Normalize, raw)
		if !present || normalized == "" {
			if col.Required {
				severity := model.SeverityWarning
				if contract.IsKey(col.Name) {
					severity = model.SeverityBlocking
				}
				report(model.Anomaly{
					Kind:     model.AnomalyMissingColumn,
					Severity: severity,
					Column:   col.Name,
					Expected: string(col.Type),
				})
			}
			continue
		}

		switch col.Type {
		case schema.ColumnNumber:
			f, ok := schema.CoerceNumber(normalized)
			if !ok {
				report(model.Anomaly{
					Kind:     model.AnomalyTypeMismatch,
					Severity: mismatchSeverity(contract, col.Name),
					Column:   col.Name,
					Observed: raw,
					Expected: string(schema.ColumnNumber),
				})
				continue
			}
			if (col.Min != nil && f < *col.Min) || (col.Max != nil && f > *col.Max) {
				report(model.Anomaly{
					Kind:     model.AnomalyOutOfRange,
					Severity: model.SeverityBlocking,
					Column:   col.Name,
					Observed: raw,
					Expected: numberBounds(col),
				})
				continue
			}
			values[col.Name] = f

		case schema.ColumnDate:
			d, ok := contract.CoerceDate(col, normalized)
			if !ok {
				report(model.Anomaly{
					Kind:     model.AnomalyTypeMismatch,
					Severity: mismatchSeverity(contract, col.Name),
					Column:   col.Name,
					Observed: raw,
					Expected: string(schema.ColumnDate),
				})
				continue
			}
			if outsideDateBounds(contract, col, d) {
				report(model.Anomaly{
					Kind:     model.AnomalyOutOfRange,
					Severity: model.SeverityBlocking,
					Column:   col.Name,
					Observed: raw,
					Expected: dateBounds(col),
				})
				continue
			}
			values[col.Name] = d

		case schema.ColumnCategorical:
			canonical, ok := contract.MatchAllowed(col.Name, normalized)
			if !ok {
				severity := model.SeverityWarning
				if col.Blocking {
					severity = model.SeverityBlocking
				}
				report(model.Anomaly{
					Kind:       model.AnomalyInconsistentConstant,
					Severity:   severity,
					Column:     col.Name,
					Observed:   raw,
					Expected:   strings.Join(col.Allowed, ", "),
					Suggestion: contract.SuggestAllowed(col.Name, normalized),
				})
				if severity == model.SeverityBlocking {
					continue
				}
				// The observed spelling is kept so downstream counts show
				// the drift instead of hiding it.
				values[col.Name] = normalized
				continue
			}
			values[col.Name] = canonical

		default:
			values[col.Name] = normalized
		}
	}

	if blocked {
		return nil, anomalies
	}
	return values, anomalies
}

func mismatchSeverity(contract *schema.Contract, colName string) model.Severity {
	if contract.IsKey(colName) || colName == contract.Ranking.ReasonColumn {
		return model.SeverityBlocking
	}
	return model.SeverityWarning
}

func numberBounds(col *schema.ColumnSpec) string {
	switch {
	case col.Min != nil && col.Max != nil:
		return fmt.Sprintf("%v to %v", *col.Min, *col.Max)
	case col.Min != nil:
		return fmt.Sprintf(">= %v", *col.Min)
	case col.Max != nil:
		return fmt.Sprintf("<= %v", *col.Max)
	}
	return ""
}

func dateBounds(col *schema.ColumnSpec) string {
	switch {
	case col.MinDate != "" && col.MaxDate != "":
		return fmt.Sprintf("%s to %s", col.MinDate, col.MaxDate)
	case col.MinDate != "":
		return ">= " + col.MinDate
	case col.MaxDate != "":
		return "<= " + col.MaxDate
	}
	return ""
}

func outsideDateBounds(contract *schema.Contract, col *schema.ColumnSpec, d time.Time) bool {
	if col.MinDate != "" {
		if min, ok := contract.CoerceDate(col, col.MinDate); ok && d.Before(min) {
			return true
		}
	}
	if col.MaxDate != "" {
		if max, ok := contract.CoerceDate(col, col.MaxDate); ok && d.After(max) {
			return true
		}
	}
	return false
}
