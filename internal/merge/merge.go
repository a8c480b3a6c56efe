package merge

import (
	"fmt"
	"strings"

	"github.com/sells-group/returns-cli/internal/model"
	"github.com/sells-group/returns-cli/internal/schema"
)

// Merge folds validated rows into the master table, batch by batch, in
// the exact order given. Identity comes from the contract's natural key
// when available; rows without one fall back to their own position, which
// can never collide.
//
// Identical rows sharing a key collapse into one record. Rows that share
// a key but differ are conflicts: the later row wins and the earlier
// values move to the audit trail, named in a conflicting_value anomaly.
func Merge(contract *schema.Contract, batches [][]model.ValidatedRow) (model.MasterTable, []model.Anomaly) {
	var table model.MasterTable
	var anomalies []model.Anomaly
	index := make(map[string]int)

	for _, batch := range batches {
		for _, row := range batch {
			key, ok := contract.RowKey(row.Values)
			if !ok {
				key = fmt.Sprintf("%s|%s|%d", row.BranchID, row.SourceFile, row.SourceRow)
			}

			pos, exists := index[key]
			if !exists {
				index[key] = len(table.Records)
				table.Records = append(table.Records, model.MasterRecord{
					Key:        key,
					Values:     row.Values,
					Provenance: provenanceOf(row),
					Status:     model.MergeStatusNew,
				})
				continue
			}

			rec := &table.Records[pos]
			diff := diffColumns(contract, rec.Values, row.Values)
			if len(diff) == 0 {
				// Identical duplicate: the first occurrence stays. Same-file
				// copies were already flagged during validation, so only
				// cross-file ones get an anomaly here.
				if rec.Provenance.SourceFile != row.SourceFile || rec.Provenance.BranchID != row.BranchID {
					anomalies = append(anomalies, model.Anomaly{
						Kind:       model.AnomalyDuplicateKey,
						Severity:   model.SeverityWarning,
						BranchID:   row.BranchID,
						SourceFile: row.SourceFile,
						Row:        row.SourceRow,
						Column:     strings.Join(contract.NaturalKey, ", "),
						Observed:   schema.DisplayKey(key),
						Expected:   fmt.Sprintf("first seen in %s row %d", rec.Provenance.SourceFile, rec.Provenance.SourceRow),
					})
				}
				table.Superseded = append(table.Superseded, model.SupersededRow{
					Key:        key,
					Values:     row.Values,
					Provenance: provenanceOf(row),
					Reason:     model.MergeStatusDuplicateResolved,
				})
				if rec.Status == model.MergeStatusNew {
					rec.Status = model.MergeStatusDuplicateResolved
				}
				continue
			}

			anomalies = append(anomalies, model.Anomaly{
				Kind:       model.AnomalyConflictingValue,
				Severity:   model.SeverityWarning,
				BranchID:   row.BranchID,
				SourceFile: row.SourceFile,
				Row:        row.SourceRow,
				Column:     strings.Join(diff, ", "),
				Observed:   pairText(diff, row.Values),
				Expected:   pairText(diff, rec.Values),
			})
			table.Superseded = append(table.Superseded, model.SupersededRow{
				Key:        key,
				Values:     rec.Values,
				Provenance: rec.Provenance,
				Reason:     model.MergeStatusConflicted,
			})
			rec.Values = row.Values
			rec.Provenance = provenanceOf(row)
			rec.Status = model.MergeStatusConflicted
		}
	}

	return table, anomalies
}

// diffColumns returns the non-key contract columns whose values differ
// between two rows, in contract order. A value present on one side only
// counts as a difference.
func diffColumns(contract *schema.Contract, old, new map[string]any) []string {
	var diff []string
	for i := range contract.Columns {
		name := contract.Columns[i].Name
		if contract.IsKey(name) {
			continue
		}
		oldVal, oldOK := old[name]
		newVal, newOK := new[name]
		if oldOK != newOK {
			diff = append(diff, name)
			continue
		}
		if oldOK && schema.FormatValue(oldVal) != schema.FormatValue(newVal) {
			diff = append(diff, name)
		}
	}
	return diff
}

func pairText(cols []string, values map[string]any) string {
	parts := make([]string, 0, len(cols))
	for _, col := range cols {
		parts = append(parts, col+"="+schema.FormatValue(values[col]))
	}
	return strings.Join(parts, "; ")
}

func provenanceOf(row model.ValidatedRow) model.Provenance {
	return model.Provenance{
		BranchID:   row.BranchID,
		SourceFile: row.SourceFile,
		SourceRow:  row.SourceRow,
	}
}
