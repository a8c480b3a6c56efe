package merge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/returns-cli/internal/model"
	"github.com/sells-group/returns-cli/internal/schema"
)

const testContractYAML = `
contract:
  columns:
    - name: Branch
      type: text
      required: true
    - name: Order
      type: text
      required: true
    - name: Reason
      type: text
      required: true
    - name: Qty
      type: number
      required: true
  natural_key: [Branch, Order]
  ranking:
    reason_column: Reason
`

func testContract(t *testing.T, yaml string) *schema.Contract {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contract.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	c, err := schema.Load(path)
	require.NoError(t, err)
	return c
}

func row(branch, file string, idx int, order, reason string, qty float64) model.ValidatedRow {
	return model.ValidatedRow{
		BranchID:   branch,
		SourceFile: file,
		SourceRow:  idx,
		Values: map[string]any{
			"Branch": branch,
			"Order":  order,
			"Reason": reason,
			"Qty":    qty,
		},
	}
}

func TestMergeNewRecords(t *testing.T) {
	c := testContract(t, testContractYAML)

	table, anomalies := Merge(c, [][]model.ValidatedRow{
		{row("North", "north.xlsx", 2, "A-1", "Damaged", 10)},
		{row("South", "south.xlsx", 2, "B-1", "Expired", 5)},
	})

	assert.Empty(t, anomalies)
	assert.Empty(t, table.Superseded)
	require.Len(t, table.Records, 2)
	// First-seen order is preserved across batches.
	assert.Equal(t, "North\x1fA-1", table.Records[0].Key)
	assert.Equal(t, "South\x1fB-1", table.Records[1].Key)
	for _, rec := range table.Records {
		assert.Equal(t, model.MergeStatusNew, rec.Status)
	}
}

func TestMergeIdenticalDuplicate(t *testing.T) {
	c := testContract(t, testContractYAML)

	table, anomalies := Merge(c, [][]model.ValidatedRow{
		{row("North", "north.xlsx", 2, "A-1", "Damaged", 10)},
		{row("North", "north_resend.xlsx", 5, "A-1", "Damaged", 10)},
	})

	require.Len(t, table.Records, 1)
	rec := table.Records[0]
	assert.Equal(t, model.MergeStatusDuplicateResolved, rec.Status)
	// The first occurrence keeps the record.
	assert.Equal(t, "north.xlsx", rec.Provenance.SourceFile)

	require.Len(t, table.Superseded, 1)
	assert.Equal(t, model.MergeStatusDuplicateResolved, table.Superseded[0].Reason)
	assert.Equal(t, "north_resend.xlsx", table.Superseded[0].Provenance.SourceFile)

	// A cross-file duplicate is noted, but it is not a conflict.
	require.Len(t, anomalies, 1)
	assert.Equal(t, model.AnomalyDuplicateKey, anomalies[0].Kind)
	assert.Contains(t, anomalies[0].Expected, "north.xlsx row 2")
	for _, a := range anomalies {
		assert.NotEqual(t, model.AnomalyConflictingValue, a.Kind)
	}
}

func TestMergeSameFileDuplicateQuiet(t *testing.T) {
	c := testContract(t, testContractYAML)

	// Validation already warns on same-file duplicates, so the merge only
	// records the audit entry.
	table, anomalies := Merge(c, [][]model.ValidatedRow{{
		row("North", "north.xlsx", 2, "A-1", "Damaged", 10),
		row("North", "north.xlsx", 7, "A-1", "Damaged", 10),
	}})

	assert.Empty(t, anomalies)
	require.Len(t, table.Records, 1)
	assert.Equal(t, model.MergeStatusDuplicateResolved, table.Records[0].Status)
	require.Len(t, table.Superseded, 1)
}

func TestMergeConflictLaterWins(t *testing.T) {
	c := testContract(t, testContractYAML)

	table, anomalies := Merge(c, [][]model.ValidatedRow{
		{row("North", "north.xlsx", 2, "A-1", "Damaged", 10)},
		{row("North", "north_v2.xlsx", 3, "A-1", "Expired", 10)},
	})

	require.Len(t, table.Records, 1)
	rec := table.Records[0]
	assert.Equal(t, model.MergeStatusConflicted, rec.Status)
	assert.Equal(t, "Expired", rec.Values["Reason"])
	assert.Equal(t, "north_v2.xlsx", rec.Provenance.SourceFile)

	// The losing values stay available for audit.
	require.Len(t, table.Superseded, 1)
	assert.Equal(t, model.MergeStatusConflicted, table.Superseded[0].Reason)
	assert.Equal(t, "Damaged", table.Superseded[0].Values["Reason"])

	// Exactly one conflict anomaly naming both values.
	require.Len(t, anomalies, 1)
	a := anomalies[0]
	assert.Equal(t, model.AnomalyConflictingValue, a.Kind)
	assert.Equal(t, model.SeverityWarning, a.Severity)
	assert.Equal(t, "Reason", a.Column)
	assert.Equal(t, "Reason=Expired", a.Observed)
	assert.Equal(t, "Reason=Damaged", a.Expected)
	assert.Equal(t, 3, a.Row)
}

func TestMergeConflictMultipleColumns(t *testing.T) {
	c := testContract(t, testContractYAML)

	table, anomalies := Merge(c, [][]model.ValidatedRow{
		{row("North", "a.xlsx", 2, "A-1", "Damaged", 10)},
		{row("North", "b.xlsx", 2, "A-1", "Expired", 12)},
	})

	require.Len(t, anomalies, 1)
	assert.Equal(t, "Reason, Qty", anomalies[0].Column)
	assert.Equal(t, "Reason=Expired; Qty=12", anomalies[0].Observed)
	assert.Equal(t, "Reason=Damaged; Qty=10", anomalies[0].Expected)
	assert.Equal(t, float64(12), table.Records[0].Values["Qty"])
}

func TestMergeStatusStaysConflicted(t *testing.T) {
	c := testContract(t, testContractYAML)

	// A duplicate arriving after a conflict must not downgrade the status.
	table, _ := Merge(c, [][]model.ValidatedRow{
		{row("North", "a.xlsx", 2, "A-1", "Damaged", 10)},
		{row("North", "b.xlsx", 2, "A-1", "Expired", 10)},
		{row("North", "c.xlsx", 2, "A-1", "Expired", 10)},
	})

	require.Len(t, table.Records, 1)
	assert.Equal(t, model.MergeStatusConflicted, table.Records[0].Status)
	assert.Len(t, table.Superseded, 2)
}

func TestMergeFallbackIdentity(t *testing.T) {
	yaml := `
contract:
  columns:
    - name: Reason
      type: text
      required: true
  ranking:
    reason_column: Reason
`
	c := testContract(t, yaml)

	// Without a natural key, identical rows from different positions stay
	// separate records.
	table, anomalies := Merge(c, [][]model.ValidatedRow{
		{
			{BranchID: "north", SourceFile: "n.csv", SourceRow: 2, Values: map[string]any{"Reason": "Damaged"}},
			{BranchID: "north", SourceFile: "n.csv", SourceRow: 3, Values: map[string]any{"Reason": "Damaged"}},
		},
	})

	assert.Empty(t, anomalies)
	require.Len(t, table.Records, 2)
	assert.Equal(t, "north|n.csv|2", table.Records[0].Key)
	assert.Equal(t, "north|n.csv|3", table.Records[1].Key)
}

func TestMergeDeterministic(t *testing.T) {
	c := testContract(t, testContractYAML)

	batches := func() [][]model.ValidatedRow {
		return [][]model.ValidatedRow{
			{
				row("North", "north.xlsx", 2, "A-1", "Damaged", 10),
				row("North", "north.xlsx", 3, "A-2", "Expired", 4),
			},
			{
				row("South", "south.xlsx", 2, "A-1", "Wrong Item", 10),
				row("South", "south.xlsx", 3, "B-9", "Damaged", 2),
			},
		}
	}

	first, firstAnoms := Merge(c, batches())
	second, secondAnoms := Merge(c, batches())

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
	assert.Equal(t, firstAnoms, secondAnoms)
}
