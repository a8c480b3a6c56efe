package model

// RawRow is a single data row as read from a submission file, before any
// validation. Cells map header names to the verbatim cell text; cells that
// were empty or missing in the source are absent from the map.
type RawRow struct {
	Index int               `json:"index"` // 1-based sheet row; the header is row 1
	Cells map[string]string `json:"cells"`
}

// RawSubmission represents one branch file as loaded from disk.
type RawSubmission struct {
	BranchID   string   `json:"branch_id"`
	SourceFile string   `json:"source_file"`
	Header     []string `json:"header"`
	Rows       []RawRow `json:"rows"`
}

// ValidatedRow is a row that passed validation. Values holds coerced cell
// values keyed by contract column name: string for text and categorical
// columns, float64 for numbers, time.Time for dates.
type ValidatedRow struct {
	BranchID   string         `json:"branch_id"`
	SourceFile string         `json:"source_file"`
	SourceRow  int            `json:"source_row"`
	Values     map[string]any `json:"values"`
}
