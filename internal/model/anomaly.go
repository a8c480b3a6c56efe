package model

// AnomalyKind classifies a single data quality finding.
type AnomalyKind string

const (
	AnomalyMissingColumn        AnomalyKind = "missing_column"
	AnomalyUnexpectedColumn     AnomalyKind = "unexpected_column"
	AnomalyTypeMismatch         AnomalyKind = "type_mismatch"
	AnomalyOutOfRange           AnomalyKind = "out_of_range"
	AnomalyInconsistentConstant AnomalyKind = "inconsistent_constant"
	AnomalyDuplicateKey         AnomalyKind = "duplicate_key"
	AnomalyConflictingValue     AnomalyKind = "conflicting_value"
)

// Severity determines whether a finding blocks the offending row or file.
type Severity string

const (
	SeverityWarning  Severity = "warning"  // recorded, row continues
	SeverityBlocking Severity = "blocking" // row (or file) excluded from merge
)

// Anomaly describes one data quality finding and where it was observed.
// Row is the 1-based sheet row, or 0 for file-level findings.
type Anomaly struct {
	Kind       AnomalyKind `json:"kind"`
	Severity   Severity    `json:"severity"`
	BranchID   string      `json:"branch_id"`
	SourceFile string      `json:"source_file"`
	Row        int         `json:"row,omitempty"`
	Column     string      `json:"column,omitempty"`
	Observed   string      `json:"observed,omitempty"`
	Expected   string      `json:"expected,omitempty"`
	Suggestion string      `json:"suggestion,omitempty"`
}
