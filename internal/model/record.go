package model

// MergeStatus records how a master record earned its place in the table.
type MergeStatus string

const (
	MergeStatusNew               MergeStatus = "new"
	MergeStatusDuplicateResolved MergeStatus = "duplicate_resolved"
	MergeStatusConflicted        MergeStatus = "conflicted"
)

// Provenance identifies the source row a record's values came from.
type Provenance struct {
	BranchID   string `json:"branch_id"`
	SourceFile string `json:"source_file"`
	SourceRow  int    `json:"source_row"`
}

// MasterRecord is one consolidated row of the master table.
type MasterRecord struct {
	Key        string         `json:"key"`
	Values     map[string]any `json:"values"`
	Provenance Provenance     `json:"provenance"`
	Status     MergeStatus    `json:"status"`
}

// SupersededRow preserves a row that lost a merge collision, for audit.
type SupersededRow struct {
	Key        string         `json:"key"`
	Values     map[string]any `json:"values"`
	Provenance Provenance     `json:"provenance"`
	Reason     MergeStatus    `json:"reason"`
}

// MasterTable is the deduplicated output of the merge phase. Records keeps
// first-seen order; Superseded keeps every discarded duplicate or conflict
// loser in the order the collisions happened.
type MasterTable struct {
	Records    []MasterRecord  `json:"records"`
	Superseded []SupersededRow `json:"superseded,omitempty"`
}

// ReasonCount is one bucket of the return reason ranking.
type ReasonCount struct {
	Reason  string  `json:"reason"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// ReasonRanking is the full ordered ranking over master records.
type ReasonRanking struct {
	Entries      []ReasonCount `json:"entries"`
	Unclassified int           `json:"unclassified"`
	Total        int           `json:"total"`
}

// Top returns the first n ranking entries, or all of them when fewer exist.
func (r ReasonRanking) Top(n int) []ReasonCount {
	if n <= 0 {
		return nil
	}
	if n >= len(r.Entries) {
		return r.Entries
	}
	return r.Entries[:n]
}

// GroupTotal holds per-group sums of the summary value columns, in the
// column order the contract declares them.
type GroupTotal struct {
	Group  string    `json:"group"`
	Totals []float64 `json:"totals"`
}
