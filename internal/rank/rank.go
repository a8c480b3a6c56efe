package rank

import (
	"sort"
	"strings"

	"github.com/sells-group/returns-cli/internal/model"
	"github.com/sells-group/returns-cli/internal/schema"
)

// Reasons counts master records by their reason value. Records without a
// usable reason land in the Unclassified bucket and are excluded from the
// percentages. Buckets sort by count, largest first, then by reason text
// so equal counts always rank the same way.
func Reasons(table model.MasterTable, reasonColumn string) model.ReasonRanking {
	r := model.ReasonRanking{Total: len(table.Records)}

	counts := make(map[string]int)
	for _, rec := range table.Records {
		v, ok := rec.Values[reasonColumn]
		if !ok {
			r.Unclassified++
			continue
		}
		reason := strings.TrimSpace(schema.FormatValue(v))
		if reason == "" {
			r.Unclassified++
			continue
		}
		counts[reason]++
	}

	entries := make([]model.ReasonCount, 0, len(counts))
	for reason, count := range counts {
		entries = append(entries, model.ReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Reason < entries[j].Reason
	})

	if classified := r.Total - r.Unclassified; classified > 0 {
		for i := range entries {
			entries[i].Percent = float64(entries[i].Count) / float64(classified) * 100
		}
	}
	r.Entries = entries
	return r
}

// GroupTotals sums the summary value columns per group. Groups sort by
// their first value column, largest first, then by name. Records without
// a group value are skipped.
func GroupTotals(table model.MasterTable, groupColumn string, valueColumns []string) []model.GroupTotal {
	if len(valueColumns) == 0 {
		return nil
	}

	totals := make(map[string][]float64)
	for _, rec := range table.Records {
		g, ok := rec.Values[groupColumn]
		if !ok {
			continue
		}
		name := strings.TrimSpace(schema.FormatValue(g))
		if name == "" {
			continue
		}
		sums, ok := totals[name]
		if !ok {
			sums = make([]float64, len(valueColumns))
			totals[name] = sums
		}
		for i, col := range valueColumns {
			if v, ok := rec.Values[col].(float64); ok {
				sums[i] += v
			}
		}
	}

	out := make([]model.GroupTotal, 0, len(totals))
	for name, sums := range totals {
		out = append(out, model.GroupTotal{Group: name, Totals: sums})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Totals[0] != out[j].Totals[0] {
			return out[i].Totals[0] > out[j].Totals[0]
		}
		return out[i].Group < out[j].Group
	})
	return out
}
