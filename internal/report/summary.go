package report

import (
	"fmt"
	"strings"

	"github.com/sells-group/returns-cli/internal/model"
)

// Summary generates a human-readable consolidation summary.
func Summary(result *model.RunResult) string {
	var b strings.Builder

	b.WriteString("# Consolidation Summary\n")
	fmt.Fprintf(&b, "- Files: %d loaded, %d failed of %d\n",
		result.FilesLoaded, result.FilesFailed, result.FilesTotal)
	fmt.Fprintf(&b, "- Rows: %d valid, %d excluded of %d\n",
		result.RowsValid, result.RowsExcluded, result.RowsTotal)
	fmt.Fprintf(&b, "- Records: %d (%d duplicates resolved, %d conflicts)\n",
		result.Records, result.Duplicates, result.Conflicts)
	fmt.Fprintf(&b, "- Anomalies: %d warning, %d blocking\n",
		result.Warnings, result.Blocking)
	fmt.Fprintf(&b, "- Duration: %dms\n", result.DurationMs)

	if len(result.FailedFiles) > 0 {
		b.WriteString("\n## Failed Files\n")
		for _, ff := range result.FailedFiles {
			fmt.Fprintf(&b, "- %s: %s\n", ff.Path, ff.Error)
		}
	}

	b.WriteString("\n## Top Return Reasons\n")
	if len(result.TopReasons) == 0 {
		b.WriteString("No classified reasons.\n")
	} else {
		for i, e := range result.TopReasons {
			fmt.Fprintf(&b, "%d. %s: %d (%.1f%%)\n", i+1, e.Reason, e.Count, e.Percent)
		}
	}
	if result.Unclassified > 0 {
		fmt.Fprintf(&b, "Unclassified: %d\n", result.Unclassified)
	}

	if len(result.Artifacts) > 0 {
		b.WriteString("\n## Artifacts\n")
		for _, a := range result.Artifacts {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	return b.String()
}
