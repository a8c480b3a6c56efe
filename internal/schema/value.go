package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalization rule names accepted in a column's normalize list.
const (
	NormalizeTrim           = "trim"
	NormalizeCollapseSpaces = "collapse_spaces"
	NormalizeCasefold       = "casefold"
	NormalizeUpper          = "upper"
	NormalizeLower          = "lower"
)

// maxSuggestDistance caps how far an allowed value may be, in edits, to
// still be offered as a correction.
const maxSuggestDistance = 2

var spaceRe = regexp.MustCompile(`\s+`)

// defaultDateLayouts are tried after the column and contract layouts.
var defaultDateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
	"02-Jan-2006",
	"2006-01-02 15:04:05",
}

func knownNormalizeRule(rule string) bool {
	switch rule {
	case NormalizeTrim, NormalizeCollapseSpaces, NormalizeCasefold, NormalizeUpper, NormalizeLower:
		return true
	}
	return false
}

// NormalizeValue applies normalization rules to a raw cell value in the
// order the contract lists them. Unknown rules are rejected by Lint, so
// they are ignored here.
func NormalizeValue(rules []string, value string) string {
	for _, rule := range rules {
		switch rule {
		case NormalizeTrim:
			value = strings.TrimSpace(value)
		case NormalizeCollapseSpaces:
			value = spaceRe.ReplaceAllString(value, " ")
		case NormalizeCasefold:
			value = cases.Fold().String(value)
		case NormalizeUpper:
			value = cases.Upper(language.Und).String(value)
		case NormalizeLower:
			value = cases.Lower(language.Und).String(value)
		}
	}
	return value
}

// CoerceNumber parses a cell as a float. Thousands separators and a
// leading dollar sign are tolerated since branch exports carry both.
func CoerceNumber(value string) (float64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(value), ",", "")
	cleaned = strings.TrimPrefix(cleaned, "$")
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// CoerceDate parses a date cell using the column's layouts, then the
// contract-wide layouts, then a small builtin set.
func (c *Contract) CoerceDate(col *ColumnSpec, value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layouts := range [][]string{col.Layouts, c.DateLayouts, defaultDateLayouts} {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// FormatValue renders a coerced value back to canonical text for merge
// keys, CSV cells, and anomaly messages.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case time.Time:
		return t.Format("2006-01-02")
	default:
		return fmt.Sprint(t)
	}
}

// SuggestAllowed returns the allowed value nearest to the observed one
// within maxSuggestDistance edits, or "" when nothing is close enough.
func (c *Contract) SuggestAllowed(colName, value string) string {
	col := c.byName[colName]
	if col == nil {
		return ""
	}
	best := ""
	bestDist := maxSuggestDistance + 1
	for _, a := range col.Allowed {
		if d := levenshtein.ComputeDistance(value, a); d < bestDist {
			best, bestDist = a, d
		}
	}
	return best
}
