package schema

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ColumnType enumerates the value domains a contract column can declare.
type ColumnType string

const (
	ColumnText        ColumnType = "text"
	ColumnNumber      ColumnType = "number"
	ColumnDate        ColumnType = "date"
	ColumnCategorical ColumnType = "categorical"
)

// keySep joins natural key parts. A unit separator cannot appear in cell
// text, so composite keys never collide with each other.
const keySep = "\x1f"

// ColumnSpec declares one expected submission column.
type ColumnSpec struct {
	Name      string     `yaml:"name"`
	Type      ColumnType `yaml:"type,omitempty"`
	Required  bool       `yaml:"required,omitempty"`
	Allowed   []string   `yaml:"allowed,omitempty"`
	Normalize []string   `yaml:"normalize,omitempty"`
	Min       *float64   `yaml:"min,omitempty"`
	Max       *float64   `yaml:"max,omitempty"`
	MinDate   string     `yaml:"min_date,omitempty"`
	MaxDate   string     `yaml:"max_date,omitempty"`
	Layouts   []string   `yaml:"layouts,omitempty"`
	Blocking  bool       `yaml:"blocking,omitempty"` // escalate allowed-set misses to blocking
}

// RankingSpec names the column the return reason ranking counts over.
type RankingSpec struct {
	ReasonColumn string `yaml:"reason_column"`
}

// SummarySpec configures the per-group totals sheet of the workbook.
type SummarySpec struct {
	GroupColumn  string   `yaml:"group_column"`
	ValueColumns []string `yaml:"value_columns"`
}

// Contract is the submission contract every branch file is validated
// against: expected columns, merge identity, and reporting dimensions.
type Contract struct {
	Columns     []ColumnSpec `yaml:"columns"`
	NaturalKey  []string     `yaml:"natural_key,omitempty"`
	Ranking     RankingSpec  `yaml:"ranking"`
	Summary     *SummarySpec `yaml:"summary,omitempty"`
	DateLayouts []string     `yaml:"date_layouts,omitempty"`

	byName  map[string]*ColumnSpec
	keySet  map[string]bool
	allowed map[string]map[string]string // column -> normalized allowed value -> canonical spelling
}

// Load reads a contract from a YAML file, applies defaults, lints it, and
// indexes it for lookup.
func Load(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "schema: read contract %s", path)
	}

	// The YAML has a top-level "contract" key
	var wrapper struct {
		Contract Contract `yaml:"contract"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}

	c := &wrapper.Contract
	c.applyDefaults()
	if err := c.Lint(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	c.buildIndex()
	return c, nil
}

// Dump renders the contract back to YAML in the same shape Load reads.
func (c *Contract) Dump() ([]byte, error) {
	wrapper := struct {
		Contract *Contract `yaml:"contract"`
	}{c}
	out, err := yaml.Marshal(wrapper)
	if err != nil {
		return nil, eris.Wrap(err, "schema: marshal contract")
	}
	return out, nil
}

// Lint checks the contract for internal consistency and reports the first
// defect found.
func (c *Contract) Lint() error {
	if len(c.Columns) == 0 {
		return eris.New("contract declares no columns")
	}
	byName := make(map[string]*ColumnSpec, len(c.Columns))
	for i := range c.Columns {
		col := &c.Columns[i]
		if col.Name == "" {
			return eris.Errorf("column %d has no name", i)
		}
		if byName[col.Name] != nil {
			return eris.Errorf("duplicate column %q", col.Name)
		}
		byName[col.Name] = col

		switch col.Type {
		case ColumnText, ColumnNumber, ColumnDate, ColumnCategorical:
		default:
			return eris.Errorf("column %q has unknown type %q", col.Name, col.Type)
		}
		if len(col.Allowed) > 0 && col.Type != ColumnCategorical {
			return eris.Errorf("column %q lists allowed values but is not categorical", col.Name)
		}
		if col.Type == ColumnCategorical && len(col.Allowed) == 0 {
			return eris.Errorf("categorical column %q lists no allowed values", col.Name)
		}
		if (col.Min != nil || col.Max != nil) && col.Type != ColumnNumber {
			return eris.Errorf("column %q has numeric bounds but is not a number", col.Name)
		}
		if col.Min != nil && col.Max != nil && *col.Min > *col.Max {
			return eris.Errorf("column %q has min %v above max %v", col.Name, *col.Min, *col.Max)
		}
		if (col.MinDate != "" || col.MaxDate != "") && col.Type != ColumnDate {
			return eris.Errorf("column %q has date bounds but is not a date", col.Name)
		}
		if col.MinDate != "" {
			if _, ok := c.CoerceDate(col, col.MinDate); !ok {
				return eris.Errorf("column %q has unparseable min_date %q", col.Name, col.MinDate)
			}
		}
		if col.MaxDate != "" {
			if _, ok := c.CoerceDate(col, col.MaxDate); !ok {
				return eris.Errorf("column %q has unparseable max_date %q", col.Name, col.MaxDate)
			}
		}
		for _, rule := range col.Normalize {
			if !knownNormalizeRule(rule) {
				return eris.Errorf("column %q has unknown normalize rule %q", col.Name, rule)
			}
		}
	}

	for _, name := range c.NaturalKey {
		col := byName[name]
		if col == nil {
			return eris.Errorf("natural key column %q is not declared", name)
		}
		if !col.Required {
			return eris.Errorf("natural key column %q must be required", name)
		}
	}

	if c.Ranking.ReasonColumn == "" {
		return eris.New("ranking.reason_column is required")
	}
	reason := byName[c.Ranking.ReasonColumn]
	if reason == nil {
		return eris.Errorf("ranking column %q is not declared", c.Ranking.ReasonColumn)
	}
	if reason.Type != ColumnText && reason.Type != ColumnCategorical {
		return eris.Errorf("ranking column %q must be text or categorical", c.Ranking.ReasonColumn)
	}

	if c.Summary != nil {
		if byName[c.Summary.GroupColumn] == nil {
			return eris.Errorf("summary group column %q is not declared", c.Summary.GroupColumn)
		}
		if len(c.Summary.ValueColumns) == 0 {
			return eris.New("summary lists no value columns")
		}
		for _, name := range c.Summary.ValueColumns {
			col := byName[name]
			if col == nil {
				return eris.Errorf("summary value column %q is not declared", name)
			}
			if col.Type != ColumnNumber {
				return eris.Errorf("summary value column %q must be a number", name)
			}
		}
	}
	return nil
}

// Column returns the spec for the named column, or nil if not declared.
func (c *Contract) Column(name string) *ColumnSpec {
	return c.byName[name]
}

// IsKey reports whether the named column is part of the natural key.
func (c *Contract) IsKey(name string) bool {
	return c.keySet[name]
}

// RowKey builds the merge identity for a validated row from the natural
// key columns. ok is false when the contract declares no natural key or
// any key value is absent, in which case the caller falls back to
// positional identity.
func (c *Contract) RowKey(values map[string]any) (string, bool) {
	if len(c.NaturalKey) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(c.NaturalKey))
	for _, name := range c.NaturalKey {
		v, ok := values[name]
		if !ok {
			return "", false
		}
		s := FormatValue(v)
		if s == "" {
			return "", false
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, keySep), true
}

// DisplayKey renders a merge key for logs and reports.
func DisplayKey(key string) string {
	return strings.ReplaceAll(key, keySep, "|")
}

// MatchAllowed reports whether a normalized categorical value is in the
// column's allowed set, returning the canonical spelling on a match.
// Columns without an allowed set match everything.
func (c *Contract) MatchAllowed(colName, value string) (string, bool) {
	idx := c.allowed[colName]
	if idx == nil {
		return value, true
	}
	canonical, ok := idx[value]
	if !ok {
		return value, false
	}
	return canonical, true
}

func (c *Contract) applyDefaults() {
	for i := range c.Columns {
		col := &c.Columns[i]
		if col.Type == "" {
			col.Type = ColumnText
		}
		if col.Normalize == nil {
			col.Normalize = []string{NormalizeTrim}
		}
	}
}

func (c *Contract) buildIndex() {
	c.byName = make(map[string]*ColumnSpec, len(c.Columns))
	c.keySet = make(map[string]bool, len(c.NaturalKey))
	c.allowed = make(map[string]map[string]string)
	for i := range c.Columns {
		col := &c.Columns[i]
		c.byName[col.Name] = col
		if len(col.Allowed) > 0 {
			idx := make(map[string]string, len(col.Allowed))
			for _, a := range col.Allowed {
				idx[NormalizeValue(col.Normalize, a)] = a
			}
			c.allowed[col.Name] = idx
		}
	}
	for _, name := range c.NaturalKey {
		c.keySet[name] = true
	}
}

// Default returns the standard branch returns contract used when no
// contract file is configured.
func Default() *Contract {
	c := &Contract{
		Columns: []ColumnSpec{
			{Name: "Plant", Type: ColumnCategorical, Required: true,
				Allowed: []string{"Plant1", "Plant2", "Plant3", "Plant4"}},
			{Name: "Plant Code", Type: ColumnNumber, Required: true},
			{Name: "Date Delivered", Type: ColumnDate, Required: true},
			{Name: "Date Returned", Type: ColumnDate, Required: true},
			{Name: "Customer", Type: ColumnText, Required: true},
			{Name: "Customer Category", Type: ColumnCategorical, Required: true,
				Allowed: []string{"Hotels", "Supermarkets", "Distributor", "Direct", "Others"}},
			{Name: "Product", Type: ColumnText, Required: true},
			{Name: "Product Code", Type: ColumnText, Required: true},
			{Name: "Total Delivered (kgs)", Type: ColumnNumber, Required: true, Min: float64Ptr(0)},
			{Name: "Total Returned (kgs)", Type: ColumnNumber, Required: true, Min: float64Ptr(0)},
			{Name: "Reason of Return", Type: ColumnText, Required: true},
			{Name: "Return Category", Type: ColumnCategorical, Required: true,
				Allowed: []string{"Damaged", "Expired", "Wrong Item", "Other"}},
			{Name: "Accountability", Type: ColumnCategorical, Required: true,
				Allowed: []string{"Sales", "Processing", "Logistics", "Other"}},
			{Name: "Validation", Type: ColumnCategorical, Required: true,
				Allowed: []string{"Valid", "Invalid"}},
			{Name: "Remarks", Type: ColumnText},
		},
		NaturalKey: []string{"Plant", "Customer", "Product Code", "Date Returned"},
		Ranking:    RankingSpec{ReasonColumn: "Reason of Return"},
		Summary: &SummarySpec{
			GroupColumn:  "Product",
			ValueColumns: []string{"Total Delivered (kgs)", "Total Returned (kgs)"},
		},
	}
	c.applyDefaults()
	c.buildIndex()
	return c
}

func float64Ptr(f float64) *float64 { return &f }
