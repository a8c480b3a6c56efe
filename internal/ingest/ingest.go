package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/returns-cli/internal/model"
)

// UnreadableFileError marks a submission file that could not be opened or
// parsed at all. Callers record it as a per-file failure so one bad
// upload never sinks the batch.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("ingest: unreadable file %s: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error { return e.Err }

func unreadable(path string, err error) error {
	return &UnreadableFileError{Path: path, Err: err}
}

// Options configures how a submission file is read.
type Options struct {
	BranchID  string // default: file name without extension
	SheetName string // workbooks only; default first sheet
	Delimiter rune   // csv only; default ','
	Charset   string // csv only; default utf-8
}

// Load reads a submission file with default options.
func Load(path string) (*model.RawSubmission, error) {
	return LoadWithOptions(path, Options{})
}

// LoadWithOptions reads one branch submission into raw rows. Cell text is
// kept verbatim; all interpretation happens downstream. The first row is
// the header, so data rows are numbered from 2 the way they appear in a
// spreadsheet.
func LoadWithOptions(path string, opts Options) (*model.RawSubmission, error) {
	var table [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		table, err = readWorkbook(path, opts)
	case ".csv":
		table, err = readCSV(path, opts)
	default:
		return nil, unreadable(path, eris.Errorf("ingest: unsupported extension %q", filepath.Ext(path)))
	}
	if err != nil {
		return nil, err
	}
	if len(table) == 0 {
		return nil, unreadable(path, eris.New("ingest: file has no header row"))
	}

	branch := opts.BranchID
	if branch == "" {
		branch = BranchID(path)
	}

	header := make([]string, len(table[0]))
	for i, name := range table[0] {
		header[i] = strings.TrimSpace(name)
	}

	sub := &model.RawSubmission{
		BranchID:   branch,
		SourceFile: filepath.Base(path),
		Header:     header,
	}
	for i, row := range table[1:] {
		cells := make(map[string]string, len(header))
		for j, cell := range row {
			if j >= len(header) || header[j] == "" || cell == "" {
				continue
			}
			cells[header[j]] = cell
		}
		if len(cells) == 0 {
			continue // fully blank row
		}
		sub.Rows = append(sub.Rows, model.RawRow{Index: i + 2, Cells: cells})
	}
	return sub, nil
}

// Discover lists the readable submission files in dir, sorted by name so
// batch order is stable across runs. Excel lock files are skipped.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".xlsx", ".xlsm", ".csv":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// BranchID derives the default branch identifier from a file path: the
// base name without its extension.
func BranchID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func readWorkbook(path string, opts Options) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, unreadable(path, eris.Wrap(err, "ingest: open workbook"))
	}

	sheet, err := getSheet(f, opts.SheetName)
	if err != nil {
		return nil, unreadable(path, err)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ingest: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func readCSV(path string, opts Options) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, unreadable(path, eris.Wrap(err, "ingest: open csv"))
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if opts.Charset != "" && !strings.EqualFold(opts.Charset, "utf-8") {
		enc, err := htmlindex.Get(opts.Charset)
		if err != nil {
			return nil, unreadable(path, eris.Wrapf(err, "ingest: unsupported charset %q", opts.Charset))
		}
		r = enc.NewDecoder().Reader(f)
	}

	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // branches pad rows unevenly

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, unreadable(path, eris.Wrap(err, "ingest: parse csv"))
	}
	return rows, nil
}
