// Package tabular holds spreadsheet-shaped data as read from ERP exports.
package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/xuri/excelize/v2"
)

// Row maps column names to raw cell text in column order.
type Row = *orderedmap.OrderedMap[string, string]

// Table is an ordered list of rows sharing one header.
type Table struct {
	Columns []string
	Rows    []Row
}

func NewRow() Row {
	return orderedmap.New[string, string]()
}

// NewTable builds a table from a header and positional records. Short records
// are padded with empty cells; extra cells are ignored.
func NewTable(columns []string, records [][]string) *Table {
	t := &Table{Columns: cleanHeader(columns)}
	for _, rec := range records {
		row := NewRow()
		for i, col := range t.Columns {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			row.Set(col, v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func cleanHeader(columns []string) []string {
	cleaned := make([]string, 0, len(columns))
	for i, c := range columns {
		c = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		if c == "" {
			c = fmt.Sprintf("Unnamed: %d", i)
		}
		cleaned = append(cleaned, c)
	}
	return cleaned
}

// HasColumn reports whether the header contains name.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Value returns the trimmed cell for col, or "" when the column is absent.
func Value(r Row, col string) string {
	v, _ := r.Get(col)
	return strings.TrimSpace(v)
}

// ReadCSV parses a CSV export with a header line.
func ReadCSV(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))

	header, err := csv.NewReader(bytes.NewReader(raw)).Read()
	if err == io.EOF {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	maps, err := gocsv.CSVToMaps(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}

	t := &Table{Columns: cleanHeader(header)}
	for _, m := range maps {
		row := NewRow()
		for i, col := range t.Columns {
			row.Set(col, m[header[i]])
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadXLSX parses the named sheet of a workbook, or the first sheet when
// sheet is empty. The first non-empty row is the header.
func ReadXLSX(r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return &Table{}, nil
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet '%s': %w", sheet, err)
	}
	if err := formatDateCells(f, sheet, rows); err != nil {
		return nil, err
	}

	for len(rows) > 0 && isBlank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return &Table{}, nil
	}

	body := make([][]string, 0, len(rows)-1)
	for _, rec := range rows[1:] {
		if isBlank(rec) {
			continue
		}
		body = append(body, rec)
	}
	return NewTable(rows[0], body), nil
}

// builtInDateFormats are the built-in number formats that render a serial
// number as a date.
var builtInDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 22: true,
	27: true, 28: true, 29: true, 30: true, 31: true,
	34: true, 35: true, 36: true,
	50: true, 51: true, 52: true, 53: true, 54: true, 57: true, 58: true,
}

var quotedOrBracketed = regexp.MustCompile(`"[^"]*"|\[[^\]]*\]`)

func isDateFormat(style *excelize.Style) bool {
	if style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		format := strings.ToLower(quotedOrBracketed.ReplaceAllString(*style.CustomNumFmt, ""))
		return strings.ContainsAny(format, "yd")
	}
	return builtInDateFormats[style.NumFmt]
}

// formatDateCells rewrites date-styled numeric cells, which the workbook
// stores as serial numbers, to ISO dates.
func formatDateCells(f *excelize.File, sheet string, rows [][]string) error {
	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}

	dateStyles := map[int]bool{}
	for i, rec := range rows {
		for j, v := range rec {
			if strings.TrimSpace(v) == "" {
				continue
			}
			serial, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				return err
			}
			styleId, err := f.GetCellStyle(sheet, cell)
			if err != nil {
				return fmt.Errorf("failed to read style of cell %s: %w", cell, err)
			}
			isDate, ok := dateStyles[styleId]
			if !ok {
				style, err := f.GetStyle(styleId)
				if err != nil {
					return fmt.Errorf("failed to read style %d: %w", styleId, err)
				}
				isDate = isDateFormat(style)
				dateStyles[styleId] = isDate
			}
			if !isDate {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, date1904)
			if err != nil {
				continue
			}
			rec[j] = formatExcelTime(t)
		}
	}
	return nil
}

func formatExcelTime(t time.Time) string {
	t = t.Round(time.Second)
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ReadFile dispatches on the file extension.
func ReadFile(path string, sheet string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return ReadCSV(f)
	case ".xlsx", ".xlsm":
		return ReadXLSX(f, sheet)
	default:
		return nil, fmt.Errorf("unsupported file type '%s', expected .csv or .xlsx", filepath.Ext(path))
	}
}

// FromRecords converts JSON records, e.g. from the ERP connector, into a
// table. When columns is empty the header is the sorted union of keys.
func FromRecords(records []map[string]any, columns []string) *Table {
	if len(columns) == 0 {
		seen := map[string]struct{}{}
		for _, rec := range records {
			for k := range rec {
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					columns = append(columns, k)
				}
			}
		}
		sort.Strings(columns)
	}

	t := &Table{Columns: cleanHeader(columns)}
	for _, rec := range records {
		row := NewRow()
		for _, col := range t.Columns {
			row.Set(col, stringify(rec[col]))
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}
