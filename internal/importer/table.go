package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrUnsupportedFormat = errors.New("unsupported_file_format")

// Table is one decoded worksheet, or the single table of a CSV file. Rows are
// ragged: trailing empty cells may be missing.
type Table struct {
	Name string
	Rows [][]string
}

// Cell returns row[i] trimmed, or "" when the row is shorter.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Read decodes r according to the extension of filename.
func Read(r io.Reader, filename string) ([]Table, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		table, err := readCSV(r, strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
		if err != nil {
			return nil, err
		}
		return []Table{table}, nil
	case ".xlsx", ".xlsm", ".xltx":
		return readWorkbook(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func readCSV(r io.Reader, name string) (Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return Table{Name: name, Rows: rows}, nil
}

func readWorkbook(r io.Reader) ([]Table, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	tables := make([]Table, 0, len(sheets))
	for _, sheet := range sheets {
		rows, err := book.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		tables = append(tables, Table{Name: sheet, Rows: rows})
	}
	return tables, nil
}
