package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/verdant/internal/category"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
)

const (
	detailedCategoryColumn = "분야·부문/연도"
	// detailedMaxRows bounds the category block of a detailed inventory
	// sheet; footnotes follow it.
	detailedMaxRows  = 136
	headerSearchRows = 10
)

// detailedSheets are the worksheets read from a detailed inventory, each
// named after its pollutant.
var detailedSheets = []string{"CO2", "CH4"}

// DetailedAdapter reads the detailed national inventory: one sheet per
// pollutant, an indented category column and one column per year.
type DetailedAdapter struct {
	Emissions EmissionWriter
	MaxRows   int
}

func (a *DetailedAdapter) Kind() Kind { return KindDetailed }

func (a *DetailedAdapter) Import(ctx context.Context, tables []Table, batchID string) (Result, error) {
	result := Result{Kind: KindDetailed, BatchID: batchID}
	rows, err := a.Prepare(tables, &result)
	if err != nil {
		return result, err
	}
	result.Rows = len(rows) + result.Failed
	return result, upsertPartials(ctx, a.Emissions, rows, batchID, &result)
}

// Prepare normalizes the category column of every pollutant sheet with a
// fresh Normalizer and spreads each year column into one row per category.
func (a *DetailedAdapter) Prepare(tables []Table, result *Result) ([]preparedRow, error) {
	maxRows := a.MaxRows
	if maxRows <= 0 {
		maxRows = detailedMaxRows
	}

	var out []preparedRow
	matched := 0
	for _, table := range tables {
		pollutant, ok := pollutantSheet(table.Name)
		if !ok {
			continue
		}
		matched++

		at := findHeader(table.Rows, headerSearchRows, detailedCategoryColumn)
		if at < 0 {
			return nil, fmt.Errorf("%w: %q in sheet %s", ErrMissingCol, detailedCategoryColumn, table.Name)
		}
		head := table.Rows[at]
		catCol := newHeader(head).index(detailedCategoryColumn)

		type yearColumn struct{ col, year int }
		var years []yearColumn
		for i, name := range head {
			if year, ok := parseYear(name); ok {
				years = append(years, yearColumn{col: i, year: year})
			}
		}
		if len(years) == 0 {
			return nil, fmt.Errorf("%w: year columns in sheet %s", ErrMissingCol, table.Name)
		}

		norm := category.NewNormalizer()
		body := table.Rows[at+1:]
		if len(body) > maxRows {
			body = body[:maxRows]
		}
		for i, row := range body {
			// leading spaces distinguish level-5 rows, so the cell is not trimmed
			var raw string
			if catCol < len(row) {
				raw = row[catCol]
			}
			cell := norm.Next(raw)
			if cell.Level == 0 {
				continue
			}
			line := at + i + 2
			for _, yc := range years {
				start, end := emissiondomain.YearPeriod(yc.year)
				p := emissiondomain.Partial{
					Source:        string(KindDetailed),
					CategoryName:  cell.Code,
					CategoryCode:  strings.TrimSuffix(cell.Code, "."),
					PollutantID:   pollutant,
					PeriodStart:   start,
					PeriodEnd:     end,
					PeriodLength:  emissiondomain.PeriodLengthYear,
					EmissionTotal: parseNumber(Cell(row, yc.col)),
				}
				if err := p.Validate(); err != nil {
					result.fail(table.Name, line, err)
					continue
				}
				out = append(out, preparedRow{table: table.Name, line: line, partial: p})
			}
		}
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w: expected sheets %s", ErrNoTable, strings.Join(detailedSheets, ", "))
	}
	return out, nil
}

func pollutantSheet(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, sheet := range detailedSheets {
		if strings.EqualFold(name, sheet) {
			return sheet, true
		}
	}
	return "", false
}
