package importer

import (
	"context"
	"errors"
	"fmt"

	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
)

const coarsePollutant = "CO2eq"

var (
	coarseCategoryCols = []string{"categoryName", "category_name", "category", "분야", "부문"}
	coarseRegionCols   = []string{"regionName", "region_name", "region", "시도", "지역"}
	coarseYearCols     = []string{"year", "연도"}
	coarseStartCols    = []string{"periodStartDt", "period_start", "start"}
	coarseEndCols      = []string{"periodEndDt", "period_end", "end"}
	coarseTotalCols    = []string{"emissionTotal", "emission_total", "total", "배출량"}
)

// CoarseAdapter reads the regional inventory: one row per category label,
// region and year, in CO2 equivalent.
type CoarseAdapter struct {
	Emissions EmissionWriter
	Regions   RegionDirectory
}

func (a *CoarseAdapter) Kind() Kind { return KindCoarse }

func (a *CoarseAdapter) Import(ctx context.Context, tables []Table, batchID string) (Result, error) {
	result := Result{Kind: KindCoarse, BatchID: batchID}
	rows, err := a.Prepare(tables, &result)
	if err != nil {
		return result, err
	}
	result.Rows = len(rows) + result.Failed

	// rows naming a known region carry its id and coordinates
	regions := map[string]*regiondomain.Region{}
	for i := range rows {
		p := &rows[i].partial
		if p.RegionName == "" || a.Regions == nil {
			continue
		}
		region, seen := regions[p.RegionName]
		if !seen {
			region, err = a.Regions.FindProvince(ctx, p.RegionName)
			if err != nil && !errors.Is(err, regiondomain.ErrNotFound) {
				return result, err
			}
			regions[p.RegionName] = region
		}
		if region != nil {
			id := region.ID
			p.RegionID = &id
			p.Latitude = region.Latitude
			p.Longitude = region.Longitude
		}
	}
	return result, upsertPartials(ctx, a.Emissions, rows, batchID, &result)
}

func (a *CoarseAdapter) Prepare(tables []Table, result *Result) ([]preparedRow, error) {
	var out []preparedRow
	matched := 0
	for _, table := range tables {
		at := findHeader(table.Rows, headerSearchRows, coarseCategoryCols...)
		if at < 0 {
			continue
		}
		h := newHeader(table.Rows[at])
		totalCol := h.index(coarseTotalCols...)
		if totalCol < 0 {
			continue
		}
		matched++
		catCol := h.index(coarseCategoryCols...)
		regionCol := h.index(coarseRegionCols...)
		yearCol := h.index(coarseYearCols...)
		startCol := h.index(coarseStartCols...)
		endCol := h.index(coarseEndCols...)

		for i, row := range table.Rows[at+1:] {
			if blank(row) {
				continue
			}
			line := at + i + 2
			p := emissiondomain.Partial{
				Source:        string(KindCoarse),
				CategoryName:  Cell(row, catCol),
				PollutantID:   coarsePollutant,
				PeriodLength:  emissiondomain.PeriodLengthYear,
				EmissionTotal: parseNumber(Cell(row, totalCol)),
				RegionName:    Cell(row, regionCol),
			}
			if year, ok := parseYear(Cell(row, yearCol)); ok {
				p.PeriodStart, p.PeriodEnd = emissiondomain.YearPeriod(year)
			} else {
				start, okStart := parseDate(Cell(row, startCol))
				end, okEnd := parseDate(Cell(row, endCol))
				if !okStart || !okEnd {
					result.fail(table.Name, line, fmt.Errorf("%w: period", emissiondomain.ErrInvalidRecord))
					continue
				}
				p.PeriodStart, p.PeriodEnd = *start, *end
			}
			if err := p.Validate(); err != nil {
				result.fail(table.Name, line, err)
				continue
			}
			out = append(out, preparedRow{table: table.Name, line: line, partial: p})
		}
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w: no table with category and total columns", ErrNoTable)
	}
	return out, nil
}
