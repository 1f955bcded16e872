package importer

import (
	"context"
	"fmt"
	"strings"

	organizationdomain "github.com/smallbiznis/verdant/internal/organization/domain"
)

var (
	reportLegalNameCols   = []string{"업체명", "법인명", "legalName", "legal_name"}
	reportYearCols        = []string{"연도", "이행연도", "year"}
	reportNameCols        = []string{"name", "상호"}
	reportSectorCols      = []string{"업종", "sectorMain", "sector_main"}
	reportTotalCols       = []string{"온실가스 배출량", "배출량(tCO2eq)", "emissionTotal", "emission_total"}
	reportDirectCols      = []string{"직접배출", "emissionDirect", "emission_direct"}
	reportIndirectCols    = []string{"간접배출", "emissionIndirect", "emission_indirect"}
	reportHeatCols        = []string{"열", "energyHeat", "energy_heat"}
	reportElectricityCols = []string{"전기", "energyElectricity", "energy_electricity"}
	reportFuelCols        = []string{"연료", "energyFuel", "energy_fuel"}
	reportEnergyCols      = []string{"에너지 사용량", "에너지사용량(TJ)", "energyTotal", "energy_total"}
)

// OrgReportAdapter reads organization emission statements. Each row is
// recorded against its organization and split across the organization's
// sites.
type OrgReportAdapter struct {
	Organizations ReportApportioner
}

func (a *OrgReportAdapter) Kind() Kind { return KindOrgReport }

func (a *OrgReportAdapter) Import(ctx context.Context, tables []Table, batchID string) (Result, error) {
	result := Result{Kind: KindOrgReport, BatchID: batchID}
	reports, err := a.Prepare(tables, batchID, &result)
	if err != nil {
		return result, err
	}
	result.Rows = len(reports) + result.Failed

	for _, r := range reports {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := a.Organizations.Apportion(ctx, r.report); err != nil {
			result.fail(r.table, r.line, err)
			continue
		}
		result.Imported++
	}
	return result, nil
}

type preparedReport struct {
	table  string
	line   int
	report organizationdomain.Report
}

// Prepare reads one report per row. A sheet without a year column takes the
// year from its name. Missing emission and energy totals count as zero.
func (a *OrgReportAdapter) Prepare(tables []Table, batchID string, result *Result) ([]preparedReport, error) {
	var out []preparedReport
	matched := 0
	for _, table := range tables {
		at := findHeader(table.Rows, headerSearchRows, reportLegalNameCols...)
		if at < 0 {
			continue
		}
		matched++
		h := newHeader(table.Rows[at])
		legalCol := h.index(reportLegalNameCols...)
		yearCol := h.index(reportYearCols...)
		sheetYear, hasSheetYear := yearFromName(table.Name)

		for i, row := range table.Rows[at+1:] {
			if blank(row) {
				continue
			}
			line := at + i + 2
			legalName := Cell(row, legalCol)
			if legalName == "" {
				result.fail(table.Name, line, organizationdomain.ErrInvalidName)
				continue
			}
			year, ok := parseYear(Cell(row, yearCol))
			if !ok {
				year, ok = sheetYear, hasSheetYear
			}
			if !ok {
				result.fail(table.Name, line, fmt.Errorf("%w: missing year", organizationdomain.ErrInvalidYear))
				continue
			}

			q := organizationdomain.Quantity{
				EmissionTotal:     zeroIfNil(parseNumber(Cell(row, h.index(reportTotalCols...)))),
				EmissionDirect:    parseNumber(Cell(row, h.index(reportDirectCols...))),
				EmissionIndirect:  parseNumber(Cell(row, h.index(reportIndirectCols...))),
				EnergyHeat:        parseNumber(Cell(row, h.index(reportHeatCols...))),
				EnergyElectricity: parseNumber(Cell(row, h.index(reportElectricityCols...))),
				EnergyFuel:        parseNumber(Cell(row, h.index(reportFuelCols...))),
				EnergyTotal:       zeroIfNil(parseNumber(Cell(row, h.index(reportEnergyCols...)))),
			}
			out = append(out, preparedReport{
				table: table.Name,
				line:  line,
				report: organizationdomain.Report{
					LegalName:  legalName,
					Name:       Cell(row, h.index(reportNameCols...)),
					SectorMain: strings.TrimSpace(Cell(row, h.index(reportSectorCols...))),
					Year:       year,
					Source:     organizationdomain.ReportSource,
					BatchID:    batchID,
					Quantities: q,
				},
			})
		}
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w: no table with a legal name column", ErrNoTable)
	}
	return out, nil
}

func zeroIfNil(v *float64) *float64 {
	if v == nil {
		zero := 0.0
		return &zero
	}
	return v
}
