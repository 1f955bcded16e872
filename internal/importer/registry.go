package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
)

var (
	registryCompanyCols     = []string{"회사명", "company_name", "companyName"}
	registryManagementCols  = []string{"공장관리번호", "factory_management_number"}
	registryStreetCols      = []string{"공장대표주소(도로명)", "street_address"}
	registryLandCols        = []string{"공장대표주소(지번)", "land_address"}
	registrySectorCols      = []string{"업종번호", "대표업종차수", "sector_ids"}
	registrySectorMainCols  = []string{"대표업종번호", "sector_id_main"}
	registryRegionCols      = []string{"시도", "address_region_name"}
	registrySubRegionCols   = []string{"시군구", "address_sub_region"}
	registryRegisteredCols  = []string{"최초등록일", "registration_date_initial"}
	registryFacilityCols    = []string{"제조시설면적", "manufacturing_facility_area"}
	registryBuildingCols    = []string{"건축면적", "building_area"}
	registryLandAreaCols    = []string{"용지면적", "land_area"}
	registryKnownColumnSets = [][]string{
		registryCompanyCols, registryManagementCols, registryStreetCols, registryLandCols,
		registrySectorCols, registrySectorMainCols, registryRegionCols, registrySubRegionCols,
		registryRegisteredCols, registryFacilityCols, registryBuildingCols, registryLandAreaCols,
	}
)

// RegistryAdapter reads the facility registry into sites. Columns it does not
// map are kept as site attributes.
type RegistryAdapter struct {
	Sites SiteRegistry
}

func (a *RegistryAdapter) Kind() Kind { return KindRegistry }

func (a *RegistryAdapter) Import(ctx context.Context, tables []Table, batchID string) (Result, error) {
	result := Result{Kind: KindRegistry, BatchID: batchID}
	regs, err := a.Prepare(tables, &result)
	if err != nil {
		return result, err
	}
	result.Rows = len(regs) + result.Failed

	for _, r := range regs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := a.Sites.UpsertRegistration(ctx, r.reg); err != nil {
			result.fail(r.table, r.line, err)
			continue
		}
		result.Imported++
	}
	return result, nil
}

type preparedRegistration struct {
	table string
	line  int
	reg   sitedomain.Registration
}

func (a *RegistryAdapter) Prepare(tables []Table, result *Result) ([]preparedRegistration, error) {
	var out []preparedRegistration
	matched := 0
	for _, table := range tables {
		at := findHeader(table.Rows, headerSearchRows, registryManagementCols...)
		if at < 0 {
			continue
		}
		head := table.Rows[at]
		h := newHeader(head)
		if !h.has(registryCompanyCols...) {
			result.fail(table.Name, at+1, fmt.Errorf("%w: company name", ErrMissingCol))
			continue
		}
		matched++

		known := make(map[int]bool)
		for _, set := range registryKnownColumnSets {
			for _, alias := range set {
				if i := h.index(alias); i >= 0 {
					known[i] = true
				}
			}
		}
		source := dataSource(table.Name)

		for i, row := range table.Rows[at+1:] {
			if blank(row) {
				continue
			}
			line := at + i + 2
			reg := sitedomain.Registration{
				CompanyName:               Cell(row, h.index(registryCompanyCols...)),
				FactoryManagementNumber:   Cell(row, h.index(registryManagementCols...)),
				StreetAddress:             Cell(row, h.index(registryStreetCols...)),
				LandAddress:               Cell(row, h.index(registryLandCols...)),
				SectorIDs:                 Cell(row, h.index(registrySectorCols...)),
				SectorIDMain:              Cell(row, h.index(registrySectorMainCols...)),
				AddressRegionName:         Cell(row, h.index(registryRegionCols...)),
				AddressSubRegion:          Cell(row, h.index(registrySubRegionCols...)),
				ManufacturingFacilityArea: parseNumber(Cell(row, h.index(registryFacilityCols...))),
				BuildingArea:              parseNumber(Cell(row, h.index(registryBuildingCols...))),
				LandArea:                  parseNumber(Cell(row, h.index(registryLandAreaCols...))),
				DataSource:                source,
			}
			if registered, ok := parseDate(Cell(row, h.index(registryRegisteredCols...))); ok {
				reg.RegistrationDateInitial = registered
			}
			if reg.CompanyName == "" || reg.FactoryManagementNumber == "" {
				result.fail(table.Name, line, sitedomain.ErrInvalidRegistration)
				continue
			}

			for col, name := range head {
				if known[col] || strings.TrimSpace(name) == "" {
					continue
				}
				if v := Cell(row, col); v != "" {
					if reg.Attributes == nil {
						reg.Attributes = map[string]any{}
					}
					reg.Attributes[strings.TrimSpace(name)] = v
				}
			}
			out = append(out, preparedRegistration{table: table.Name, line: line, reg: reg})
		}
	}
	if matched == 0 {
		return nil, fmt.Errorf("%w: no table with a management number column", ErrNoTable)
	}
	return out, nil
}

// dataSource names rows by the sheet or file they came from.
func dataSource(tableName string) string {
	return strings.TrimSuffix(tableName, filepath.Ext(tableName))
}
