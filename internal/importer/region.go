package importer

import (
	"context"
	"fmt"

	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
)

var (
	regionNameCols   = []string{"name", "지역명", "명칭"}
	regionTypeCols   = []string{"type", "구분"}
	regionParentCols = []string{"parent_name", "parent", "상위지역"}
	regionLatCols    = []string{"latitude", "lat", "위도"}
	regionLngCols    = []string{"longitude", "lng", "lon", "경도"}
)

// RegionAdapter loads the region tree. Parents must precede their children
// in the file.
type RegionAdapter struct {
	Regions RegionDirectory
}

func (a *RegionAdapter) Kind() Kind { return KindRegion }

func (a *RegionAdapter) Import(ctx context.Context, tables []Table, batchID string) (Result, error) {
	result := Result{Kind: KindRegion, BatchID: batchID}
	var rows []regiondomain.UpsertRequest
	matched := 0
	for _, table := range tables {
		at := findHeader(table.Rows, headerSearchRows, regionNameCols...)
		if at < 0 {
			continue
		}
		matched++
		h := newHeader(table.Rows[at])
		for i, row := range table.Rows[at+1:] {
			if blank(row) {
				continue
			}
			req := regiondomain.UpsertRequest{
				Name:       Cell(row, h.index(regionNameCols...)),
				Type:       Cell(row, h.index(regionTypeCols...)),
				ParentName: Cell(row, h.index(regionParentCols...)),
				Latitude:   parseNumber(Cell(row, h.index(regionLatCols...))),
				Longitude:  parseNumber(Cell(row, h.index(regionLngCols...))),
			}
			if req.Name == "" {
				result.fail(table.Name, at+i+2, regiondomain.ErrInvalidName)
				continue
			}
			rows = append(rows, req)
		}
	}
	if matched == 0 {
		return result, fmt.Errorf("%w: no table with a name column", ErrNoTable)
	}
	result.Rows = len(rows) + result.Failed
	if len(rows) == 0 {
		return result, nil
	}

	imported, err := a.Regions.ImportRows(ctx, rows)
	result.Imported = imported.Upserted
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, ctxErr
	}
	if err != nil {
		// the directory reports row failures as one joined error
		result.Failed += imported.Failed
		result.Errors = append(result.Errors, RowError{Err: err.Error()})
	}
	return result, nil
}
