package importer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	organizationdomain "github.com/smallbiznis/verdant/internal/organization/domain"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
)

type Kind string

const (
	KindDetailed  Kind = "gir4"
	KindCoarse    Kind = "gir1"
	KindOrgReport Kind = "ets"
	KindRegistry  Kind = "registry"
	KindRegion    Kind = "region"
)

// detectOrder is the order file names are matched in. gir4 precedes gir1 so
// a name carrying both picks the detailed inventory.
var detectOrder = []struct {
	kind    Kind
	markers []string
}{
	{KindDetailed, []string{"gir4"}},
	{KindCoarse, []string{"gir1"}},
	{KindOrgReport, []string{"gir-ets", "ets_report", "ets-report", "명세서"}},
	{KindRegistry, []string{"registry", "factory", "공장"}},
	{KindRegion, []string{"region", "지역"}},
}

// Detect picks an adapter kind from a file name.
func Detect(filename string) (Kind, bool) {
	name := strings.ToLower(filepath.Base(filename))
	for _, entry := range detectOrder {
		for _, marker := range entry.markers {
			if strings.Contains(name, marker) {
				return entry.kind, true
			}
		}
	}
	return "", false
}

func ParseKind(raw string) (Kind, bool) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	for _, entry := range detectOrder {
		if entry.kind == kind {
			return kind, true
		}
	}
	return "", false
}

var (
	ErrUnknownKind = errors.New("unknown_import_kind")
	ErrNoTable     = errors.New("no_importable_table")
	ErrMissingCol  = errors.New("missing_column")
)

// Adapter reshapes decoded tables of one source format and writes them.
type Adapter interface {
	Kind() Kind
	Import(ctx context.Context, tables []Table, batchID string) (Result, error)
}

// RowError locates a row that could not be imported. Row is 1-based as
// shown by spreadsheet tools.
type RowError struct {
	Table string `json:"table"`
	Row   int    `json:"row"`
	Err   string `json:"error"`
}

type Result struct {
	Kind     Kind       `json:"kind"`
	BatchID  string     `json:"batch_id"`
	Rows     int        `json:"rows"`
	Imported int        `json:"imported"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors,omitempty"`
}

func (r *Result) fail(table string, row int, err error) {
	r.Failed++
	r.Errors = append(r.Errors, RowError{Table: table, Row: row, Err: err.Error()})
}

type EmissionWriter interface {
	UpsertRaw(ctx context.Context, p emissiondomain.Partial, batchID string) (*emissiondomain.Record, error)
}

type RegionDirectory interface {
	FindProvince(ctx context.Context, name string) (*regiondomain.Region, error)
	ImportRows(ctx context.Context, rows []regiondomain.UpsertRequest) (regiondomain.ImportResult, error)
}

type SiteRegistry interface {
	UpsertRegistration(ctx context.Context, reg sitedomain.Registration) (*sitedomain.Site, error)
}

type ReportApportioner interface {
	Apportion(ctx context.Context, report organizationdomain.Report) (*organizationdomain.ApportionResult, error)
}

// upsertPartials writes prepared rows, recording each failure on result.
func upsertPartials(ctx context.Context, w EmissionWriter, rows []preparedRow, batchID string, result *Result) error {
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.UpsertRaw(ctx, row.partial, batchID); err != nil {
			result.fail(row.table, row.line, err)
			continue
		}
		result.Imported++
	}
	return nil
}

type preparedRow struct {
	table   string
	line    int
	partial emissiondomain.Partial
}
