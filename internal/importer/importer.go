// Package importer reads spreadsheet and CSV sources into emission records,
// sites and regions. Each source format has an adapter; the service picks one
// from the requested kind or the file name.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/verdant/internal/observability/logger"
	"github.com/smallbiznis/verdant/internal/observability/metrics"
	"github.com/smallbiznis/verdant/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Emissions     EmissionWriter
	Regions       RegionDirectory
	Sites         SiteRegistry
	Organizations ReportApportioner
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	adapters map[Kind]Adapter
}

func New(p Params) *Service {
	s := &Service{
		log:      p.Log.Named("importer"),
		metrics:  p.Metrics,
		adapters: map[Kind]Adapter{},
	}
	s.register(
		&DetailedAdapter{Emissions: p.Emissions},
		&CoarseAdapter{Emissions: p.Emissions, Regions: p.Regions},
		&OrgReportAdapter{Organizations: p.Organizations},
		&RegistryAdapter{Sites: p.Sites},
		&RegionAdapter{Regions: p.Regions},
	)
	return s
}

func (s *Service) register(adapters ...Adapter) {
	for _, a := range adapters {
		s.adapters[a.Kind()] = a
	}
}

// Resolve returns the adapter kind for a request. An empty kind is detected
// from the file name.
func Resolve(kind, filename string) (Kind, error) {
	if kind != "" {
		k, ok := ParseKind(kind)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
		}
		return k, nil
	}
	k, ok := Detect(filename)
	if !ok {
		return "", fmt.Errorf("%w: cannot detect from %q", ErrUnknownKind, filepath.Base(filename))
	}
	return k, nil
}

func (s *Service) ImportFile(ctx context.Context, path, kind string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return s.Import(ctx, f, filepath.Base(path), kind)
}

// Import decodes r and hands its tables to the adapter for kind. Row level
// failures are collected on the result; the error reports failures that
// stopped the whole file.
func (s *Service) Import(ctx context.Context, r io.Reader, filename, kind string) (result Result, err error) {
	k, err := Resolve(kind, filename)
	if err != nil {
		return Result{}, err
	}
	adapter, ok := s.adapters[k]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownKind, k)
	}

	batchID := ulid.Make().String()
	ctx, span := tracing.Start(ctx, "import.file",
		attribute.String("import.kind", string(k)),
	)
	log := logger.WithContext(ctx, s.log).With(
		zap.String("kind", string(k)),
		zap.String("file", filename),
		zap.String("batch_id", batchID),
	)
	defer func() {
		span.SetAttributes(tracing.SafeAttributes(attribute.Int("import.rows", result.Rows))...)
		tracing.End(span, err)
	}()

	tables, err := Read(r, filename)
	if err != nil {
		return Result{Kind: k, BatchID: batchID}, err
	}

	result, err = adapter.Import(ctx, tables, batchID)
	s.metrics.RecordImportRows(ctx, string(k), "imported", result.Imported)
	s.metrics.RecordImportRows(ctx, string(k), "failed", result.Failed)
	if err != nil {
		log.Error("import failed", zap.Error(err))
		return result, err
	}

	if result.Failed > 0 {
		log.Warn("import finished with failed rows",
			zap.Int("rows", result.Rows),
			zap.Int("imported", result.Imported),
			zap.Int("failed", result.Failed),
		)
	} else {
		log.Info("import finished", zap.Int("rows", result.Rows), zap.Int("imported", result.Imported))
	}
	return result, nil
}
