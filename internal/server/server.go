package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	allocationdomain "github.com/smallbiznis/verdant/internal/allocation/domain"
	"github.com/smallbiznis/verdant/internal/config"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	"github.com/smallbiznis/verdant/internal/importer"
	"github.com/smallbiznis/verdant/internal/observability"
	obslogger "github.com/smallbiznis/verdant/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/verdant/internal/observability/metrics"
	obstracing "github.com/smallbiznis/verdant/internal/observability/tracing"
	organizationdomain "github.com/smallbiznis/verdant/internal/organization/domain"
	"github.com/smallbiznis/verdant/internal/ratelimit"
	regiondomain "github.com/smallbiznis/verdant/internal/region/domain"
	relationdomain "github.com/smallbiznis/verdant/internal/relation/domain"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type EmissionReader interface {
	List(ctx context.Context, f emissiondomain.ListFilter) ([]*emissiondomain.Record, error)
	DateBoundaries(ctx context.Context) (*emissiondomain.Boundaries, error)
	RegionalSummary(ctx context.Context, req emissiondomain.RegionalSummaryRequest) ([]emissiondomain.RegionalTotal, error)
}

type Allocator interface {
	RunRange(ctx context.Context, from, to int) ([]*allocationdomain.Report, error)
	ListRuns(ctx context.Context, year *int, limit int) ([]*allocationdomain.Run, error)
}

type SiteReader interface {
	Get(ctx context.Context, id snowflake.ID) (*sitedomain.Site, error)
	List(ctx context.Context, f sitedomain.ListFilter) ([]*sitedomain.Site, error)
	ResolveAddress(ctx context.Context, id snowflake.ID) (*sitedomain.Site, error)
}

type RelationReader interface {
	ListBySite(ctx context.Context, siteID snowflake.ID) ([]*relationdomain.Relation, error)
	RebuildForSite(ctx context.Context, siteID snowflake.ID) (int, error)
}

type RegionReader interface {
	List(ctx context.Context, parentID *snowflake.ID) ([]*regiondomain.Region, error)
}

type OrganizationDirectory interface {
	Get(ctx context.Context, id snowflake.ID) (*organizationdomain.Organization, error)
	List(ctx context.Context, limit, offset int) ([]*organizationdomain.Organization, error)
	Apportion(ctx context.Context, report organizationdomain.Report) (*organizationdomain.ApportionResult, error)
}

// Importer decodes an uploaded file with the adapter for kind.
type Importer interface {
	Import(ctx context.Context, r io.Reader, filename, kind string) (importer.Result, error)
}

// UploadLimiter throttles import uploads per client.
type UploadLimiter interface {
	AllowImport(ctx context.Context, clientKey string, sizeBytes int64) (*ratelimit.RateLimitResult, error)
}

var Module = fx.Module("http.server",
	fx.Provide(func(svc emissiondomain.Service) EmissionReader { return svc }),
	fx.Provide(func(svc allocationdomain.Service) Allocator { return svc }),
	fx.Provide(func(svc sitedomain.Service) SiteReader { return svc }),
	fx.Provide(func(svc relationdomain.Service) RelationReader { return svc }),
	fx.Provide(func(svc regiondomain.Service) RegionReader { return svc }),
	fx.Provide(func(svc organizationdomain.Service) OrganizationDirectory { return svc }),
	fx.Provide(func(imp *importer.Service) Importer { return imp }),
	fx.Provide(func(guard *ratelimit.Guard) UploadLimiter { return guard }),
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterAPIRoutes() }),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	emissionSvc EmissionReader
	allocator   Allocator
	siteSvc     SiteReader
	relationSvc RelationReader
	regionSvc   RegionReader
	orgSvc      OrganizationDirectory
	importer    Importer
	limiter     UploadLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	EmissionSvc     EmissionReader
	Allocator       Allocator
	SiteSvc         SiteReader
	RelationSvc     RelationReader
	RegionSvc       RegionReader
	OrganizationSvc OrganizationDirectory
	Importer        Importer
	Limiter         UploadLimiter       `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		emissionSvc: p.EmissionSvc,
		allocator:   p.Allocator,
		siteSvc:     p.SiteSvc,
		relationSvc: p.RelationSvc,
		regionSvc:   p.RegionSvc,
		orgSvc:      p.OrganizationSvc,
		importer:    p.Importer,
		limiter:     p.Limiter,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/v1")

	api.GET("/emissions", s.ListEmissions)
	api.GET("/emissions/boundaries", s.GetEmissionBoundaries)
	api.GET("/emissions/regions", s.GetRegionalSummary)

	api.POST("/allocations", s.RunAllocations)
	api.GET("/allocations/runs", s.ListAllocationRuns)

	api.GET("/sites", s.ListSites)
	api.GET("/sites/:id", s.GetSite)
	api.GET("/sites/:id/relations", s.ListSiteRelations)
	api.POST("/sites/:id/resolve", s.ResolveSiteAddress)
	api.POST("/sites/:id/relations/rebuild", s.RebuildSiteRelations)

	api.GET("/regions", s.ListRegions)

	api.GET("/organizations", s.ListOrganizations)
	api.GET("/organizations/:id", s.GetOrganization)
	api.POST("/organizations/apportion", s.ApportionOrganization)

	api.POST("/imports/:kind", s.UploadImport)
}
