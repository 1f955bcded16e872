package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	emissiondomain "github.com/smallbiznis/verdant/internal/emission/domain"
	"github.com/smallbiznis/verdant/pkg/db/pagination"
)

// the emission store caps a list at 500 rows and a page fetches one extra
const maxEmissionPage = 499

type listEmissionsQuery struct {
	pagination.Pagination
	Source         string `form:"source"`
	Category       string `form:"category"`
	Derived        string `form:"derived"`
	SiteID         string `form:"site_id"`
	OrganizationID string `form:"organization_id"`
	From           string `form:"from"`
	To             string `form:"to"`
}

func (s *Server) ListEmissions(c *gin.Context) {
	var query listEmissionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	offset, size, err := query.Window()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	size = min(size, maxEmissionPage)

	filter := emissiondomain.ListFilter{
		Source:       strings.TrimSpace(query.Source),
		CategoryName: strings.TrimSpace(query.Category),
		Limit:        size + 1,
		Offset:       offset,
	}
	if filter.Derived, err = parseOptionalBool(query.Derived); err != nil {
		AbortWithError(c, newValidationError("derived", "invalid_derived", "invalid derived"))
		return
	}
	if filter.SiteID, err = parseOptionalSnowflakeID(query.SiteID); err != nil {
		AbortWithError(c, newValidationError("site_id", "invalid_site_id", "invalid site_id"))
		return
	}
	if filter.OrganizationID, err = parseOptionalSnowflakeID(query.OrganizationID); err != nil {
		AbortWithError(c, newValidationError("organization_id", "invalid_organization_id", "invalid organization_id"))
		return
	}
	if filter.From, err = parseOptionalTime(query.From, false); err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	if filter.To, err = parseOptionalTime(query.To, true); err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	records, err := s.emissionSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data, pageInfo := pagination.Page(records, offset, size)
	c.JSON(http.StatusOK, gin.H{"data": data, "page_info": pageInfo})
}

func (s *Server) GetEmissionBoundaries(c *gin.Context) {
	bounds, err := s.emissionSvc.DateBoundaries(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bounds})
}

// GetRegionalSummary totals coarse and detailed emissions per region. The
// window defaults to the full span of stored data.
func (s *Server) GetRegionalSummary(c *gin.Context) {
	from, err := parseOptionalTime(c.Query("from"), false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(c.Query("to"), true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	ctx := c.Request.Context()
	if from == nil || to == nil {
		bounds, err := s.emissionSvc.DateBoundaries(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if from == nil {
			from = bounds.Start
		}
		if to == nil {
			to = bounds.End
		}
	}
	if from == nil || to == nil {
		c.JSON(http.StatusOK, gin.H{"data": []emissiondomain.RegionalTotal{}})
		return
	}

	totals, err := s.emissionSvc.RegionalSummary(ctx, emissiondomain.RegionalSummaryRequest{
		From:           from.UTC(),
		To:             to.UTC().Add(time.Nanosecond),
		DetailedSource: s.cfg.Allocation.DetailedSource,
		CoarseSource:   s.cfg.Allocation.CoarseSource,
		CoarseScale:    s.cfg.Allocation.CoarseScale,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": totals})
}
