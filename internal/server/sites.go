package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	sitedomain "github.com/smallbiznis/verdant/internal/site/domain"
	"github.com/smallbiznis/verdant/pkg/db/pagination"
)

const maxSitePage = 199

type listSitesQuery struct {
	pagination.Pagination
	CompanyName    string `form:"company_name"`
	RegionID       string `form:"region_id"`
	OrganizationID string `form:"organization_id"`
}

func (s *Server) ListSites(c *gin.Context) {
	var query listSitesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	offset, size, err := query.Window()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	size = min(size, maxSitePage)

	filter := sitedomain.ListFilter{
		CompanyName: strings.TrimSpace(query.CompanyName),
		Limit:       size + 1,
		Offset:      offset,
	}
	if filter.RegionID, err = parseOptionalSnowflakeID(query.RegionID); err != nil {
		AbortWithError(c, newValidationError("region_id", "invalid_region_id", "invalid region_id"))
		return
	}
	if filter.OrganizationID, err = parseOptionalSnowflakeID(query.OrganizationID); err != nil {
		AbortWithError(c, newValidationError("organization_id", "invalid_organization_id", "invalid organization_id"))
		return
	}

	sites, err := s.siteSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data, pageInfo := pagination.Page(sites, offset, size)
	c.JSON(http.StatusOK, gin.H{"data": data, "page_info": pageInfo})
}

func (s *Server) GetSite(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	site, err := s.siteSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": site})
}

func (s *Server) ListSiteRelations(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if _, err := s.siteSvc.Get(ctx, id); err != nil {
		AbortWithError(c, err)
		return
	}
	relations, err := s.relationSvc.ListBySite(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": relations})
}

// ResolveSiteAddress geocodes the site's address and links it to a region.
func (s *Server) ResolveSiteAddress(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	site, err := s.siteSvc.ResolveAddress(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": site})
}

func (s *Server) RebuildSiteRelations(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	n, err := s.relationSvc.RebuildForSite(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	relations, err := s.relationSvc.ListBySite(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"rebuilt": n, "relations": relations}})
}
