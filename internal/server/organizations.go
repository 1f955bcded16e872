package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/smallbiznis/verdant/internal/organization/domain"
	"github.com/smallbiznis/verdant/pkg/db/pagination"
)

const maxOrganizationPage = 199

func (s *Server) ListOrganizations(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	offset, size, err := query.Window()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	size = min(size, maxOrganizationPage)

	orgs, err := s.orgSvc.List(c.Request.Context(), size+1, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	data, pageInfo := pagination.Page(orgs, offset, size)
	c.JSON(http.StatusOK, gin.H{"data": data, "page_info": pageInfo})
}

func (s *Server) GetOrganization(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	org, err := s.orgSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": org})
}

// ApportionOrganization records one organization's yearly report and splits
// it across the organization's sites.
func (s *Server) ApportionOrganization(c *gin.Context) {
	var report organizationdomain.Report
	if err := c.ShouldBindJSON(&report); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(report.LegalName) == "" {
		AbortWithError(c, newValidationError("legal_name", "invalid_name", "legal_name is required"))
		return
	}

	result, err := s.orgSvc.Apportion(c.Request.Context(), report)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
