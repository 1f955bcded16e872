package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListRegions lists every region, or only the children of parent_id.
func (s *Server) ListRegions(c *gin.Context) {
	parentID, err := parseOptionalSnowflakeID(c.Query("parent_id"))
	if err != nil {
		AbortWithError(c, newValidationError("parent_id", "invalid_parent_id", "invalid parent_id"))
		return
	}

	regions, err := s.regionSvc.List(c.Request.Context(), parentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": regions})
}
