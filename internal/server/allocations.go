package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	allocationdomain "github.com/smallbiznis/verdant/internal/allocation/domain"
)

type runAllocationsRequest struct {
	From int `json:"from" binding:"required"`
	To   int `json:"to"`
}

type runAllocationsResponse struct {
	Reports []*allocationdomain.Report `json:"reports"`
	Errors  []string                   `json:"errors,omitempty"`
}

// RunAllocations allocates every year in [from, to]. Per-year failures are
// listed next to the reports of the years that ran; a missing to runs the
// single year from.
func (s *Server) RunAllocations(c *gin.Context) {
	var req runAllocationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.To == 0 {
		req.To = req.From
	}

	reports, err := s.allocator.RunRange(c.Request.Context(), req.From, req.To)
	if err != nil {
		if errors.Is(err, allocationdomain.ErrInvalidYear) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			AbortWithError(c, err)
			return
		}
	}

	resp := runAllocationsResponse{Reports: reports, Errors: flattenErrors(err)}
	if resp.Reports == nil {
		resp.Reports = []*allocationdomain.Report{}
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListAllocationRuns(c *gin.Context) {
	year, err := parseOptionalInt(c.Query("year"))
	if err != nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	n := 0
	if limit != nil {
		n = *limit
	}

	runs, err := s.allocator.ListRuns(c.Request.Context(), year, n)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func flattenErrors(err error) []string {
	if err == nil {
		return nil
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range joined.Unwrap() {
		if e != nil {
			out = append(out, e.Error())
		}
	}
	return out
}
