package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/verdant/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	importEndpoint   = "imports"
	importFormField  = "file"
	importAutoDetect = "auto"
)

// UploadImport runs one uploaded file through the adapter for :kind. The
// kind "auto" picks the adapter from the file name.
func (s *Server) UploadImport(c *gin.Context) {
	ctx := c.Request.Context()
	if !s.allowUpload(c) {
		return
	}

	header, err := c.FormFile(importFormField)
	if err != nil {
		AbortWithError(c, newValidationError(importFormField, "invalid_file", "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		AbortWithError(c, newValidationError(importFormField, "invalid_file", "file is unreadable"))
		return
	}
	defer file.Close()

	kind := strings.TrimSpace(c.Param("kind"))
	if strings.EqualFold(kind, importAutoDetect) {
		kind = ""
	}

	result, err := s.importer.Import(ctx, file, header.Filename, kind)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) allowUpload(c *gin.Context) bool {
	if s.limiter == nil {
		return true
	}
	ctx := c.Request.Context()

	res, err := s.limiter.AllowImport(ctx, c.ClientIP(), c.Request.ContentLength)
	if err != nil {
		// a limiter outage must not block imports
		logger.FromContext(ctx).Warn("import rate limit check failed", zap.Error(err))
		return true
	}
	if res.Allowed {
		return true
	}

	logger.FromContext(ctx).Warn("import rate limit exceeded", zap.String("endpoint", importEndpoint))
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitDenied(ctx, importEndpoint, "rate_limited")
	}
	c.Header("Retry-After", retryAfterSeconds(res.RetryAfter))
	c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	AbortWithError(c, ErrRateLimited)
	return false
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
