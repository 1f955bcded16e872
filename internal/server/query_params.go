package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	dateOnlyLayout = "2006-01-02"
	yearLayout     = "2006"
)

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseOptionalInt rejects negative values; every integer query parameter of
// the API is a year or a count.
func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	if parsed < 0 {
		return nil, errors.New("negative_value")
	}
	return &parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

// parseOptionalTime accepts RFC3339, a date or a bare year. Dates and years
// expand to the first or last instant of the day or year when endOfPeriod
// is set, so `to=2021` covers all of 2021.
func parseOptionalTime(value string, endOfPeriod bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		start := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		if endOfPeriod {
			start = start.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return &start, nil
	}
	if parsed, err := time.Parse(yearLayout, trimmed); err == nil {
		start := time.Date(parsed.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		if endOfPeriod {
			start = start.AddDate(1, 0, 0).Add(-time.Nanosecond)
		}
		return &start, nil
	}
	return nil, errors.New("invalid_time")
}

// pathID reads a required snowflake path parameter and aborts the request
// when it is missing or malformed.
func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := parseOptionalSnowflakeID(c.Param(name))
	if err != nil || id == nil {
		AbortWithError(c, newValidationError(name, "invalid_"+name, "invalid "+name))
		return 0, false
	}
	return *id, true
}
