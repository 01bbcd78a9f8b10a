package handlers

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type PaginationParams struct {
	Limit  int
	Before *time.Time
}

type CursorResponse struct {
	Data       any    `json:"data"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// ParsePagination reads ?limit= and ?before=. Limits above MaxLimit are
// clamped; malformed values are an error rather than silently ignored.
func ParsePagination(c *gin.Context) (PaginationParams, error) {
	p := PaginationParams{Limit: DefaultLimit}

	if limitStr := c.Query("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			return p, fmt.Errorf("invalid limit %q, must be a positive integer", limitStr)
		}
		p.Limit = min(l, MaxLimit)
	}

	if beforeStr := c.Query("before"); beforeStr != "" {
		t, err := time.Parse(time.RFC3339Nano, beforeStr)
		if err != nil {
			return p, fmt.Errorf("invalid before cursor %q, must be RFC3339", beforeStr)
		}
		p.Before = &t
	}

	return p, nil
}
