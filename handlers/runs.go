package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mulsewm/rossmann-sales-forecasting/models"
)

type RunsHandler struct {
	db *gorm.DB
}

func NewRunsHandler(db *gorm.DB) *RunsHandler {
	return &RunsHandler{db: db}
}

// GetRuns pages through training history newest first, using created_at as
// the cursor.
func (h *RunsHandler) GetRuns(c *gin.Context) {
	if h.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history requires DB_ENABLED=true"})
		return
	}
	p, err := ParsePagination(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	query := h.db.Model(&models.TrainingRun{}).
		Order("created_at DESC").
		Limit(p.Limit + 1)
	if p.Before != nil {
		query = query.Where("created_at < ?", *p.Before)
	}
	if split := c.Query("split"); split != "" {
		query = query.Where("split = ?", split)
	}

	var rows []models.TrainingRun
	if err := query.Find(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "database query failed"})
		return
	}

	hasMore := len(rows) > p.Limit
	if hasMore {
		rows = rows[:p.Limit]
	}

	var nextCursor string
	if hasMore && len(rows) > 0 {
		nextCursor = rows[len(rows)-1].CreatedAt.Format(time.RFC3339Nano)
	}

	c.JSON(http.StatusOK, CursorResponse{Data: rows, NextCursor: nextCursor, HasMore: hasMore})
}
