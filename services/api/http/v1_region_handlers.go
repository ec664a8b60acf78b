package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/humanimpact/hii-stats/services/api/db"
)

// handleV1RegionHistory returns the daily statistics of one region
// GET /api/v1/regions/:scope/:id/history?last_n=30&start=2024-01-01&end=2024-06-30
func (s *Server) handleV1RegionHistory(c *gin.Context) {
	scope := c.Param("scope")
	if !validScopes[scope] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scope"})
		return
	}
	regionID := c.Param("id")
	if regionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "region id is required"})
		return
	}

	limit := s.cfg.DefaultLimit
	if limitStr := c.Query("last_n"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_n"})
			return
		}
		limit = min(parsed, s.cfg.MaxLimit)
	}

	var since, until *time.Time
	if startStr := c.Query("start"); startStr != "" {
		t, err := time.Parse(dateLayout, startStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date"})
			return
		}
		since = &t
	}
	if endStr := c.Query("end"); endStr != "" {
		t, err := time.Parse(dateLayout, endStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date"})
			return
		}
		until = &t
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	history, err := s.store.RegionHistory(ctx, db.HistoryQuery{
		Dataset:  s.cfg.Dataset,
		Scope:    scope,
		RegionID: regionID,
		Limit:    limit,
		Since:    since,
		Until:    until,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": history,
		"meta": gin.H{
			"scope":     scope,
			"region_id": regionID,
			"count":     len(history),
		},
	})
}
