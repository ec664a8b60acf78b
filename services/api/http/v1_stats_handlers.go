package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

var validScopes = map[string]bool{"global": true, "country": true, "state": true}

// handleV1ListDates returns task dates with stored statistics
// GET /api/v1/stats/dates?page=1&limit=20&start=2024-01-01&end=2024-12-31
func (s *Server) handleV1ListDates(c *gin.Context) {
	page := 1
	if p := c.Query("page"); p != "" {
		if val, err := strconv.Atoi(p); err == nil && val > 0 {
			page = val
		}
	}

	limit := 20
	if l := c.Query("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 100 {
			limit = val
		}
	}
	offset := (page - 1) * limit

	var startDate, endDate *time.Time
	if start := c.Query("start"); start != "" {
		t, err := time.Parse(dateLayout, start)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date, expected YYYY-MM-DD"})
			return
		}
		startDate = &t
	}
	if end := c.Query("end"); end != "" {
		t, err := time.Parse(dateLayout, end)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date, expected YYYY-MM-DD"})
			return
		}
		endDate = &t
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	result, err := s.store.ListTaskDates(ctx, s.cfg.Dataset, limit, offset, startDate, endDate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result.Dates,
		"pagination": gin.H{
			"page":        page,
			"limit":       limit,
			"total_count": result.TotalCount,
			"total_pages": (result.TotalCount + limit - 1) / limit,
		},
	})
}

// handleV1StatsByDate returns every scope of a task date
// GET /api/v1/stats/:date
func (s *Server) handleV1StatsByDate(c *gin.Context) {
	date, err := time.Parse(dateLayout, c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}
	s.respondStats(c, date, nil)
}

// handleV1StatsByDateScope returns one scope of a task date
// GET /api/v1/stats/:date/:scope
func (s *Server) handleV1StatsByDateScope(c *gin.Context) {
	date, err := time.Parse(dateLayout, c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}
	scope := c.Param("scope")
	if !validScopes[scope] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scope"})
		return
	}
	s.respondStats(c, date, &scope)
}

// handleV1Latest returns the statistics of the most recent task date
// GET /api/v1/stats/latest
func (s *Server) handleV1Latest(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	latest, err := s.store.LatestTaskDate(ctx, s.cfg.Dataset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if latest == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no statistics available"})
		return
	}
	s.respondStats(c, *latest, nil)
}

func (s *Server) respondStats(c *gin.Context, date time.Time, scope *string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	stats, err := s.store.StatsByDate(ctx, s.cfg.Dataset, date, scope)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(stats) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no statistics for " + date.Format(dateLayout)})
		return
	}

	meta := gin.H{
		"task_date":    date.Format(dateLayout),
		"count":        len(stats),
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if scope != nil {
		meta["scope"] = *scope
	}
	c.JSON(http.StatusOK, gin.H{"data": stats, "meta": meta})
}
