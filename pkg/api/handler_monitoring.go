package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 100
)

// handleListCases returns a paginated case list. Without explicit dates the
// window defaults to today in UTC.
func (s *Server) handleListCases(c *gin.Context) {
	filters, err := parseCaseFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, err := s.monitoring.ListCases(c.Request.Context(), filters)
	if err != nil {
		s.logger.Error("case list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func parseCaseFilters(c *gin.Context) (models.CaseFilters, error) {
	f := models.CaseFilters{Page: defaultPage, PageSize: defaultPageSize}

	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.New("page must be a positive integer")
		}
		f.Page = n
	}
	if v := c.Query("page_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxPageSize {
			return f, errors.New("page_size must be between 1 and 100")
		}
		f.PageSize = n
	}
	if v := c.Query("status"); v != "" {
		st := models.Status(v)
		f.Status = &st
	}

	fromSet, toSet := c.Query("from_date") != "", c.Query("to_date") != ""
	if fromSet {
		t, err := time.Parse("2006-01-02", c.Query("from_date"))
		if err != nil {
			return f, errors.New("from_date must be YYYY-MM-DD")
		}
		f.FromDate = &t
	}
	if toSet {
		t, err := time.Parse("2006-01-02", c.Query("to_date"))
		if err != nil {
			return f, errors.New("to_date must be YYYY-MM-DD")
		}
		end := t.AddDate(0, 0, 1)
		f.ToDate = &end
	}
	if !fromSet && !toSet {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		tomorrow := today.AddDate(0, 0, 1)
		f.FromDate, f.ToDate = &today, &tomorrow
	}
	return f, nil
}

// handleCaseDetail returns one case with its full activity timeline.
func (s *Server) handleCaseDetail(c *gin.Context) {
	caseID := c.Param("case_id")
	detail, err := s.monitoring.CaseDetail(c.Request.Context(), caseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
			return
		}
		s.logger.Error("case detail failed", "case_id", caseID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

// handleQueueStats returns job counts by status and the recent dead letters.
func (s *Server) handleQueueStats(c *gin.Context) {
	stats, err := s.monitoring.QueueStats(c.Request.Context())
	if err != nil {
		s.logger.Error("queue stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
