package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
	"github.com/opentriagem/triagem/pkg/services"
)

// decisionRequest is the body shared by the webhook and the widget submit.
// submitted_at is the optional client-reported decision time; when present it
// becomes the recorded decided_at instead of the server clock.
type decisionRequest struct {
	CaseID        string     `json:"case_id" binding:"required"`
	DoctorUserID  string     `json:"doctor_user_id" binding:"required"`
	Decision      string     `json:"decision" binding:"required"`
	SupportFlag   string     `json:"support_flag"`
	Reason        string     `json:"reason"`
	WidgetEventID string     `json:"widget_event_id"`
	SubmittedAt   *time.Time `json:"submitted_at"`
}

func (r decisionRequest) toModel() models.DoctorDecision {
	support := r.SupportFlag
	if support == "" {
		support = models.SupportNone
	}
	return models.DoctorDecision{
		CaseID:        r.CaseID,
		DoctorUserID:  r.DoctorUserID,
		Decision:      r.Decision,
		SupportFlag:   support,
		Reason:        r.Reason,
		WidgetEventID: r.WidgetEventID,
		SubmittedAt:   r.SubmittedAt,
	}
}

// handleDecisionWebhook applies an HMAC-authenticated doctor decision. The
// response status mirrors the state-machine outcome.
func (s *Server) handleDecisionWebhook(c *gin.Context) {
	s.applyDecision(c)
}

// handleWidgetSubmit is the bearer-authenticated variant used by the widget.
func (s *Server) handleWidgetSubmit(c *gin.Context) {
	s.applyDecision(c)
}

func (s *Server) applyDecision(c *gin.Context) {
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := s.decisions.Apply(c.Request.Context(), req.toModel(), true)
	if err != nil {
		if errors.Is(err, services.ErrDecisionInvariant) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error("decision apply failed", "case_id", req.CaseID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	switch outcome {
	case models.OutcomeApplied:
		c.JSON(http.StatusOK, gin.H{"outcome": outcome, "case_id": req.CaseID})
	case models.OutcomeNotFound:
		c.JSON(http.StatusNotFound, gin.H{"outcome": outcome, "error": "case not found"})
	case models.OutcomeWrongState:
		c.JSON(http.StatusConflict, gin.H{"outcome": outcome, "error": "case not in WAIT_DOCTOR"})
	case models.OutcomeDuplicateOrRace:
		c.JSON(http.StatusConflict, gin.H{"outcome": outcome, "error": "decision already recorded"})
	}
}

// widgetBootstrapRequest asks for the widget's initial state.
type widgetBootstrapRequest struct {
	CaseID string `json:"case_id" binding:"required"`
}

// handleWidgetBootstrap returns the minimum the widget needs to render:
// current status plus any already-recorded decision.
func (s *Server) handleWidgetBootstrap(c *gin.Context) {
	var req widgetBootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caseRow, err := s.repos.Cases.Get(c.Request.Context(), req.CaseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
			return
		}
		s.logger.Error("widget bootstrap failed", "case_id", req.CaseID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := gin.H{"case_id": caseRow.CaseID, "status": caseRow.Status}
	if caseRow.DoctorDecision != nil {
		resp["doctor_decision"] = *caseRow.DoctorDecision
	}
	if caseRow.DoctorReason != nil {
		resp["doctor_reason"] = *caseRow.DoctorReason
	}
	c.JSON(http.StatusOK, resp)
}
