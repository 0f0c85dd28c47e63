package services

import (
	"context"
	"strings"
	"time"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// priorDenialWindow is how far back the Room-2 widget looks for earlier
// denials of the same agency record.
const priorDenialWindow = 7 * 24 * time.Hour

// PriorCaseService builds the denial-history context shown to the doctor.
type PriorCaseService struct {
	repos *repo.Repos
}

func NewPriorCaseService(repos *repo.Repos) *PriorCaseService {
	return &PriorCaseService{repos: repos}
}

// Context returns nil when the case has no record number or no prior denials
// inside the window.
func (s *PriorCaseService) Context(ctx context.Context, c *models.Case) (*models.PriorCaseContext, error) {
	if c.AgencyRecordNumber == nil || *c.AgencyRecordNumber == "" {
		return nil, nil
	}
	since := time.Now().Add(-priorDenialWindow)
	denials, err := s.repos.Cases.FindPriorDenials(ctx, c.CaseID, *c.AgencyRecordNumber, since)
	if err != nil {
		return nil, err
	}
	if len(denials) == 0 {
		return nil, nil
	}
	most := denials[0]
	if strings.TrimSpace(most.Reason) == "" {
		most.Reason = reasonNotInformed
	}
	return &models.PriorCaseContext{MostRecent: &most, DenialCount: len(denials)}, nil
}
