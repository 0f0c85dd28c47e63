package services

import (
	"context"
	"errors"

	"github.com/opentriagem/triagem/pkg/models"
	"github.com/opentriagem/triagem/pkg/repo"
)

// deadJobPageSize caps the dead-letter list returned by queue introspection.
const deadJobPageSize = 20

// MonitoringService backs the read-only monitoring API.
type MonitoringService struct {
	repos *repo.Repos
}

func NewMonitoringService(repos *repo.Repos) *MonitoringService {
	return &MonitoringService{repos: repos}
}

// ListCases returns one monitoring page. Callers are expected to have
// normalized the filters (defaults, date window) already.
func (s *MonitoringService) ListCases(ctx context.Context, f models.CaseFilters) (*models.CaseList, error) {
	cases, total, err := s.repos.Cases.List(ctx, f)
	if err != nil {
		return nil, err
	}
	items := make([]models.CaseListItem, 0, len(cases))
	for _, c := range cases {
		items = append(items, models.CaseListItem{
			CaseID:             c.CaseID,
			Status:             c.Status,
			AgencyRecordNumber: c.AgencyRecordNumber,
			OriginSenderUserID: c.OriginSenderUserID,
			CreatedAt:          c.CreatedAt,
			UpdatedAt:          c.UpdatedAt,
		})
	}
	return &models.CaseList{
		Cases:      items,
		TotalCount: total,
		Page:       f.Page,
		PageSize:   f.PageSize,
	}, nil
}

// CaseDetail returns the case with its full chronological timeline.
func (s *MonitoringService) CaseDetail(ctx context.Context, caseID string) (*models.CaseDetail, error) {
	c, err := s.repos.Cases.Get(ctx, caseID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}
	timeline, err := s.repos.Activity.Timeline(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return &models.CaseDetail{CaseID: c.CaseID, Status: c.Status, Timeline: timeline}, nil
}

// QueueStats returns the per-status job counts and the recent dead letters.
func (s *MonitoringService) QueueStats(ctx context.Context) (*models.QueueStats, error) {
	counts, err := s.repos.Jobs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	dead, err := s.repos.Jobs.ListDead(ctx, deadJobPageSize)
	if err != nil {
		return nil, err
	}
	return &models.QueueStats{CountsByStatus: counts, DeadJobs: dead}, nil
}
