package services

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opentriagem/triagem/pkg/config"
	"github.com/opentriagem/triagem/pkg/models"
)

func TestValidateDoctorDecision(t *testing.T) {
	s := NewDoctorDecisionService(nil, nil, config.RoomsConfig{},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	base := models.DoctorDecision{
		CaseID:       parserCaseID,
		DoctorUserID: "@doctor:test",
		Decision:     models.DecisionAccept,
		SupportFlag:  models.SupportNone,
	}

	tests := []struct {
		name   string
		mutate func(*models.DoctorDecision)
		valid  bool
	}{
		{"accept without support", func(*models.DoctorDecision) {}, true},
		{"accept with anesthesist", func(d *models.DoctorDecision) { d.SupportFlag = models.SupportAnesthesist }, true},
		{"accept with anesthesist icu", func(d *models.DoctorDecision) { d.SupportFlag = models.SupportAnesthesistICU }, true},
		{"deny without support", func(d *models.DoctorDecision) { d.Decision = models.DecisionDeny }, true},
		{"unknown decision", func(d *models.DoctorDecision) { d.Decision = "escalate" }, false},
		{"unknown support flag", func(d *models.DoctorDecision) { d.SupportFlag = "robo" }, false},
		{"deny with support", func(d *models.DoctorDecision) {
			d.Decision = models.DecisionDeny
			d.SupportFlag = models.SupportAnesthesist
		}, false},
		{"missing doctor id", func(d *models.DoctorDecision) { d.DoctorUserID = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := base
			tt.mutate(&dec)
			err := s.Validate(dec)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrDecisionInvariant)
			}
		})
	}
}
