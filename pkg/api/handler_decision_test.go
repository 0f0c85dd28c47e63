package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentriagem/triagem/pkg/models"
)

func TestDecisionRequestToModel(t *testing.T) {
	submitted := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)

	body := `{
		"case_id": "3f1e2d4c-5a6b-4c7d-8e9f-0a1b2c3d4e5f",
		"doctor_user_id": "@doctor:clinic.example",
		"decision": "accept",
		"support_flag": "anesthesist",
		"reason": "paciente estavel",
		"widget_event_id": "$widget-1",
		"submitted_at": "2026-08-20T14:30:00Z"
	}`
	var req decisionRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	dec := req.toModel()
	assert.Equal(t, "3f1e2d4c-5a6b-4c7d-8e9f-0a1b2c3d4e5f", dec.CaseID)
	assert.Equal(t, "@doctor:clinic.example", dec.DoctorUserID)
	assert.Equal(t, models.DecisionAccept, dec.Decision)
	assert.Equal(t, models.SupportAnesthesist, dec.SupportFlag)
	assert.Equal(t, "$widget-1", dec.WidgetEventID)
	require.NotNil(t, dec.SubmittedAt)
	assert.True(t, submitted.Equal(*dec.SubmittedAt))
}

func TestDecisionRequestToModelDefaults(t *testing.T) {
	var req decisionRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"case_id": "3f1e2d4c-5a6b-4c7d-8e9f-0a1b2c3d4e5f",
		"doctor_user_id": "@doctor:clinic.example",
		"decision": "deny"
	}`), &req))

	dec := req.toModel()
	assert.Equal(t, models.SupportNone, dec.SupportFlag)
	assert.Nil(t, dec.SubmittedAt)
}
