package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const validStructuredJSON = `{
	"labs_pass": "yes",
	"ecg_present": "yes",
	"ecg_required": "no",
	"excluded_from_eda_flow": false,
	"pediatric_flag": false,
	"summary": "paciente com indicacao de EDA"
}`

const validSuggestionJSON = `{
	"suggestion": "accept",
	"support_recommendation": "none",
	"labs_ok": "yes",
	"ecg_ok": "not_required",
	"excluded_request": false,
	"policy_alignment": "alinhado",
	"justification": "sem exclusoes"
}`

func TestValidateStructured(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"valid", validStructuredJSON, ""},
		{"not json", "the patient looks fine", "not valid JSON"},
		{"missing summary", `{"labs_pass":"yes","ecg_present":"yes","ecg_required":"no","excluded_from_eda_flow":false,"pediatric_flag":false}`, "violates schema"},
		{"empty summary", `{"labs_pass":"yes","ecg_present":"yes","ecg_required":"no","excluded_from_eda_flow":false,"pediatric_flag":false,"summary":""}`, "violates schema"},
		{"labs_pass outside enum", `{"labs_pass":"maybe","ecg_present":"yes","ecg_required":"no","excluded_from_eda_flow":false,"pediatric_flag":false,"summary":"x"}`, "violates schema"},
		{"boolean as string", `{"labs_pass":"yes","ecg_present":"yes","ecg_required":"no","excluded_from_eda_flow":"false","pediatric_flag":false,"summary":"x"}`, "violates schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStructured(tt.raw)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateSuggestion(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{"valid", validSuggestionJSON, ""},
		{"not json", "{broken", "not valid JSON"},
		{"suggestion outside enum", `{"suggestion":"escalate","support_recommendation":"none","labs_ok":"yes","ecg_ok":"yes","excluded_request":false,"policy_alignment":"x","justification":"x"}`, "violates schema"},
		{"ecg_ok not_required allowed", `{"suggestion":"deny","support_recommendation":"anesthesist_icu","labs_ok":"no","ecg_ok":"not_required","excluded_request":true,"policy_alignment":"x","justification":"x"}`, ""},
		{"missing justification", `{"suggestion":"accept","support_recommendation":"none","labs_ok":"yes","ecg_ok":"yes","excluded_request":false,"policy_alignment":"x"}`, "violates schema"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSuggestion(tt.raw)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
