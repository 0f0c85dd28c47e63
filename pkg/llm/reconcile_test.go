package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func optimisticSuggestion() Suggestion {
	return Suggestion{
		Suggestion:            "accept",
		SupportRecommendation: "none",
		LabsOK:                AnswerYes,
		ECGOK:                 AnswerNotRequired,
		PolicyAlignment:       "ok",
		Justification:         "ok",
	}
}

func cleanPrecheck() Precheck {
	return Precheck{LabsPass: AnswerYes, ECGPresent: AnswerYes, ECGRequired: AnswerNo}
}

func TestReconcileNoConflicts(t *testing.T) {
	s, contradictions := Reconcile(cleanPrecheck(), optimisticSuggestion())

	assert.Empty(t, contradictions)
	assert.Equal(t, "accept", s.Suggestion)
	assert.Equal(t, AnswerYes, s.LabsOK)
}

func TestReconcileExcludedFlowForcesDeny(t *testing.T) {
	p := cleanPrecheck()
	p.ExcludedFromEDAFlow = true

	s, contradictions := Reconcile(p, optimisticSuggestion())

	assert.Equal(t, "deny", s.Suggestion)
	assert.True(t, s.ExcludedRequest)
	assert.Len(t, contradictions, 2)
	assert.Equal(t, RuleExcludedFlow, contradictions[0].Rule)
	assert.Equal(t, "suggestion", contradictions[0].Field)
	assert.Equal(t, "accept", contradictions[0].Previous)
	assert.Equal(t, "deny", contradictions[0].Reconciled)
	assert.Equal(t, "excluded_request", contradictions[1].Field)
}

func TestReconcileLabsFailForcesDeny(t *testing.T) {
	p := cleanPrecheck()
	p.LabsPass = AnswerNo

	s, contradictions := Reconcile(p, optimisticSuggestion())

	assert.Equal(t, AnswerNo, s.LabsOK)
	assert.Equal(t, "deny", s.Suggestion)
	assert.Len(t, contradictions, 2)
	assert.Equal(t, RuleLabsFail, contradictions[0].Rule)
	assert.Equal(t, RulePrecheckDeny, contradictions[1].Rule)
}

func TestReconcileMissingRequiredECG(t *testing.T) {
	p := cleanPrecheck()
	p.ECGPresent = AnswerNo
	p.ECGRequired = AnswerYes

	s, contradictions := Reconcile(p, optimisticSuggestion())

	assert.Equal(t, AnswerNo, s.ECGOK)
	assert.Equal(t, "deny", s.Suggestion)
	assert.Len(t, contradictions, 2)
	assert.Equal(t, RuleECGMissing, contradictions[0].Rule)
}

func TestReconcileMissingOptionalECGIsFine(t *testing.T) {
	p := cleanPrecheck()
	p.ECGPresent = AnswerNo
	p.ECGRequired = AnswerNo

	s, contradictions := Reconcile(p, optimisticSuggestion())

	assert.Empty(t, contradictions)
	assert.Equal(t, "accept", s.Suggestion)
}

func TestReconcileAgreementProducesNoContradiction(t *testing.T) {
	// The model already denied for the right reason: the override is a no-op
	// and must not be recorded as a contradiction.
	p := cleanPrecheck()
	p.LabsPass = AnswerNo

	s := optimisticSuggestion()
	s.Suggestion = "deny"
	s.LabsOK = AnswerNo

	out, contradictions := Reconcile(p, s)
	assert.Empty(t, contradictions)
	assert.Equal(t, "deny", out.Suggestion)
}

func TestReconcileIsDeterministic(t *testing.T) {
	p := Precheck{LabsPass: AnswerNo, ECGPresent: AnswerNo, ECGRequired: AnswerYes, ExcludedFromEDAFlow: true}

	first, firstC := Reconcile(p, optimisticSuggestion())
	second, secondC := Reconcile(p, optimisticSuggestion())

	assert.Equal(t, first, second)
	assert.Equal(t, firstC, secondC)
}
