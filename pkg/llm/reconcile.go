package llm

import "fmt"

// Reconciliation rule names, recorded on contradictions.
const (
	RuleExcludedFlow = "excluded_from_flow_forces_deny"
	RuleLabsFail     = "labs_fail_forces_labs_not_ok"
	RuleECGMissing   = "missing_required_ecg_forces_ecg_not_ok"
	RulePrecheckDeny = "failed_required_precheck_forces_deny"
)

// Reconcile applies the fixed policy rules on top of the model's suggestion.
// No LLM is in this loop: given the same precheck facts and suggestion, the
// output is always the same. Every forced override is returned as a
// contradiction for the audit trail.
func Reconcile(p Precheck, s Suggestion) (Suggestion, []Contradiction) {
	var contradictions []Contradiction
	force := func(rule, field, previous, reconciled string) {
		if previous == reconciled {
			return
		}
		contradictions = append(contradictions, Contradiction{
			Rule: rule, Field: field, Previous: previous, Reconciled: reconciled,
		})
	}

	if p.ExcludedFromEDAFlow {
		force(RuleExcludedFlow, "suggestion", s.Suggestion, "deny")
		s.Suggestion = "deny"
		force(RuleExcludedFlow, "excluded_request", fmt.Sprintf("%t", s.ExcludedRequest), "true")
		s.ExcludedRequest = true
	}
	if p.LabsPass == AnswerNo {
		force(RuleLabsFail, "labs_ok", s.LabsOK, AnswerNo)
		s.LabsOK = AnswerNo
	}
	if p.ECGPresent == AnswerNo && p.ECGRequired == AnswerYes {
		force(RuleECGMissing, "ecg_ok", s.ECGOK, AnswerNo)
		s.ECGOK = AnswerNo
	}

	// Any forced no on a required precheck denies the request.
	if s.LabsOK == AnswerNo || s.ECGOK == AnswerNo {
		force(RulePrecheckDeny, "suggestion", s.Suggestion, "deny")
		s.Suggestion = "deny"
	}
	return s, contradictions
}
