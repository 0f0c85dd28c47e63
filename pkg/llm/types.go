package llm

// Yes/no style answers as the prompts instruct the model to emit them.
const (
	AnswerYes         = "yes"
	AnswerNo          = "no"
	AnswerNotRequired = "not_required"
)

// Precheck holds the LLM1 facts the reconciliation rules key on. The full
// structured object may carry more fields; these are the contract.
type Precheck struct {
	LabsPass            string `json:"labs_pass"`
	ECGPresent          string `json:"ecg_present"`
	ECGRequired         string `json:"ecg_required"`
	ExcludedFromEDAFlow bool   `json:"excluded_from_eda_flow"`
	PediatricFlag       bool   `json:"pediatric_flag"`
}

// Structured is the parsed LLM1 output.
type Structured struct {
	Precheck
	Summary string `json:"summary"`
}

// Suggestion is the parsed LLM2 output, before and after reconciliation.
type Suggestion struct {
	Suggestion            string `json:"suggestion"`
	SupportRecommendation string `json:"support_recommendation"`
	LabsOK                string `json:"labs_ok"`
	ECGOK                 string `json:"ecg_ok"`
	ExcludedRequest       bool   `json:"excluded_request"`
	PolicyAlignment       string `json:"policy_alignment"`
	Justification         string `json:"justification"`
}

// Contradiction records one forced override applied by a reconciliation rule.
type Contradiction struct {
	Rule       string `json:"rule"`
	Field      string `json:"field"`
	Previous   string `json:"previous"`
	Reconciled string `json:"reconciled"`
}
