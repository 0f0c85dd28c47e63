package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Markers the deterministic runtime recognizes inside the referral text.
// They let development and test fixtures steer the precheck facts without a
// model in the loop.
const (
	MarkerLabsFail    = "[labs:no]"
	MarkerECGMissing  = "[ecg:missing]"
	MarkerECGRequired = "[ecg:required]"
	MarkerExcluded    = "[excluded]"
	MarkerPediatric   = "[pediatric]"
)

// DeterministicClient produces schema-valid stage outputs derived purely
// from the prompt text. The suggestion stage is always optimistic; policy
// reconciliation downstream applies the real rules, so contradiction paths
// are exercised exactly as with a live model.
type DeterministicClient struct{}

var _ Client = (*DeterministicClient)(nil)

func NewDeterministicClient() *DeterministicClient {
	return &DeterministicClient{}
}

func (c *DeterministicClient) Complete(_ context.Context, req Request) (string, error) {
	switch req.Stage {
	case StageStructure:
		return c.structure(req.UserPrompt)
	case StageSuggest:
		return c.suggest()
	default:
		return "", fmt.Errorf("unknown llm stage %q", req.Stage)
	}
}

func (c *DeterministicClient) structure(userPrompt string) (string, error) {
	lower := strings.ToLower(userPrompt)
	s := Structured{
		Precheck: Precheck{
			LabsPass:            AnswerYes,
			ECGPresent:          AnswerYes,
			ECGRequired:         AnswerNo,
			ExcludedFromEDAFlow: strings.Contains(lower, MarkerExcluded),
			PediatricFlag:       strings.Contains(lower, MarkerPediatric),
		},
		Summary: summarize(userPrompt),
	}
	if strings.Contains(lower, MarkerLabsFail) {
		s.LabsPass = AnswerNo
	}
	if strings.Contains(lower, MarkerECGMissing) {
		s.ECGPresent = AnswerNo
	}
	if strings.Contains(lower, MarkerECGRequired) {
		s.ECGRequired = AnswerYes
	}
	out, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal deterministic structure: %w", err)
	}
	return string(out), nil
}

func (c *DeterministicClient) suggest() (string, error) {
	s := Suggestion{
		Suggestion:            "accept",
		SupportRecommendation: "none",
		LabsOK:                AnswerYes,
		ECGOK:                 AnswerNotRequired,
		ExcludedRequest:       false,
		PolicyAlignment:       "alinhado com o protocolo padrao",
		Justification:         "sem criterios de exclusao detectados",
	}
	out, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal deterministic suggestion: %w", err)
	}
	return string(out), nil
}

func summarize(text string) string {
	const maxWords = 120
	words := strings.Fields(text)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	if len(words) == 0 {
		return "encaminhamento sem texto legivel"
	}
	return strings.Join(words, " ")
}
