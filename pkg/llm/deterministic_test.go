package llm

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deterministicStructure(t *testing.T, prompt string) Structured {
	t.Helper()
	c := NewDeterministicClient()
	raw, err := c.Complete(context.Background(), Request{Stage: StageStructure, UserPrompt: prompt})
	require.NoError(t, err)
	require.NoError(t, ValidateStructured(raw))

	var s Structured
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	return s
}

func TestDeterministicStructureDefaults(t *testing.T) {
	s := deterministicStructure(t, "Paciente 54 anos, indicacao de EDA diagnostica.")

	assert.Equal(t, AnswerYes, s.LabsPass)
	assert.Equal(t, AnswerYes, s.ECGPresent)
	assert.Equal(t, AnswerNo, s.ECGRequired)
	assert.False(t, s.ExcludedFromEDAFlow)
	assert.False(t, s.PediatricFlag)
	assert.Contains(t, s.Summary, "Paciente 54 anos")
}

func TestDeterministicStructureMarkers(t *testing.T) {
	s := deterministicStructure(t, "encaminhamento [labs:no] [ecg:missing] [ecg:required] [excluded] [pediatric]")

	assert.Equal(t, AnswerNo, s.LabsPass)
	assert.Equal(t, AnswerNo, s.ECGPresent)
	assert.Equal(t, AnswerYes, s.ECGRequired)
	assert.True(t, s.ExcludedFromEDAFlow)
	assert.True(t, s.PediatricFlag)
}

func TestDeterministicStructureSummaryCapped(t *testing.T) {
	long := strings.Repeat("palavra ", 300)
	s := deterministicStructure(t, long)

	assert.Len(t, strings.Fields(s.Summary), 120)
}

func TestDeterministicStructureEmptyText(t *testing.T) {
	s := deterministicStructure(t, "   ")
	assert.Equal(t, "encaminhamento sem texto legivel", s.Summary)
}

func TestDeterministicSuggestIsOptimistic(t *testing.T) {
	c := NewDeterministicClient()
	raw, err := c.Complete(context.Background(), Request{Stage: StageSuggest})
	require.NoError(t, err)
	require.NoError(t, ValidateSuggestion(raw))

	var s Suggestion
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, "accept", s.Suggestion)
	assert.Equal(t, "none", s.SupportRecommendation)
}

func TestDeterministicUnknownStage(t *testing.T) {
	c := NewDeterministicClient()
	_, err := c.Complete(context.Background(), Request{Stage: "llm3"})
	assert.ErrorContains(t, err, "unknown llm stage")
}
