package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opentriagem/triagem/pkg/models"
)

// Stages runs the two LLM calls of the intake pipeline and hands back both
// the parsed result and the interaction transcript to persist.
type Stages struct {
	client   Client
	renderer *Renderer
	model1   string
	model2   string
}

func NewStages(client Client, renderer *Renderer, model1, model2 string) *Stages {
	return &Stages{client: client, renderer: renderer, model1: model1, model2: model2}
}

// StructureResult is the outcome of the first stage.
type StructureResult struct {
	RawJSON    string
	Structured Structured
}

// SuggestResult is the outcome of the second stage after reconciliation. The
// reconciled suggestion is what gets persisted and posted downstream; RawJSON
// keeps the model's unmodified answer for the transcript.
type SuggestResult struct {
	RawJSON        string
	Suggestion     Suggestion
	Contradictions []Contradiction
}

// Structure renders the llm1 prompts, calls the model, and validates the
// response against the stage schema.
func (s *Stages) Structure(ctx context.Context, caseID, recordNumber, extractedText string) (*StructureResult, *models.LLMInteraction, error) {
	system, err := s.renderer.Render(ctx, models.PromptLLM1System, nil)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.renderer.Render(ctx, models.PromptLLM1User, StructureData{
		AgencyRecordNumber: recordNumber,
		ExtractedText:      extractedText,
	})
	if err != nil {
		return nil, nil, err
	}

	raw, err := s.client.Complete(ctx, Request{
		Stage:        StageStructure,
		Model:        s.model1,
		SystemPrompt: system.Text,
		UserPrompt:   user.Text,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateStructured(raw); err != nil {
		return nil, nil, fmt.Errorf("llm1 output invalid: %w", err)
	}

	var structured Structured
	if err := json.Unmarshal([]byte(raw), &structured); err != nil {
		return nil, nil, fmt.Errorf("decode llm1 output: %w", err)
	}
	return &StructureResult{RawJSON: raw, Structured: structured},
		s.interaction(caseID, StageStructure, system, user, raw, s.model1), nil
}

// Suggest renders the llm2 prompts, calls the model, validates the response,
// and applies policy reconciliation.
func (s *Stages) Suggest(ctx context.Context, caseID, structuredJSON, summary string, precheck Precheck) (*SuggestResult, *models.LLMInteraction, error) {
	system, err := s.renderer.Render(ctx, models.PromptLLM2System, nil)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.renderer.Render(ctx, models.PromptLLM2User, SuggestData{
		StructuredData: structuredJSON,
		Summary:        summary,
	})
	if err != nil {
		return nil, nil, err
	}

	raw, err := s.client.Complete(ctx, Request{
		Stage:        StageSuggest,
		Model:        s.model2,
		SystemPrompt: system.Text,
		UserPrompt:   user.Text,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateSuggestion(raw); err != nil {
		return nil, nil, fmt.Errorf("llm2 output invalid: %w", err)
	}

	var suggestion Suggestion
	if err := json.Unmarshal([]byte(raw), &suggestion); err != nil {
		return nil, nil, fmt.Errorf("decode llm2 output: %w", err)
	}
	reconciled, contradictions := Reconcile(precheck, suggestion)
	return &SuggestResult{RawJSON: raw, Suggestion: reconciled, Contradictions: contradictions},
		s.interaction(caseID, StageSuggest, system, user, raw, s.model2), nil
}

// DefaultSuggestion produces the reconciled suggestion without a model call,
// used when the second stage is disabled. The optimistic baseline goes
// through the same policy rules a live answer would.
func DefaultSuggestion(precheck Precheck) (Suggestion, []Contradiction) {
	return Reconcile(precheck, Suggestion{
		Suggestion:            "accept",
		SupportRecommendation: "none",
		LabsOK:                AnswerYes,
		ECGOK:                 AnswerNotRequired,
		PolicyAlignment:       "avaliacao automatica sem segunda etapa",
		Justification:         "sugestao padrao reconciliada com o precheck",
	})
}

func (s *Stages) interaction(caseID, stage string, system, user Rendered, raw, model string) *models.LLMInteraction {
	return &models.LLMInteraction{
		CaseID:              caseID,
		Stage:               stage,
		SystemPrompt:        system.Text,
		UserPrompt:          user.Text,
		RawResponse:         raw,
		SystemPromptName:    system.Name,
		SystemPromptVersion: system.Version,
		UserPromptName:      user.Name,
		UserPromptVersion:   user.Version,
		ModelName:           model,
	}
}
