package llm

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const structuredSchemaJSON = `{
	"type": "object",
	"required": ["labs_pass", "ecg_present", "ecg_required", "excluded_from_eda_flow", "pediatric_flag", "summary"],
	"properties": {
		"labs_pass": {"enum": ["yes", "no"]},
		"ecg_present": {"enum": ["yes", "no"]},
		"ecg_required": {"enum": ["yes", "no"]},
		"excluded_from_eda_flow": {"type": "boolean"},
		"pediatric_flag": {"type": "boolean"},
		"summary": {"type": "string", "minLength": 1}
	}
}`

const suggestionSchemaJSON = `{
	"type": "object",
	"required": ["suggestion", "support_recommendation", "labs_ok", "ecg_ok", "excluded_request", "policy_alignment", "justification"],
	"properties": {
		"suggestion": {"enum": ["accept", "deny"]},
		"support_recommendation": {"enum": ["none", "anesthesist", "anesthesist_icu"]},
		"labs_ok": {"enum": ["yes", "no"]},
		"ecg_ok": {"enum": ["yes", "no", "not_required"]},
		"excluded_request": {"type": "boolean"},
		"policy_alignment": {"type": "string"},
		"justification": {"type": "string"}
	}
}`

var (
	structuredSchema = jsonschema.MustCompileString("llm1_structured.json", structuredSchemaJSON)
	suggestionSchema = jsonschema.MustCompileString("llm2_suggestion.json", suggestionSchemaJSON)
)

func validate(schema *jsonschema.Schema, raw string) error {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("response violates schema: %w", err)
	}
	return nil
}

// ValidateStructured checks a raw LLM1 response against the stage schema.
func ValidateStructured(raw string) error {
	return validate(structuredSchema, raw)
}

// ValidateSuggestion checks a raw LLM2 response against the stage schema.
func ValidateSuggestion(raw string) error {
	return validate(suggestionSchema, raw)
}
