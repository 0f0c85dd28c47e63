package models

import "time"

// Prompt template names. Exactly one version per name is active at any time.
const (
	PromptLLM1System = "llm1_system"
	PromptLLM1User   = "llm1_user"
	PromptLLM2System = "llm2_system"
	PromptLLM2User   = "llm2_user"
)

// PromptTemplate is one immutable version of a named prompt. Activation moves
// between versions; content never changes in place.
type PromptTemplate struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
