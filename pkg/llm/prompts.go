package llm

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/opentriagem/triagem/pkg/models"
)

// PromptSource loads the active version of a named prompt template.
// *repo.PromptRepo satisfies it.
type PromptSource interface {
	GetActive(ctx context.Context, name string) (*models.PromptTemplate, error)
}

// Rendered is a prompt after template expansion, pinned to the version that
// produced it so the interaction transcript stays accurate forever.
type Rendered struct {
	Name    string
	Version int
	Text    string
}

// Renderer expands active prompt templates with case data.
type Renderer struct {
	source PromptSource
}

func NewRenderer(source PromptSource) *Renderer {
	return &Renderer{source: source}
}

// StructureData feeds the llm1 user template.
type StructureData struct {
	AgencyRecordNumber string
	ExtractedText      string
}

// SuggestData feeds the llm2 user template.
type SuggestData struct {
	StructuredData string
	Summary        string
}

// Render loads the active version of the named template and expands it.
func (r *Renderer) Render(ctx context.Context, name string, data any) (Rendered, error) {
	tpl, err := r.source.GetActive(ctx, name)
	if err != nil {
		return Rendered{}, fmt.Errorf("load active prompt %s: %w", name, err)
	}
	parsed, err := template.New(name).Option("missingkey=error").Parse(tpl.Content)
	if err != nil {
		return Rendered{}, fmt.Errorf("parse prompt %s v%d: %w", name, tpl.Version, err)
	}
	var buf strings.Builder
	if err := parsed.Execute(&buf, data); err != nil {
		return Rendered{}, fmt.Errorf("render prompt %s v%d: %w", name, tpl.Version, err)
	}
	return Rendered{Name: tpl.Name, Version: tpl.Version, Text: buf.String()}, nil
}
