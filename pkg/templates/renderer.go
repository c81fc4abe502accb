// Package templates provides prompt rendering for the generation pipeline.
// Prompt wording lives in embedded template files; the rest of the system
// treats rendered prompts as opaque strings.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// PromptData holds the data available to prompt templates.
type PromptData struct {
	// Section fields.
	SectionNumber   string
	SectionTitle    string
	Overview        string
	DurationMinutes float64
	TargetWords     int
	RawContent      string

	// Rolling continuity context from earlier sections.
	ContinuityContext string

	// Refinement inputs.
	DraftText     string
	Feedback      string
	HistoryDigest string

	// Whole-document inputs.
	DocumentText string

	Extra map[string]any
}

// PromptTemplate identifies one prompt template file.
type PromptTemplate string

const (
	// SectionGenerationTemplate produces the first draft of a section.
	SectionGenerationTemplate PromptTemplate = "section_generation.tpl.md"
	// SectionVerificationTemplate requests a structured quality check of one section.
	SectionVerificationTemplate PromptTemplate = "section_verification.tpl.md"
	// SectionImprovementTemplate requests a targeted rewrite of one section.
	SectionImprovementTemplate PromptTemplate = "section_improvement.tpl.md"
	// DocumentReviewTemplate requests a cross-section review of the whole script.
	DocumentReviewTemplate PromptTemplate = "document_review.tpl.md"
	// DocumentImprovementTemplate requests a cross-section rewrite of the whole script.
	DocumentImprovementTemplate PromptTemplate = "document_improvement.tpl.md"
)

// Renderer handles prompt template rendering.
type Renderer struct {
	templates map[PromptTemplate]*template.Template
}

// NewRenderer creates a renderer with all prompt templates parsed.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[PromptTemplate]*template.Template)}

	names := []PromptTemplate{
		SectionGenerationTemplate,
		SectionVerificationTemplate,
		SectionImprovementTemplate,
		DocumentReviewTemplate,
		DocumentImprovementTemplate,
	}

	for _, name := range names {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
		}).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(name PromptTemplate, data *PromptData) (string, error) {
	tmpl, exists := r.templates[name]
	if !exists {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// AvailableTemplates returns the names of all parsed templates.
func (r *Renderer) AvailableTemplates() []PromptTemplate {
	names := make([]PromptTemplate, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
