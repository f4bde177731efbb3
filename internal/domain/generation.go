package domain

import (
	"context"
	"fmt"
)

// Kind is the type of document a generation run produces.
type Kind string

const (
	// KindResume is a tailored résumé.
	KindResume Kind = "resume"
	// KindCoverLetter is a cover letter for a specific posting.
	KindCoverLetter Kind = "cover_letter"
	// KindColdEmail is a short cold-outreach email.
	KindColdEmail Kind = "cold_email"
)

// IsValid checks if the kind is supported.
func (k Kind) IsValid() bool {
	return k == KindResume || k == KindCoverLetter || k == KindColdEmail
}

var instructions = map[Kind]string{
	KindResume: "You rewrite the candidate's résumé so it targets the job description. " +
		"Keep every fact truthful and return plain text.",
	KindCoverLetter: "You write a one-page cover letter for the job description using only " +
		"facts from the candidate background.",
	KindColdEmail: "You write a cold-outreach email under 150 words to the hiring manager " +
		"for the job description, grounded in the candidate background.",
}

// Prompt is the provider-agnostic input of a generation run.
type Prompt struct {
	Kind           Kind
	System         string
	JobDescription string
	Background     string
	User           string
}

// NewPrompt builds the prompt for a kind.
func NewPrompt(kind Kind, jobDescription, background, user string) (Prompt, error) {
	if !kind.IsValid() {
		return Prompt{}, fmt.Errorf("unknown generation kind %q: %w", kind, ErrInvalidArgument)
	}
	if jobDescription == "" {
		return Prompt{}, fmt.Errorf("job description is required: %w", ErrInvalidArgument)
	}
	return Prompt{
		Kind:           kind,
		System:         instructions[kind],
		JobDescription: jobDescription,
		Background:     background,
		User:           user,
	}, nil
}

// Generation is the output of a single LLM run.
type Generation struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Generator is the LLM contract between layers.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (Generation, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
