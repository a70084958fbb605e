package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// SuggestionStatus tracks the review state of a user-submitted suggestion.
type SuggestionStatus string

const (
	SuggestionOpen     SuggestionStatus = "open"
	SuggestionPlanned  SuggestionStatus = "planned"
	SuggestionDone     SuggestionStatus = "done"
	SuggestionDeclined SuggestionStatus = "declined"
)

// ParseSuggestionStatus validates a caller-supplied status string.
func ParseSuggestionStatus(s string) (SuggestionStatus, error) {
	switch SuggestionStatus(s) {
	case SuggestionOpen, SuggestionPlanned, SuggestionDone, SuggestionDeclined:
		return SuggestionStatus(s), nil
	}
	return "", eris.Errorf("model: unknown suggestion status %q", s)
}

// Suggestion is a dashboard improvement idea submitted by an operator.
type Suggestion struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Body      string           `json:"body,omitempty"`
	Author    string           `json:"author,omitempty"`
	Status    SuggestionStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Validate checks the fields a caller must supply on create.
func (s Suggestion) Validate() error {
	if s.Title == "" {
		return eris.New("model: suggestion title is required")
	}
	return nil
}
