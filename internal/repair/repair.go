// Package repair recovers structured meal suggestions from model-generated
// text that is expected to contain JSON but frequently is not quite JSON.
//
// Recovery runs an ordered chain of strategies, first success wins:
//
//  1. strict parse of the whole text
//  2. boundary extraction of the outermost balanced JSON span
//  3. a fixed pass of syntactic repairs on that span
//  4. label-anchored salvage of individual fields
//
// Every candidate, no matter which strategy produced it, passes the same
// schema validation; invalid records are dropped one by one, never patched
// into a nearby valid value. The engine is pure: same input, same output.
package repair

import (
	"errors"
	"strings"

	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
)

type Strategy string

const (
	StrategyStrict    Strategy = "strict"
	StrategyBoundary  Strategy = "boundary"
	StrategySyntactic Strategy = "syntactic"
	StrategySalvage   Strategy = "salvage"
)

// ErrRepairFailed signals that no record could be recovered. The returned
// error is a *FailedError carrying the original text for diagnostics.
var ErrRepairFailed = errors.New("no structured records recoverable from model text")

type FailedError struct {
	// Text is the original model output, unmodified.
	Text string
}

func (e *FailedError) Error() string {
	return ErrRepairFailed.Error()
}

func (e *FailedError) Unwrap() error {
	return ErrRepairFailed
}

type Result struct {
	Suggestions []models.MealSuggestion
	// Strategy that produced the accepted records.
	Strategy Strategy
	// Dropped counts candidates that parsed but failed schema validation.
	Dropped int
}

// Engine extracts meal suggestions from raw model text.
//
// The zero value is ready to use. FallbackMealType fills meal_type when the
// model omitted it and the caller knows which meal was requested; it is
// caller-sourced context, never an invented value.
type Engine struct {
	FallbackMealType models.MealType
}

// Extract runs the strategy chain over text. On exhaustion it returns a
// *FailedError wrapping ErrRepairFailed; it never fabricates records.
func (e Engine) Extract(text string) (*Result, error) {
	cleaned := stripFences(strings.TrimSpace(text))

	if suggestions, dropped, ok := e.decode(cleaned); ok {
		return &Result{Suggestions: suggestions, Strategy: StrategyStrict, Dropped: dropped}, nil
	}

	span, balanced := structuredSpan(cleaned)
	if span != "" {
		if balanced {
			if suggestions, dropped, ok := e.decode(span); ok {
				return &Result{Suggestions: suggestions, Strategy: StrategyBoundary, Dropped: dropped}, nil
			}
		}
		if suggestions, dropped, ok := e.decode(applyFixes(span)); ok {
			return &Result{Suggestions: suggestions, Strategy: StrategySyntactic, Dropped: dropped}, nil
		}
	}

	if suggestions, ok := e.salvage(text); ok {
		return &Result{Suggestions: suggestions, Strategy: StrategySalvage}, nil
	}

	return nil, &FailedError{Text: text}
}

// decode parses s into candidates and pushes each through the validation
// gate. ok is false when nothing parses or every candidate is rejected.
func (e Engine) decode(s string) ([]models.MealSuggestion, int, bool) {
	candidates, err := decodeCandidates(s)
	if err != nil || len(candidates) == 0 {
		return nil, 0, false
	}

	suggestions := make([]models.MealSuggestion, 0, len(candidates))
	dropped := 0
	for _, candidate := range candidates {
		suggestion, err := candidate.toSuggestion(e.FallbackMealType)
		if err != nil {
			dropped++
			continue
		}
		suggestions = append(suggestions, *suggestion)
	}

	if len(suggestions) == 0 {
		return nil, dropped, false
	}
	return suggestions, dropped, true
}

// stripFences removes a surrounding markdown code fence, which local models
// add even when told not to.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}

	body := strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		// Drop the info string (```json).
		body = body[idx+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
