package models

import (
	"errors"
	"fmt"
)

type MealType string

const (
	MealTypeBreakfast MealType = "breakfast"
	MealTypeLunch     MealType = "lunch"
	MealTypeDinner    MealType = "dinner"
	MealTypeSnack     MealType = "snack"
)

func (m MealType) Valid() bool {
	switch m {
	case MealTypeBreakfast, MealTypeLunch, MealTypeDinner, MealTypeSnack:
		return true
	}
	return false
}

type DietaryFlag string

const (
	DietaryFlagVegetarian  DietaryFlag = "vegetarian"
	DietaryFlagVegan       DietaryFlag = "vegan"
	DietaryFlagGlutenFree  DietaryFlag = "gluten_free"
	DietaryFlagDairyFree   DietaryFlag = "dairy_free"
	DietaryFlagLowCalorie  DietaryFlag = "low_calorie"
	DietaryFlagHighProtein DietaryFlag = "high_protein"
)

func (f DietaryFlag) Known() bool {
	switch f {
	case DietaryFlagVegetarian, DietaryFlagVegan, DietaryFlagGlutenFree,
		DietaryFlagDairyFree, DietaryFlagLowCalorie, DietaryFlagHighProtein:
		return true
	}
	return false
}

// MealSuggestion is a structured record recovered from model output.
// Nutrition facts are pointers: the model often omits them, and a missing
// value must stay distinguishable from an explicit zero.
type MealSuggestion struct {
	MealType      MealType      `json:"meal_type"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	Calories      *float64      `json:"calories,omitempty"`
	ProteinG      *float64      `json:"protein_g,omitempty"`
	CarbsG        *float64      `json:"carbs_g,omitempty"`
	FatsG         *float64      `json:"fats_g,omitempty"`
	FiberG        *float64      `json:"fiber_g,omitempty"`
	Ingredients   []string      `json:"ingredients"`
	Instructions  string        `json:"instructions"`
	DietaryFlags  []DietaryFlag `json:"dietary_flags"`
	LowConfidence bool          `json:"low_confidence,omitempty"`
}

var ErrInvalidMealSuggestion = errors.New("invalid meal suggestion")

// Validate enforces the schema every candidate record must pass, regardless
// of how it was recovered. Unknown dietary flags are removed; everything else
// that violates the schema rejects the whole record.
func (m *MealSuggestion) Validate() error {
	if !m.MealType.Valid() {
		return fmt.Errorf("%w: meal_type %q", ErrInvalidMealSuggestion, m.MealType)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMealSuggestion)
	}
	for _, field := range []struct {
		name  string
		value *float64
	}{
		{"calories", m.Calories},
		{"protein_g", m.ProteinG},
		{"carbs_g", m.CarbsG},
		{"fats_g", m.FatsG},
		{"fiber_g", m.FiberG},
	} {
		if field.value != nil && *field.value < 0 {
			return fmt.Errorf("%w: negative %s", ErrInvalidMealSuggestion, field.name)
		}
	}

	kept := m.DietaryFlags[:0]
	for _, flag := range m.DietaryFlags {
		if flag.Known() {
			kept = append(kept, flag)
		}
	}
	m.DietaryFlags = kept

	return nil
}
