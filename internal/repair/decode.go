package repair

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
)

// candidate is the tolerant intermediate form a record is decoded into
// before validation. It accepts the looser shapes the model actually emits:
// aliased keys, numbers as strings, ingredients as one comma-joined string,
// per-flag booleans instead of a flag list.
type candidate struct {
	mealType     string
	name         string
	description  string
	calories     *float64
	proteinG     *float64
	carbsG       *float64
	fatsG        *float64
	fiberG       *float64
	ingredients  []string
	instructions string
	flags        []string
}

var errNotARecord = errors.New("not a structured record")

// decodeCandidates strictly parses s as JSON: a single object, an array of
// objects, or an object wrapping the list under "meals"/"suggestions".
// Any syntax error fails the whole parse; tolerance here is about shape,
// not about broken syntax.
func decodeCandidates(s string) ([]candidate, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, errNotARecord
	}

	switch trimmed[0] {
	case '[':
		var list []candidate
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, err
		}
		return list, nil
	case '{':
		var wrapper struct {
			Meals       []candidate `json:"meals"`
			Suggestions []candidate `json:"suggestions"`
		}
		if err := json.Unmarshal([]byte(trimmed), &wrapper); err == nil {
			if len(wrapper.Meals) > 0 || len(wrapper.Suggestions) > 0 {
				return append(wrapper.Meals, wrapper.Suggestions...), nil
			}
		}

		var single candidate
		if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
			return nil, err
		}
		return []candidate{single}, nil
	default:
		return nil, errNotARecord
	}
}

func (c *candidate) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := make(map[string]json.RawMessage, len(raw))
	for key, value := range raw {
		fields[strings.ToLower(strings.TrimSpace(key))] = value
	}

	pick := func(keys ...string) (json.RawMessage, bool) {
		for _, key := range keys {
			if value, ok := fields[key]; ok {
				return value, true
			}
		}
		return nil, false
	}

	if value, ok := pick("meal_type", "mealtype", "meal"); ok {
		c.mealType = asString(value)
	}
	if value, ok := pick("name", "meal_name", "title"); ok {
		c.name = asString(value)
	}
	if value, ok := pick("description", "desc"); ok {
		c.description = asString(value)
	}
	if value, ok := pick("calories", "kcal"); ok {
		c.calories = asNumber(value)
	}
	if value, ok := pick("protein_g", "protein"); ok {
		c.proteinG = asNumber(value)
	}
	if value, ok := pick("carbs_g", "carbs", "carbohydrates_g", "carbohydrates"); ok {
		c.carbsG = asNumber(value)
	}
	if value, ok := pick("fats_g", "fat_g", "fats", "fat"); ok {
		c.fatsG = asNumber(value)
	}
	if value, ok := pick("fiber_g", "fiber"); ok {
		c.fiberG = asNumber(value)
	}
	if value, ok := pick("ingredients"); ok {
		c.ingredients = asStrings(value)
	}
	if value, ok := pick("instructions", "preparation", "recipe"); ok {
		c.instructions = asString(value)
	}
	if value, ok := pick("dietary_flags", "tags"); ok {
		c.flags = asStrings(value)
	}

	// Ordered so the output is deterministic for identical input.
	flagKeys := []struct {
		key  string
		flag models.DietaryFlag
	}{
		{"is_vegetarian", models.DietaryFlagVegetarian},
		{"is_vegan", models.DietaryFlagVegan},
		{"is_gluten_free", models.DietaryFlagGlutenFree},
		{"is_dairy_free", models.DietaryFlagDairyFree},
		{"is_low_calorie", models.DietaryFlagLowCalorie},
		{"is_high_protein", models.DietaryFlagHighProtein},
	}
	for _, entry := range flagKeys {
		if value, ok := fields[entry.key]; ok && asBool(value) {
			c.flags = append(c.flags, string(entry.flag))
		}
	}

	return nil
}

// toSuggestion normalizes the candidate and runs it through the validation
// gate; an error means the record is rejected.
func (c candidate) toSuggestion(fallbackMealType models.MealType) (*models.MealSuggestion, error) {
	mealType := normalizeMealType(c.mealType)
	if mealType == "" {
		mealType = fallbackMealType
	}

	flags := make([]models.DietaryFlag, 0, len(c.flags))
	seen := make(map[models.DietaryFlag]struct{}, len(c.flags))
	for _, flag := range c.flags {
		normalized := models.DietaryFlag(normalizeToken(flag))
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		flags = append(flags, normalized)
	}

	suggestion := &models.MealSuggestion{
		MealType:     mealType,
		Name:         strings.TrimSpace(c.name),
		Description:  strings.TrimSpace(c.description),
		Calories:     c.calories,
		ProteinG:     c.proteinG,
		CarbsG:       c.carbsG,
		FatsG:        c.fatsG,
		FiberG:       c.fiberG,
		Ingredients:  c.ingredients,
		Instructions: strings.TrimSpace(c.instructions),
		DietaryFlags: flags,
	}

	if err := suggestion.Validate(); err != nil {
		return nil, err
	}
	return suggestion, nil
}

// normalizeMealType folds the wider vocabulary older model prompts produced
// (morning_snack, evening snack, supper) onto the four canonical types.
// Anything unrecognized is returned as-is and rejected by validation.
func normalizeMealType(s string) models.MealType {
	token := normalizeToken(s)
	switch token {
	case "":
		return ""
	case "morning_snack", "afternoon_snack", "evening_snack", "snacks":
		return models.MealTypeSnack
	case "supper":
		return models.MealTypeDinner
	}
	return models.MealType(token)
}

func normalizeToken(s string) string {
	token := strings.ToLower(strings.TrimSpace(s))
	token = strings.ReplaceAll(token, " ", "_")
	token = strings.ReplaceAll(token, "-", "_")
	return token
}

func asString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// asNumber accepts a JSON number or a numeric string. Anything else is
// treated as absent; absence is representable and validation decides what is
// acceptable.
func asNumber(raw json.RawMessage) *float64 {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &parsed
		}
	}
	return nil
}

// asStrings accepts an array of strings or one comma-separated string.
func asStrings(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanStrings(list)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return cleanStrings(strings.Split(s, ","))
	}
	return nil
}

func cleanStrings(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}

func asBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.EqualFold(strings.TrimSpace(s), "true") || strings.TrimSpace(s) == "1"
	}
	return false
}
