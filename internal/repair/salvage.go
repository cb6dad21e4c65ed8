package repair

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
)

// Field salvage: when the document is beyond structural repair, pull the
// known fields out of the raw text by their labels. The result is a partial
// record and is marked low-confidence.
var (
	salvageNameRe     = regexp.MustCompile(`(?i)["']?\bname\b["']?\s*[:=]\s*["']?([^"'\n{}\[\]]+)`)
	salvageCaloriesRe = regexp.MustCompile(`(?i)\bcalories\b["']?\s*[:=]\s*["']?(-?[0-9]+(?:\.[0-9]+)?)`)
	salvageMealTypeRe = regexp.MustCompile(`(?i)\bmeal[_\s-]?type\b["']?\s*[:=]\s*["']?([a-zA-Z_\- ]+)`)
	salvageIngListRe  = regexp.MustCompile(`(?i)\bingredients\b["']?\s*[:=]\s*\[([^\]]*)\]`)
	salvageIngLineRe  = regexp.MustCompile(`(?i)\bingredients\b["']?\s*[:=]\s*["']?([^"\n{}\[\]]+)`)
	salvageQuotedRe   = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"|'([^']*)'`)
)

func (e Engine) salvage(text string) ([]models.MealSuggestion, bool) {
	name := salvageValue(salvageNameRe, text)
	if name == "" {
		return nil, false
	}

	suggestion := models.MealSuggestion{
		Name:          name,
		MealType:      e.FallbackMealType,
		LowConfidence: true,
	}

	if raw := salvageValue(salvageMealTypeRe, text); raw != "" {
		if mealType := normalizeMealType(raw); mealType.Valid() {
			suggestion.MealType = mealType
		}
	}

	if raw := salvageValue(salvageCaloriesRe, text); raw != "" {
		if calories, err := strconv.ParseFloat(raw, 64); err == nil {
			suggestion.Calories = &calories
		}
	}

	suggestion.Ingredients = salvageIngredients(text)

	if err := suggestion.Validate(); err != nil {
		return nil, false
	}
	return []models.MealSuggestion{suggestion}, true
}

func salvageValue(re *regexp.Regexp, text string) string {
	match := re.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	value := strings.TrimSpace(match[1])
	value = strings.TrimRight(value, `,"' `)
	return strings.TrimSpace(value)
}

func salvageIngredients(text string) []string {
	if match := salvageIngListRe.FindStringSubmatch(text); match != nil {
		items := salvageQuotedRe.FindAllStringSubmatch(match[1], -1)
		if len(items) > 0 {
			ingredients := make([]string, 0, len(items))
			for _, item := range items {
				value := item[1]
				if value == "" {
					value = item[2]
				}
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					ingredients = append(ingredients, trimmed)
				}
			}
			return ingredients
		}
		return cleanStrings(strings.Split(match[1], ","))
	}

	if match := salvageIngLineRe.FindStringSubmatch(text); match != nil {
		line := strings.TrimRight(strings.TrimSpace(match[1]), `,"' `)
		return cleanStrings(strings.Split(line, ","))
	}

	return nil
}
