package repository

import (
	"context"

	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
)

type MealSuggestionRepository struct {
	db DBTX
}

func NewMealSuggestionRepository(db DBTX) *MealSuggestionRepository {
	return &MealSuggestionRepository{db: db}
}

// CreateBatch attaches recovered suggestions to the assistant message that
// produced them.
func (r *MealSuggestionRepository) CreateBatch(
	ctx context.Context,
	messageID string,
	suggestions []models.MealSuggestion,
) error {
	query := `
		INSERT INTO meal_suggestions (
			message_id, meal_type, name, description,
			calories, protein_g, carbs_g, fats_g, fiber_g,
			ingredients, instructions, dietary_flags, low_confidence
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	for _, s := range suggestions {
		flags := make([]string, 0, len(s.DietaryFlags))
		for _, flag := range s.DietaryFlags {
			flags = append(flags, string(flag))
		}

		_, err := r.db.Exec(
			ctx,
			query,
			messageID,
			s.MealType,
			s.Name,
			s.Description,
			s.Calories,
			s.ProteinG,
			s.CarbsG,
			s.FatsG,
			s.FiberG,
			s.Ingredients,
			s.Instructions,
			flags,
			s.LowConfidence,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// ListByConversation returns suggestions for every message in the
// conversation, keyed by message id.
func (r *MealSuggestionRepository) ListByConversation(
	ctx context.Context,
	conversationID string,
) (map[string][]models.MealSuggestion, error) {
	query := `
		SELECT
			s.message_id, s.meal_type, s.name, s.description,
			s.calories, s.protein_g, s.carbs_g, s.fats_g, s.fiber_g,
			s.ingredients, s.instructions, s.dietary_flags, s.low_confidence
		FROM meal_suggestions s
		JOIN messages m ON m.id = s.message_id
		WHERE m.conversation_id = $1
		ORDER BY m.seq ASC, s.id ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byMessage := make(map[string][]models.MealSuggestion)
	for rows.Next() {
		var messageID string
		var suggestion models.MealSuggestion
		var flags []string

		if err := rows.Scan(
			&messageID,
			&suggestion.MealType,
			&suggestion.Name,
			&suggestion.Description,
			&suggestion.Calories,
			&suggestion.ProteinG,
			&suggestion.CarbsG,
			&suggestion.FatsG,
			&suggestion.FiberG,
			&suggestion.Ingredients,
			&suggestion.Instructions,
			&flags,
			&suggestion.LowConfidence,
		); err != nil {
			return nil, err
		}

		for _, flag := range flags {
			suggestion.DietaryFlags = append(suggestion.DietaryFlags, models.DietaryFlag(flag))
		}

		byMessage[messageID] = append(byMessage[messageID], suggestion)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return byMessage, nil
}
