package handlers

import (
	"strconv"

	"github.com/minhaz-42/FitWell-Using-Django/internal/models"
	"github.com/minhaz-42/FitWell-Using-Django/internal/services"
)

func buildPaginationMeta(limit, offset, total int) models.PaginationMeta {
	return models.PaginationMeta{
		Limit:  limit,
		Offset: offset,
		Total:  total,
	}
}

// clampPageLimit applies the service's pagination bounds before the limit is
// echoed back in response metadata, so the reported limit always matches the
// page size actually served.
func clampPageLimit(limit int) int {
	if limit <= 0 {
		return services.DefaultListLimit
	}
	if limit > services.MaxListLimit {
		return services.MaxListLimit
	}
	return limit
}

func parseNonNegativeInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
