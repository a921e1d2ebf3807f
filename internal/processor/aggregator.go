package processor

import "github.com/your-org/itemservice/internal/domain"

// Aggregate splits outcomes into processed items and failures.
// Any mix is a valid result, including one with no items at all.
func Aggregate(outcomes []domain.WorkOutcome) *domain.BatchResult {
	result := &domain.BatchResult{
		Items: make([]*domain.Item, 0, len(outcomes)),
	}

	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			result.Items = append(result.Items, outcome.Item)
			continue
		}
		result.Failures = append(result.Failures, outcome)
	}

	return result
}
