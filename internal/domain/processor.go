package domain

import "context"

// BatchProcessor transitions every stored item into the processed state
type BatchProcessor interface {
	// ProcessAll processes all items concurrently and returns the ones that succeeded.
	// It fails only when the set of identifiers cannot be obtained.
	ProcessAll(ctx context.Context) (*BatchResult, error)
}

// WorkOutcome is the result of processing a single item identifier
type WorkOutcome struct {
	ID   int64
	Item *Item
	Err  error
}

// Success creates a successful outcome for the saved item
func Success(item *Item) WorkOutcome {
	return WorkOutcome{ID: item.ID, Item: item}
}

// Failure creates a failed outcome for the identifier
func Failure(id int64, err error) WorkOutcome {
	return WorkOutcome{ID: id, Err: err}
}

// Succeeded reports whether the outcome carries a processed item
func (o WorkOutcome) Succeeded() bool {
	return o.Err == nil && o.Item != nil
}

// BatchResult holds the items processed by one batch run.
// Items contains successes only; Failures lists the identifiers left out and why.
type BatchResult struct {
	Items    []*Item
	Failures []WorkOutcome
}

// Total returns the number of outcomes the run produced
func (r *BatchResult) Total() int {
	return len(r.Items) + len(r.Failures)
}
