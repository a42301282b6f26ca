// Package browse defines the contract with the browser-automation sidecar
// that performs the actual site interaction. Everything DOM-related lives on
// the far side of this interface; the engine only sees counts, refinement
// options, and extracted candidates.
package browse

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/jobscout/jobscout/internal/model"
)

// ErrEndOfResults is returned by ExtractAt when the index is past the last
// discovered result.
var ErrEndOfResults = eris.New("no result at index")

// RefinementOption is one refinement the sidecar reports as currently
// available, with the values it accepts.
type RefinementOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values,omitempty"`
}

// Driver is the outbound surface to the browsing sidecar. A driver holds the
// state of one search at a time; PerformBaseSearch resets it.
type Driver interface {
	// PerformBaseSearch runs the initial query and returns the number of
	// discovered results.
	PerformBaseSearch(ctx context.Context, criteria model.SearchCriteria) (int, error)

	// AvailableRefinements reports which refinements the current result page
	// offers.
	AvailableRefinements(ctx context.Context) ([]RefinementOption, error)

	// ApplyRefinements narrows the current search and returns the refreshed
	// discovered count.
	ApplyRefinements(ctx context.Context, r model.Refinements) (int, error)

	// ExtractAt extracts the candidate at the given position in discovery
	// order. Returns ErrEndOfResults past the last result.
	ExtractAt(ctx context.Context, index int) (*model.PostingCandidate, error)

	// Source names the job board this driver scrapes.
	Source() string
}
