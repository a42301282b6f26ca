// Package merge decides what happens when an incoming organization record
// collides with one already stored. The outcome is a function of the two
// records' provenance only; profile-sourced data outranks posting-sourced
// data, and a merge never blanks a populated field.
package merge

import "github.com/jobscout/jobscout/internal/model"

// Decision is the resolver's verdict for an incoming organization.
type Decision int

const (
	// Insert stores the incoming record as new.
	Insert Decision = iota
	// Ignore keeps the existing record untouched.
	Ignore
	// MergeUpgrade updates the existing record with data from the incoming
	// one per the merge rules.
	MergeUpgrade
)

func (d Decision) String() string {
	switch d {
	case Insert:
		return "insert"
	case Ignore:
		return "ignore"
	case MergeUpgrade:
		return "merge_upgrade"
	default:
		return "unknown"
	}
}

type pair struct {
	existing, incoming model.Provenance
}

// mergeMode selects which fields a MergeUpgrade may touch.
type mergeMode int

const (
	// fullUpgrade copies profile data onto a posting-sourced record and
	// promotes its provenance to merged.
	fullUpgrade mergeMode = iota
	// restrictedFill only fills fields the existing record lacks and leaves
	// provenance alone.
	restrictedFill
)

type verdict struct {
	decision Decision
	mode     mergeMode
}

// table is the exhaustive decision table keyed by (existing, incoming)
// provenance. Pairs involving an absent existing record are handled before
// the lookup.
var table = map[pair]verdict{
	{model.ProvenanceJobPosting, model.ProvenanceJobPosting}:     {decision: Ignore},
	{model.ProvenanceJobPosting, model.ProvenanceCompanyProfile}: {decision: MergeUpgrade, mode: fullUpgrade},
	{model.ProvenanceJobPosting, model.ProvenanceMerged}:         {decision: Ignore},

	{model.ProvenanceCompanyProfile, model.ProvenanceJobPosting}:     {decision: MergeUpgrade, mode: restrictedFill},
	{model.ProvenanceCompanyProfile, model.ProvenanceCompanyProfile}: {decision: Ignore},
	{model.ProvenanceCompanyProfile, model.ProvenanceMerged}:         {decision: Ignore},

	{model.ProvenanceMerged, model.ProvenanceJobPosting}:     {decision: MergeUpgrade, mode: restrictedFill},
	{model.ProvenanceMerged, model.ProvenanceCompanyProfile}: {decision: MergeUpgrade, mode: restrictedFill},
	{model.ProvenanceMerged, model.ProvenanceMerged}:         {decision: Ignore},
}

// Resolve returns the verdict for an incoming record against an existing one
// (nil when no record with that name exists yet) and, for Insert and
// MergeUpgrade, the record to write.
func Resolve(existing *model.Organization, incoming model.Organization) (Decision, *model.Organization) {
	if existing == nil {
		rec := incoming
		return Insert, &rec
	}

	v, ok := table[pair{existing.Provenance, incoming.Provenance}]
	if !ok {
		return Ignore, nil
	}

	switch v.decision {
	case MergeUpgrade:
		merged := apply(*existing, incoming, v.mode)
		return MergeUpgrade, &merged
	case Ignore:
		return Ignore, nil
	default:
		return v.decision, nil
	}
}

// apply produces the upgraded record. The existing record is the base; what
// the incoming one may contribute depends on the mode.
func apply(existing, incoming model.Organization, mode mergeMode) model.Organization {
	out := existing

	switch mode {
	case fullUpgrade:
		// Profile data is authoritative for overview and evaluations.
		if !incoming.Overview.IsZero() {
			out.Overview = incoming.Overview
		}
		if !incoming.Evaluations.IsZero() {
			out.Evaluations = incoming.Evaluations
		}
		out.Provenance = model.ProvenanceMerged
	case restrictedFill:
		if out.Overview.IsZero() {
			out.Overview = incoming.Overview
		}
		if out.Evaluations.IsZero() {
			out.Evaluations = incoming.Evaluations
		}
	}

	// Common fill-absent fields for both modes.
	if out.ProfileURL == "" {
		out.ProfileURL = incoming.ProfileURL
	}
	if out.ReviewSummary.IsZero() {
		out.ReviewSummary = incoming.ReviewSummary
	}
	if len(out.Salaries) == 0 {
		out.Salaries = incoming.Salaries
	}
	return out
}
