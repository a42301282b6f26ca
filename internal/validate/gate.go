// Package validate is the gate between raw driver candidates and typed model
// records. Everything past this gate is trusted by the engine and the store.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jobscout/jobscout/internal/model"
)

// Rejection describes why a candidate was refused. Rejections are expected
// outcomes of scraping; the engine counts them and moves on.
type Rejection struct {
	Field  string
	Reason string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected: %s %s", r.Field, r.Reason)
}

func reject(field, reason string) *Rejection {
	return &Rejection{Field: field, Reason: reason}
}

var check = validator.New(validator.WithRequiredStructEnabled())

// postingRules is the declarative part of the posting gate. Required text
// fields must be non-empty after trimming; URL fields must be http(s).
type postingRules struct {
	Title        string `validate:"required"`
	Organization string `validate:"required"`
	Location     string `validate:"required"`
	Source       string `validate:"required"`
	URL          string `validate:"omitempty,http_url"`
}

type organizationRules struct {
	Name       string `validate:"required"`
	ProfileURL string `validate:"omitempty,http_url"`
}

func firstViolation(err error) *Rejection {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return reject("candidate", "failed validation")
	}
	v := verrs[0]
	switch v.Tag() {
	case "required":
		return reject(strings.ToLower(v.Field()), "is required")
	case "http_url":
		return reject(strings.ToLower(v.Field()), "must be an http(s) URL")
	default:
		return reject(strings.ToLower(v.Field()), "is invalid")
	}
}

// ValidatePosting checks a driver candidate and returns the typed posting.
// The identity hash is assigned later by the engine. Never panics; a bad
// candidate comes back as a *Rejection.
func ValidatePosting(c model.PostingCandidate) (*model.Posting, error) {
	rules := postingRules{
		Title:        strings.TrimSpace(c.Title),
		Organization: strings.TrimSpace(c.Organization),
		Location:     strings.TrimSpace(c.Location),
		Source:       strings.TrimSpace(c.Source),
		URL:          strings.TrimSpace(c.URL),
	}
	if err := check.Struct(rules); err != nil {
		return nil, firstViolation(err)
	}

	var salary *model.SalaryEstimate
	if c.Salary != nil {
		if c.Salary.Min > 0 && c.Salary.Max > 0 && c.Salary.Min > c.Salary.Max {
			return nil, reject("salary", "lower bound exceeds upper bound")
		}
		s := *c.Salary
		salary = &s
	}

	scrapedAt := c.CapturedAt
	if scrapedAt.IsZero() {
		scrapedAt = now()
	}

	return &model.Posting{
		Title:          rules.Title,
		Organization:   rules.Organization,
		Location:       rules.Location,
		URL:            rules.URL,
		Source:         rules.Source,
		ExternalID:     strings.TrimSpace(c.ExternalID),
		Description:    strings.TrimSpace(c.Description),
		VerifiedSkills: dedupSkills(c.VerifiedSkills),
		RequiredSkills: dedupSkills(c.RequiredSkills),
		Salary:         salary,
		JobType:        strings.TrimSpace(c.JobType),
		RemoteOption:   strings.TrimSpace(c.RemoteOption),
		EasyApply:      c.EasyApply,
		PostedAt:       c.PostedAt,
		ScrapedAt:      scrapedAt,
	}, nil
}

// ValidateOrganization checks a driver candidate and returns the typed
// organization. An unset provenance defaults to job_posting, the weakest
// source.
func ValidateOrganization(c model.OrganizationCandidate) (*model.Organization, error) {
	rules := organizationRules{
		Name:       strings.TrimSpace(c.Name),
		ProfileURL: strings.TrimSpace(c.ProfileURL),
	}
	if err := check.Struct(rules); err != nil {
		return nil, firstViolation(err)
	}

	prov := c.Provenance
	switch prov {
	case "":
		prov = model.ProvenanceJobPosting
	case model.ProvenanceJobPosting, model.ProvenanceCompanyProfile, model.ProvenanceMerged:
	default:
		return nil, reject("provenance", "is invalid")
	}

	for _, s := range c.Salaries {
		if s.Low > 0 && s.High > 0 && s.Low > s.High {
			return nil, reject("salaries", "lower bound exceeds upper bound")
		}
	}

	return &model.Organization{
		Name:          rules.Name,
		Provenance:    prov,
		ProfileURL:    rules.ProfileURL,
		Overview:      c.Overview,
		Evaluations:   c.Evaluations,
		ReviewSummary: c.ReviewSummary,
		Salaries:      c.Salaries,
	}, nil
}

// dedupSkills trims entries, drops empties, and removes duplicates while
// preserving first-seen order.
func dedupSkills(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// now is stubbed in tests.
var now = time.Now
