package model

import "time"

// Provenance records which kind of scrape produced an organization record.
// Profile-sourced data outranks posting-sourced data when records collide.
type Provenance string

const (
	ProvenanceJobPosting     Provenance = "job_posting"
	ProvenanceCompanyProfile Provenance = "company_profile"
	ProvenanceMerged         Provenance = "merged"
)

// Overview holds the descriptive facts scraped from a company profile page.
type Overview struct {
	Size     string `json:"size,omitempty"`
	Founded  string `json:"founded,omitempty"`
	Type     string `json:"type,omitempty"`
	Industry string `json:"industry,omitempty"`
	Sector   string `json:"sector,omitempty"`
	Revenue  string `json:"revenue,omitempty"`
}

// IsZero reports whether no overview field is populated.
func (o Overview) IsZero() bool {
	return o == Overview{}
}

// Evaluations holds aggregate employee evaluation figures.
type Evaluations struct {
	Rating      float64 `json:"rating,omitempty"`
	ReviewCount int     `json:"review_count,omitempty"`
}

// IsZero reports whether no evaluation figure is populated.
func (e Evaluations) IsZero() bool {
	return e == Evaluations{}
}

// ReviewItem is one recurring theme from employee reviews with how often it
// was mentioned.
type ReviewItem struct {
	Text     string `json:"text"`
	Mentions int    `json:"mentions,omitempty"`
}

// ReviewSummary is the pros/cons digest scraped from a company's review page.
type ReviewSummary struct {
	Pros []ReviewItem `json:"pros,omitempty"`
	Cons []ReviewItem `json:"cons,omitempty"`
}

// IsZero reports whether the summary carries no items.
func (r ReviewSummary) IsZero() bool {
	return len(r.Pros) == 0 && len(r.Cons) == 0
}

// SalarySnapshot is a role-level salary figure scraped from a company's
// salaries page.
type SalarySnapshot struct {
	Role     string `json:"role"`
	Median   int    `json:"median,omitempty"`
	Low      int    `json:"low,omitempty"`
	High     int    `json:"high,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Organization is a hiring company as assembled from one or more scrapes.
// A record that started life on a posting card may later be upgraded with
// profile-page data; Provenance tracks which happened.
type Organization struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Provenance    Provenance       `json:"provenance"`
	ProfileURL    string           `json:"profile_url,omitempty"`
	Overview      Overview         `json:"overview,omitempty"`
	Evaluations   Evaluations      `json:"evaluations,omitempty"`
	ReviewSummary ReviewSummary    `json:"review_summary,omitempty"`
	Salaries      []SalarySnapshot `json:"salaries,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
