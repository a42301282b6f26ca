package model

import "time"

// PostingCandidate is the raw posting shape handed over by the browse driver
// before validation. Every field is optional; the validation gate decides
// what is usable.
type PostingCandidate struct {
	Title          string          `json:"title,omitempty"`
	Organization   string          `json:"organization,omitempty"`
	Location       string          `json:"location,omitempty"`
	URL            string          `json:"url,omitempty"`
	Source         string          `json:"source,omitempty"`
	ExternalID     string          `json:"external_id,omitempty"`
	Description    string          `json:"description,omitempty"`
	VerifiedSkills []string        `json:"verified_skills,omitempty"`
	RequiredSkills []string        `json:"required_skills,omitempty"`
	Salary         *SalaryEstimate `json:"salary,omitempty"`
	JobType        string          `json:"job_type,omitempty"`
	RemoteOption   string          `json:"remote_option,omitempty"`
	EasyApply      bool            `json:"easy_apply,omitempty"`
	PostedAt       *time.Time      `json:"posted_at,omitempty"`
	CapturedAt     time.Time       `json:"captured_at,omitempty"`

	// Organization-side detail captured alongside the posting, if the
	// driver expanded the company card or profile page.
	OrgDetail *OrganizationCandidate `json:"org_detail,omitempty"`
}

// OrganizationCandidate is the raw organization shape handed over by the
// browse driver before validation.
type OrganizationCandidate struct {
	Name          string           `json:"name,omitempty"`
	Provenance    Provenance       `json:"provenance,omitempty"`
	ProfileURL    string           `json:"profile_url,omitempty"`
	Overview      Overview         `json:"overview,omitempty"`
	Evaluations   Evaluations      `json:"evaluations,omitempty"`
	ReviewSummary ReviewSummary    `json:"review_summary,omitempty"`
	Salaries      []SalarySnapshot `json:"salaries,omitempty"`
	CapturedAt    time.Time        `json:"captured_at,omitempty"`
}
