package model

import "time"

// SalaryEstimate is the advertised or estimated pay range on a posting.
type SalaryEstimate struct {
	Min      int    `json:"min,omitempty"`
	Max      int    `json:"max,omitempty"`
	Median   int    `json:"median,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// Posting is a validated job posting ready for persistence. IdentityHash is
// the deduplication token; the storage layer enforces its uniqueness.
type Posting struct {
	ID             int64           `json:"id"`
	IdentityHash   string          `json:"identity_hash"`
	Title          string          `json:"title"`
	Organization   string          `json:"organization"`
	Location       string          `json:"location"`
	URL            string          `json:"url,omitempty"`
	Source         string          `json:"source"`
	ExternalID     string          `json:"external_id,omitempty"`
	Description    string          `json:"description,omitempty"`
	VerifiedSkills []string        `json:"verified_skills,omitempty"`
	RequiredSkills []string        `json:"required_skills,omitempty"`
	Salary         *SalaryEstimate `json:"salary,omitempty"`
	JobType        string          `json:"job_type,omitempty"`
	RemoteOption   string          `json:"remote_option,omitempty"`
	EasyApply      bool            `json:"easy_apply,omitempty"`
	PostedAt       *time.Time      `json:"posted_at,omitempty"`
	ScrapedAt      time.Time       `json:"scraped_at"`
	OrganizationID *int64          `json:"organization_id,omitempty"`
	SessionID      *int64          `json:"session_id,omitempty"`
}
