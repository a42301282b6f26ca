package model

// SearchCriteria is the caller-supplied search input. A snapshot is frozen
// onto the session at run start; refinements applied later are folded back
// into the stored snapshot.
type SearchCriteria struct {
	Query             string `json:"query" yaml:"query"`
	Location          string `json:"location" yaml:"location"`
	PreferredLocation string `json:"preferred_location,omitempty" yaml:"preferred_location,omitempty"`

	// Refinement fields, optional.
	EasyApply  bool   `json:"easy_apply,omitempty" yaml:"easy_apply,omitempty"`
	Remote     bool   `json:"remote,omitempty" yaml:"remote,omitempty"`
	DatePosted string `json:"date_posted,omitempty" yaml:"date_posted,omitempty"`
	JobType    string `json:"job_type,omitempty" yaml:"job_type,omitempty"`
	MinRating  string `json:"min_rating,omitempty" yaml:"min_rating,omitempty"`
	SalaryMin  int    `json:"salary_min,omitempty" yaml:"salary_min,omitempty"`
	SalaryMax  int    `json:"salary_max,omitempty" yaml:"salary_max,omitempty"`
}

// Refinements narrows an already-performed search. Zero values mean
// "not requested"; a partial salary range (only one bound) is ignored.
type Refinements struct {
	EasyApply  bool   `json:"easy_apply,omitempty"`
	Remote     bool   `json:"remote,omitempty"`
	DatePosted string `json:"date_posted,omitempty"`
	JobType    string `json:"job_type,omitempty"`
	MinRating  string `json:"min_rating,omitempty"`
	SalaryMin  int    `json:"salary_min,omitempty"`
	SalaryMax  int    `json:"salary_max,omitempty"`
}

// Empty reports whether no refinement was requested.
func (r Refinements) Empty() bool {
	return r == Refinements{}
}

// Refinements extracts the refinement portion of the criteria. Basic search
// fields (query, location) are excluded; a salary range is only carried when
// both bounds are set.
func (c SearchCriteria) Refinements() Refinements {
	r := Refinements{
		EasyApply:  c.EasyApply,
		Remote:     c.Remote,
		DatePosted: c.DatePosted,
		JobType:    c.JobType,
		MinRating:  c.MinRating,
	}
	if c.SalaryMin > 0 && c.SalaryMax > 0 {
		r.SalaryMin = c.SalaryMin
		r.SalaryMax = c.SalaryMax
	}
	return r
}

// Apply folds refinements into the criteria snapshot.
func (c *SearchCriteria) Apply(r Refinements) {
	if r.EasyApply {
		c.EasyApply = true
	}
	if r.Remote {
		c.Remote = true
	}
	if r.DatePosted != "" {
		c.DatePosted = r.DatePosted
	}
	if r.JobType != "" {
		c.JobType = r.JobType
	}
	if r.MinRating != "" {
		c.MinRating = r.MinRating
	}
	if r.SalaryMin > 0 && r.SalaryMax > 0 {
		c.SalaryMin = r.SalaryMin
		c.SalaryMax = r.SalaryMax
	}
}
