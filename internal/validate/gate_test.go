package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobscout/jobscout/internal/model"
)

func validPostingCandidate() model.PostingCandidate {
	return model.PostingCandidate{
		Title:        "Backend Engineer",
		Organization: "Acme",
		Location:     "Denver, CO",
		URL:          "https://example.com/job/123",
		Source:       "glassdoor",
	}
}

func TestValidatePosting(t *testing.T) {
	p, err := ValidatePosting(validPostingCandidate())
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", p.Title)
	assert.Equal(t, "Acme", p.Organization)
	assert.False(t, p.ScrapedAt.IsZero())
}

func TestValidatePostingRequiredFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.PostingCandidate)
		field  string
	}{
		{"missing title", func(c *model.PostingCandidate) { c.Title = "" }, "title"},
		{"blank title", func(c *model.PostingCandidate) { c.Title = "   " }, "title"},
		{"missing organization", func(c *model.PostingCandidate) { c.Organization = "" }, "organization"},
		{"missing location", func(c *model.PostingCandidate) { c.Location = "\t" }, "location"},
		{"missing source", func(c *model.PostingCandidate) { c.Source = "" }, "source"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validPostingCandidate()
			tc.mutate(&c)
			_, err := ValidatePosting(c)
			var rej *Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tc.field, rej.Field)
		})
	}
}

func TestValidatePostingURLScheme(t *testing.T) {
	c := validPostingCandidate()
	c.URL = "ftp://example.com/job/123"
	_, err := ValidatePosting(c)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "url", rej.Field)

	c.URL = ""
	_, err = ValidatePosting(c)
	require.NoError(t, err, "URL is optional")
}

func TestValidatePostingSalaryBounds(t *testing.T) {
	c := validPostingCandidate()
	c.Salary = &model.SalaryEstimate{Min: 150000, Max: 90000}
	_, err := ValidatePosting(c)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "salary", rej.Field)

	c.Salary = &model.SalaryEstimate{Min: 90000, Max: 150000, Currency: "USD"}
	p, err := ValidatePosting(c)
	require.NoError(t, err)
	require.NotNil(t, p.Salary)
	assert.Equal(t, 90000, p.Salary.Min)
}

func TestValidatePostingSkillDedup(t *testing.T) {
	c := validPostingCandidate()
	c.RequiredSkills = []string{" Go ", "SQL", "", "go", "Kubernetes", "sql "}
	p, err := ValidatePosting(c)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "SQL", "Kubernetes"}, p.RequiredSkills)
}

func TestValidatePostingKeepsCapturedAt(t *testing.T) {
	c := validPostingCandidate()
	c.CapturedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p, err := ValidatePosting(c)
	require.NoError(t, err)
	assert.Equal(t, c.CapturedAt, p.ScrapedAt)
}

func TestValidateOrganization(t *testing.T) {
	o, err := ValidateOrganization(model.OrganizationCandidate{
		Name:       " Acme ",
		Provenance: model.ProvenanceCompanyProfile,
		ProfileURL: "https://example.com/co/acme",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", o.Name)
	assert.Equal(t, model.ProvenanceCompanyProfile, o.Provenance)
}

func TestValidateOrganizationDefaultsProvenance(t *testing.T) {
	o, err := ValidateOrganization(model.OrganizationCandidate{Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, model.ProvenanceJobPosting, o.Provenance)
}

func TestValidateOrganizationRejections(t *testing.T) {
	_, err := ValidateOrganization(model.OrganizationCandidate{Name: "  "})
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "name", rej.Field)

	_, err = ValidateOrganization(model.OrganizationCandidate{Name: "Acme", Provenance: "wiki"})
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "provenance", rej.Field)

	_, err = ValidateOrganization(model.OrganizationCandidate{
		Name:     "Acme",
		Salaries: []model.SalarySnapshot{{Role: "SWE", Low: 200, High: 100}},
	})
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "salaries", rej.Field)
}
