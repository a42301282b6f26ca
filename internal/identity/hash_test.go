package identity

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobscout/jobscout/internal/model"
)

func TestHashLength(t *testing.T) {
	h := Hash(model.PostingCandidate{
		Title:        "Software Engineer",
		Organization: "Acme",
		Location:     "Remote",
		Source:       "glassdoor",
	})
	require.Len(t, h, HashLen)
}

func TestHashExternalIDPriority(t *testing.T) {
	a := Hash(model.PostingCandidate{
		Source:     "glassdoor",
		ExternalID: "1009876543",
		Title:      "Software Engineer",
		URL:        "https://example.com/job/1009876543?src=email",
	})
	b := Hash(model.PostingCandidate{
		Source:     "glassdoor",
		ExternalID: "1009876543",
		Title:      "Sr Software Engineer",
		URL:        "https://example.com/partner/job/1009876543",
	})
	assert.Equal(t, a, b, "same external id must hash identically regardless of URL or title")

	c := Hash(model.PostingCandidate{Source: "glassdoor", ExternalID: "1009876544"})
	assert.NotEqual(t, a, c)
}

func TestHashSourceScopesExternalID(t *testing.T) {
	a := Hash(model.PostingCandidate{Source: "glassdoor", ExternalID: "42"})
	b := Hash(model.PostingCandidate{Source: "indeed", ExternalID: "42"})
	assert.NotEqual(t, a, b)
}

func TestHashNormalizedTupleFallback(t *testing.T) {
	a := Hash(model.PostingCandidate{
		Title:        "  ml  engineer  ",
		Organization: " GOOGLE ",
		Location:     "Mountain View, CA",
		Source:       "glassdoor",
	})
	b := Hash(model.PostingCandidate{
		Title:        "ML Engineer",
		Organization: "Google",
		Location:     "mountain view, ca",
		Source:       "Glassdoor",
	})
	assert.Equal(t, a, b, "tuple hash must be case and whitespace insensitive")

	c := Hash(model.PostingCandidate{
		Title:        "ML Engineer",
		Organization: "Google",
		Location:     "New York, NY",
		Source:       "glassdoor",
	})
	assert.NotEqual(t, a, c)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "google", NormalizeName("  GOOGLE "))
	assert.Equal(t, "ml engineer", NormalizeName("  ml \t engineer  "))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestNormalizeNameConcurrent(t *testing.T) {
	want := NormalizeName("  ACME  Corporation ")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				assert.Equal(t, want, NormalizeName("  ACME  Corporation "))
			}
		}()
	}
	wg.Wait()
}
