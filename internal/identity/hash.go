// Package identity derives the deduplication token for a scraped posting and
// provides the name normalization shared with organization matching.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/jobscout/jobscout/internal/model"
)

// HashLen is the length of the identity token in hex characters.
const HashLen = 16

var multiSpaceRe = regexp.MustCompile(`\s+`)

// NormalizeName standardizes a name for matching by case-folding, trimming,
// and collapsing internal whitespace. "  GOOGLE " and "Google" normalize to
// the same string. A Caser is stateful and not safe for concurrent use, so
// each call gets its own.
func NormalizeName(s string) string {
	s = cases.Fold().String(strings.TrimSpace(s))
	return multiSpaceRe.ReplaceAllString(s, " ")
}

// Hash derives the identity token for a posting candidate.
//
// When the source assigned an external identifier the token is derived from
// source|external_id alone, so the same listing found under different URLs
// dedupes. Otherwise it falls back to the normalized
// title|organization|location|source tuple. The token is a truncated sha256
// digest; it is a uniqueness key, not a secret.
func Hash(c model.PostingCandidate) string {
	var key string
	if strings.TrimSpace(c.ExternalID) != "" {
		key = strings.TrimSpace(c.Source) + "|" + strings.TrimSpace(c.ExternalID)
	} else {
		key = strings.Join([]string{
			NormalizeName(c.Title),
			NormalizeName(c.Organization),
			NormalizeName(c.Location),
			NormalizeName(c.Source),
		}, "|")
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:HashLen]
}
