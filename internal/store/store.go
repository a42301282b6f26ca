package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/jobscout/jobscout/internal/model"
)

// ErrDuplicatePosting is returned by InsertPosting when the identity hash is
// already present. The unique index is authoritative; callers never do an
// exists-then-insert dance.
var ErrDuplicatePosting = eris.New("posting already exists")

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = eris.New("session not found")

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Status model.SessionStatus `json:"status,omitempty"`
	Source string              `json:"source,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// PostingFilter specifies criteria for listing postings.
type PostingFilter struct {
	SessionID      int64  `json:"session_id,omitempty"`
	OrganizationID int64  `json:"organization_id,omitempty"`
	Source         string `json:"source,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Offset         int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for the ingestion engine.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, criteria model.SearchCriteria, source string) (*model.Session, error)
	UpdateSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id int64) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error)

	// Organizations
	FindOrganizationByName(ctx context.Context, name string) (*model.Organization, error)
	InsertOrganization(ctx context.Context, org model.Organization) (*model.Organization, error)
	UpdateOrganization(ctx context.Context, org model.Organization) error

	// Postings
	InsertPosting(ctx context.Context, posting model.Posting) (*model.Posting, error)
	PostingExists(ctx context.Context, identityHash string) (bool, error)
	ListPostings(ctx context.Context, filter PostingFilter) ([]model.Posting, error)
	CountPostings(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
