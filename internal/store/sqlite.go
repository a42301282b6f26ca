package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/jobscout/jobscout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	criteria      TEXT NOT NULL,
	source        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'in_progress',
	discovered    INTEGER NOT NULL DEFAULT 0,
	extracted     INTEGER NOT NULL DEFAULT 0,
	persisted     INTEGER NOT NULL DEFAULT 0,
	skipped       INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS organizations (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL,
	provenance     TEXT NOT NULL,
	profile_url    TEXT,
	overview       TEXT,
	evaluations    TEXT,
	review_summary TEXT,
	salaries       TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS postings (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	identity_hash   TEXT NOT NULL,
	title           TEXT NOT NULL,
	organization    TEXT NOT NULL,
	location        TEXT NOT NULL,
	url             TEXT,
	source          TEXT NOT NULL,
	external_id     TEXT,
	description     TEXT,
	verified_skills TEXT,
	required_skills TEXT,
	salary          TEXT,
	job_type        TEXT,
	remote_option   TEXT,
	easy_apply      INTEGER NOT NULL DEFAULT 0,
	posted_at       DATETIME,
	scraped_at      DATETIME NOT NULL,
	organization_id INTEGER REFERENCES organizations(id),
	session_id      INTEGER REFERENCES sessions(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_postings_identity_hash ON postings(identity_hash);
CREATE UNIQUE INDEX IF NOT EXISTS idx_organizations_name ON organizations(lower(name));
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_postings_session_id ON postings(session_id);
CREATE INDEX IF NOT EXISTS idx_postings_organization_id ON postings(organization_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSession(ctx context.Context, criteria model.SearchCriteria, source string) (*model.Session, error) {
	now := time.Now().UTC()

	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal criteria")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (criteria, source, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		string(criteriaJSON), source, string(model.SessionInProgress), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert session")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: session id")
	}

	return &model.Session{
		ID:        id,
		Criteria:  criteria,
		Source:    source,
		Status:    model.SessionInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, session *model.Session) error {
	criteriaJSON, err := json.Marshal(session.Criteria)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal criteria")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET criteria = ?, status = ?, discovered = ?, extracted = ?, persisted = ?, skipped = ?, error_message = ?, updated_at = ?
		 WHERE id = ?`,
		string(criteriaJSON), string(session.Status),
		session.Discovered, session.Extracted, session.Persisted, session.Skipped,
		nullString(session.ErrorMessage), now, session.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update session %d", session.ID)
	}
	session.UpdatedAt = now
	return checkSessionAffected(res, session.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, criteria, source, status, discovered, extracted, persisted, skipped, error_message, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		id,
	)
	return scanSession(row)
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, criteria, source, status, discovered, extracted, persisted, skipped, error_message, created_at, updated_at
	          FROM sessions WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) FindOrganizationByName(ctx context.Context, name string) (*model.Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, provenance, profile_url, overview, evaluations, review_summary, salaries, created_at, updated_at
		 FROM organizations WHERE lower(name) = lower(trim(?))`,
		name,
	)
	org, err := scanOrganization(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return org, nil
}

func (s *SQLiteStore) InsertOrganization(ctx context.Context, org model.Organization) (*model.Organization, error) {
	now := time.Now().UTC()

	detail, err := marshalOrgDetail(org)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO organizations (name, provenance, profile_url, overview, evaluations, review_summary, salaries, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.Name, string(org.Provenance), nullString(org.ProfileURL),
		detail.overview, detail.evaluations, detail.reviewSummary, detail.salaries,
		now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert organization %s", org.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: organization id")
	}

	org.ID = id
	org.CreatedAt = now
	org.UpdatedAt = now
	return &org, nil
}

func (s *SQLiteStore) UpdateOrganization(ctx context.Context, org model.Organization) error {
	detail, err := marshalOrgDetail(org)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE organizations SET provenance = ?, profile_url = ?, overview = ?, evaluations = ?, review_summary = ?, salaries = ?, updated_at = ?
		 WHERE id = ?`,
		string(org.Provenance), nullString(org.ProfileURL),
		detail.overview, detail.evaluations, detail.reviewSummary, detail.salaries,
		time.Now().UTC(), org.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update organization %d", org.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("organization not found: %d", org.ID)
	}
	return nil
}

func (s *SQLiteStore) InsertPosting(ctx context.Context, posting model.Posting) (*model.Posting, error) {
	skills, err := marshalPostingDetail(posting)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO postings
		 (identity_hash, title, organization, location, url, source, external_id, description,
		  verified_skills, required_skills, salary, job_type, remote_option, easy_apply,
		  posted_at, scraped_at, organization_id, session_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		posting.IdentityHash, posting.Title, posting.Organization, posting.Location,
		nullString(posting.URL), posting.Source, nullString(posting.ExternalID),
		nullString(posting.Description),
		skills.verified, skills.required, skills.salary,
		nullString(posting.JobType), nullString(posting.RemoteOption), posting.EasyApply,
		nullTime(posting.PostedAt), posting.ScrapedAt,
		nullInt64(posting.OrganizationID), nullInt64(posting.SessionID),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrDuplicatePosting
		}
		return nil, eris.Wrapf(err, "sqlite: insert posting %s", posting.IdentityHash)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: posting id")
	}

	posting.ID = id
	return &posting, nil
}

func (s *SQLiteStore) PostingExists(ctx context.Context, identityHash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM postings WHERE identity_hash = ?`,
		identityHash,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: posting exists")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ListPostings(ctx context.Context, filter PostingFilter) ([]model.Posting, error) {
	query := `SELECT id, identity_hash, title, organization, location, url, source, external_id, description,
	                 verified_skills, required_skills, salary, job_type, remote_option, easy_apply,
	                 posted_at, scraped_at, organization_id, session_id
	          FROM postings WHERE 1=1`
	var args []any

	if filter.SessionID > 0 {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	if filter.OrganizationID > 0 {
		query += ` AND organization_id = ?`
		args = append(args, filter.OrganizationID)
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list postings")
	}
	defer rows.Close()

	var postings []model.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		postings = append(postings, *p)
	}
	return postings, eris.Wrap(rows.Err(), "sqlite: list postings iterate")
}

func (s *SQLiteStore) CountPostings(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count postings")
}

// helpers

func checkSessionAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrSessionNotFound, "id %d", id)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullInt64(n *int64) any {
	if n == nil {
		return nil
	}
	return *n
}

type orgDetail struct {
	overview, evaluations, reviewSummary, salaries any
}

func marshalOrgDetail(org model.Organization) (orgDetail, error) {
	var d orgDetail
	var err error
	if d.overview, err = marshalUnlessZero(org.Overview, org.Overview.IsZero()); err != nil {
		return d, eris.Wrap(err, "marshal overview")
	}
	if d.evaluations, err = marshalUnlessZero(org.Evaluations, org.Evaluations.IsZero()); err != nil {
		return d, eris.Wrap(err, "marshal evaluations")
	}
	if d.reviewSummary, err = marshalUnlessZero(org.ReviewSummary, org.ReviewSummary.IsZero()); err != nil {
		return d, eris.Wrap(err, "marshal review summary")
	}
	if d.salaries, err = marshalUnlessZero(org.Salaries, len(org.Salaries) == 0); err != nil {
		return d, eris.Wrap(err, "marshal salaries")
	}
	return d, nil
}

func marshalUnlessZero(v any, zero bool) (any, error) {
	if zero {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

type postingDetail struct {
	verified, required, salary any
}

func marshalPostingDetail(p model.Posting) (postingDetail, error) {
	var d postingDetail
	var err error
	if d.verified, err = marshalUnlessZero(p.VerifiedSkills, len(p.VerifiedSkills) == 0); err != nil {
		return d, eris.Wrap(err, "marshal verified skills")
	}
	if d.required, err = marshalUnlessZero(p.RequiredSkills, len(p.RequiredSkills) == 0); err != nil {
		return d, eris.Wrap(err, "marshal required skills")
	}
	if d.salary, err = marshalUnlessZero(p.Salary, p.Salary == nil); err != nil {
		return d, eris.Wrap(err, "marshal salary")
	}
	return d, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSession(row scannable) (*model.Session, error) {
	var sess model.Session
	var criteriaJSON string
	var errMsg sql.NullString

	err := row.Scan(&sess.ID, &criteriaJSON, &sess.Source, &sess.Status,
		&sess.Discovered, &sess.Extracted, &sess.Persisted, &sess.Skipped,
		&errMsg, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrSessionNotFound, "sqlite")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan session")
	}

	if err := json.Unmarshal([]byte(criteriaJSON), &sess.Criteria); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal criteria")
	}
	sess.ErrorMessage = errMsg.String
	return &sess, nil
}

func scanOrganization(row scannable) (*model.Organization, error) {
	var org model.Organization
	var profileURL, overview, evaluations, reviewSummary, salaries sql.NullString

	err := row.Scan(&org.ID, &org.Name, &org.Provenance, &profileURL,
		&overview, &evaluations, &reviewSummary, &salaries,
		&org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(sql.ErrNoRows, "sqlite: organization")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan organization")
	}

	org.ProfileURL = profileURL.String
	for _, f := range []struct {
		raw  sql.NullString
		dest any
	}{
		{overview, &org.Overview},
		{evaluations, &org.Evaluations},
		{reviewSummary, &org.ReviewSummary},
		{salaries, &org.Salaries},
	} {
		if !f.raw.Valid {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw.String), f.dest); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal organization detail")
		}
	}
	return &org, nil
}

func scanPosting(row scannable) (*model.Posting, error) {
	var p model.Posting
	var url, externalID, description, verified, required, salary, jobType, remoteOption sql.NullString
	var postedAt sql.NullTime
	var orgID, sessionID sql.NullInt64

	err := row.Scan(&p.ID, &p.IdentityHash, &p.Title, &p.Organization, &p.Location,
		&url, &p.Source, &externalID, &description,
		&verified, &required, &salary, &jobType, &remoteOption, &p.EasyApply,
		&postedAt, &p.ScrapedAt, &orgID, &sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan posting")
	}

	p.URL = url.String
	p.ExternalID = externalID.String
	p.Description = description.String
	p.JobType = jobType.String
	p.RemoteOption = remoteOption.String
	if verified.Valid {
		if err := json.Unmarshal([]byte(verified.String), &p.VerifiedSkills); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal verified skills")
		}
	}
	if required.Valid {
		if err := json.Unmarshal([]byte(required.String), &p.RequiredSkills); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal required skills")
		}
	}
	if salary.Valid {
		p.Salary = &model.SalaryEstimate{}
		if err := json.Unmarshal([]byte(salary.String), p.Salary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal salary")
		}
	}
	if postedAt.Valid {
		t := postedAt.Time
		p.PostedAt = &t
	}
	if orgID.Valid {
		p.OrganizationID = &orgID.Int64
	}
	if sessionID.Valid {
		p.SessionID = &sessionID.Int64
	}
	return &p, nil
}
