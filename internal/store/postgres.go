package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/jobscout/jobscout/internal/model"
)

// pgPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type pgPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool pgPool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool pgPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id            BIGSERIAL PRIMARY KEY,
	criteria      JSONB NOT NULL,
	source        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'in_progress',
	discovered    INTEGER NOT NULL DEFAULT 0,
	extracted     INTEGER NOT NULL DEFAULT 0,
	persisted     INTEGER NOT NULL DEFAULT 0,
	skipped       INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS organizations (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT NOT NULL,
	provenance     TEXT NOT NULL,
	profile_url    TEXT,
	overview       JSONB,
	evaluations    JSONB,
	review_summary JSONB,
	salaries       JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS postings (
	id              BIGSERIAL PRIMARY KEY,
	identity_hash   TEXT NOT NULL,
	title           TEXT NOT NULL,
	organization    TEXT NOT NULL,
	location        TEXT NOT NULL,
	url             TEXT,
	source          TEXT NOT NULL,
	external_id     TEXT,
	description     TEXT,
	verified_skills JSONB,
	required_skills JSONB,
	salary          JSONB,
	job_type        TEXT,
	remote_option   TEXT,
	easy_apply      BOOLEAN NOT NULL DEFAULT false,
	posted_at       TIMESTAMPTZ,
	scraped_at      TIMESTAMPTZ NOT NULL,
	organization_id BIGINT REFERENCES organizations(id),
	session_id      BIGINT REFERENCES sessions(id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_postings_identity_hash ON postings(identity_hash);
CREATE UNIQUE INDEX IF NOT EXISTS idx_organizations_name ON organizations(lower(name));
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_postings_session_id ON postings(session_id);
CREATE INDEX IF NOT EXISTS idx_postings_organization_id ON postings(organization_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateSession(ctx context.Context, criteria model.SearchCriteria, source string) (*model.Session, error) {
	now := time.Now().UTC()

	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal criteria")
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO sessions (criteria, source, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		criteriaJSON, source, string(model.SessionInProgress), now, now,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert session")
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

func (s *PostgresStore) UpdateSession(ctx context.Context, session *model.Session) error {
	criteriaJSON, err := json.Marshal(session.Criteria)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal criteria")
	}

	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET criteria = $1, status = $2, discovered = $3, extracted = $4, persisted = $5, skipped = $6, error_message = $7, updated_at = $8
		 WHERE id = $9`,
		criteriaJSON, string(session.Status),
		session.Discovered, session.Extracted, session.Persisted, session.Skipped,
		nullString(session.ErrorMessage), now, session.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update session %d", session.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrSessionNotFound, "id %d", session.ID)
	}
	session.UpdatedAt = now
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id int64) (*model.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, criteria, source, status, discovered, extracted, persisted, skipped, error_message, created_at, updated_at
		 FROM sessions WHERE id = $1`,
		id,
	)
	sess, err := scanPgSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrSessionNotFound, "id %d", id)
		}
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `SELECT id, criteria, source, status, discovered, extracted, persisted, skipped, error_message, created_at, updated_at
	          FROM sessions WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanPgSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) FindOrganizationByName(ctx context.Context, name string) (*model.Organization, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, provenance, profile_url, overview, evaluations, review_summary, salaries, created_at, updated_at
		 FROM organizations WHERE lower(name) = lower(trim($1))`,
		name,
	)
	org, err := scanPgOrganization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return org, nil
}

func (s *PostgresStore) InsertOrganization(ctx context.Context, org model.Organization) (*model.Organization, error) {
	now := time.Now().UTC()

	detail, err := marshalOrgDetail(org)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO organizations (name, provenance, profile_url, overview, evaluations, review_summary, salaries, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		org.Name, string(org.Provenance), nullString(org.ProfileURL),
		detail.overview, detail.evaluations, detail.reviewSummary, detail.salaries,
		now, now,
	).Scan(&id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert organization %s", org.Name)
	}

	org.ID = id
	org.CreatedAt = now
	org.UpdatedAt = now
	return &org, nil
}

func (s *PostgresStore) UpdateOrganization(ctx context.Context, org model.Organization) error {
	detail, err := marshalOrgDetail(org)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE organizations SET provenance = $1, profile_url = $2, overview = $3, evaluations = $4, review_summary = $5, salaries = $6, updated_at = $7
		 WHERE id = $8`,
		string(org.Provenance), nullString(org.ProfileURL),
		detail.overview, detail.evaluations, detail.reviewSummary, detail.salaries,
		time.Now().UTC(), org.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update organization %d", org.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("organization not found: %d", org.ID)
	}
	return nil
}

func (s *PostgresStore) InsertPosting(ctx context.Context, posting model.Posting) (*model.Posting, error) {
	detail, err := marshalPostingDetail(posting)
	if err != nil {
		return nil, err
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO postings
		 (identity_hash, title, organization, location, url, source, external_id, description,
		  verified_skills, required_skills, salary, job_type, remote_option, easy_apply,
		  posted_at, scraped_at, organization_id, session_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		 RETURNING id`,
		posting.IdentityHash, posting.Title, posting.Organization, posting.Location,
		nullString(posting.URL), posting.Source, nullString(posting.ExternalID),
		nullString(posting.Description),
		detail.verified, detail.required, detail.salary,
		nullString(posting.JobType), nullString(posting.RemoteOption), posting.EasyApply,
		nullTime(posting.PostedAt), posting.ScrapedAt,
		nullInt64(posting.OrganizationID), nullInt64(posting.SessionID),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicatePosting
		}
		return nil, eris.Wrapf(err, "postgres: insert posting %s", posting.IdentityHash)
	}

	posting.ID = id
	return &posting, nil
}

func (s *PostgresStore) PostingExists(ctx context.Context, identityHash string) (bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM postings WHERE identity_hash = $1`,
		identityHash,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrap(err, "postgres: posting exists")
	}
	return n > 0, nil
}

func (s *PostgresStore) ListPostings(ctx context.Context, filter PostingFilter) ([]model.Posting, error) {
	query := `SELECT id, identity_hash, title, organization, location, url, source, external_id, description,
	                 verified_skills, required_skills, salary, job_type, remote_option, easy_apply,
	                 posted_at, scraped_at, organization_id, session_id
	          FROM postings WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SessionID > 0 {
		query += fmt.Sprintf(` AND session_id = $%d`, argIdx)
		args = append(args, filter.SessionID)
		argIdx++
	}
	if filter.OrganizationID > 0 {
		query += fmt.Sprintf(` AND organization_id = $%d`, argIdx)
		args = append(args, filter.OrganizationID)
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	query += ` ORDER BY id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list postings")
	}
	defer rows.Close()

	var postings []model.Posting
	for rows.Next() {
		p, err := scanPgPosting(rows)
		if err != nil {
			return nil, err
		}
		postings = append(postings, *p)
	}
	return postings, eris.Wrap(rows.Err(), "postgres: list postings iterate")
}

func (s *PostgresStore) CountPostings(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM postings`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count postings")
}

// scan helpers

func scanPgSession(row scannable) (*model.Session, error) {
	var sess model.Session
	var criteriaJSON []byte
	var errMsg sql.NullString

	err := row.Scan(&sess.ID, &criteriaJSON, &sess.Source, &sess.Status,
		&sess.Discovered, &sess.Extracted, &sess.Persisted, &sess.Skipped,
		&errMsg, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan session")
	}

	if err := json.Unmarshal(criteriaJSON, &sess.Criteria); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal criteria")
	}
	sess.ErrorMessage = errMsg.String
	return &sess, nil
}

func scanPgOrganization(row scannable) (*model.Organization, error) {
	var org model.Organization
	var profileURL sql.NullString
	var overview, evaluations, reviewSummary, salaries []byte

	err := row.Scan(&org.ID, &org.Name, &org.Provenance, &profileURL,
		&overview, &evaluations, &reviewSummary, &salaries,
		&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan organization")
	}

	org.ProfileURL = profileURL.String
	for _, f := range []struct {
		raw  []byte
		dest any
	}{
		{overview, &org.Overview},
		{evaluations, &org.Evaluations},
		{reviewSummary, &org.ReviewSummary},
		{salaries, &org.Salaries},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal organization detail")
		}
	}
	return &org, nil
}

func scanPgPosting(row scannable) (*model.Posting, error) {
	var p model.Posting
	var url, externalID, description, jobType, remoteOption sql.NullString
	var verified, required, salary []byte
	var postedAt sql.NullTime
	var orgID, sessionID sql.NullInt64

	err := row.Scan(&p.ID, &p.IdentityHash, &p.Title, &p.Organization, &p.Location,
		&url, &p.Source, &externalID, &description,
		&verified, &required, &salary, &jobType, &remoteOption, &p.EasyApply,
		&postedAt, &p.ScrapedAt, &orgID, &sessionID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan posting")
	}

	p.URL = url.String
	p.ExternalID = externalID.String
	p.Description = description.String
	p.JobType = jobType.String
	p.RemoteOption = remoteOption.String
	if len(verified) > 0 {
		if err := json.Unmarshal(verified, &p.VerifiedSkills); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal verified skills")
		}
	}
	if len(required) > 0 {
		if err := json.Unmarshal(required, &p.RequiredSkills); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal required skills")
		}
	}
	if len(salary) > 0 {
		p.Salary = &model.SalaryEstimate{}
		if err := json.Unmarshal(salary, p.Salary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal salary")
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
