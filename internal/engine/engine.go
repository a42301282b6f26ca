// Package engine orchestrates one ingestion run: base search, optional
// refinement, paced extraction through the validation gate, and ordered
// persistence with organization merging and duplicate skipping.
package engine

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jobscout/jobscout/internal/browse"
	"github.com/jobscout/jobscout/internal/control"
	"github.com/jobscout/jobscout/internal/identity"
	"github.com/jobscout/jobscout/internal/merge"
	"github.com/jobscout/jobscout/internal/model"
	"github.com/jobscout/jobscout/internal/session"
	"github.com/jobscout/jobscout/internal/store"
	"github.com/jobscout/jobscout/internal/validate"
)

// CancelledMessage is recorded on the session when a run ends because of a
// stop request or context cancellation rather than a fault.
const CancelledMessage = "cancelled by control signal"

// Engine drives ingestion runs against one browse driver and one store.
type Engine struct {
	store   store.Store
	driver  browse.Driver
	signal  *control.Signal
	limiter *rate.Limiter
}

// Option configures an Engine.
type Option func(*Engine)

// WithExtractionRate paces extraction calls at n per second. Zero or
// negative means unpaced.
func WithExtractionRate(n float64) Option {
	return func(e *Engine) {
		if n > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(n), 1)
		}
	}
}

// New creates an engine. The control signal is shared with whatever surface
// exposes pause/resume/stop.
func New(st store.Store, driver browse.Driver, signal *control.Signal, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		driver:  driver,
		signal:  signal,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pause suspends the active run at its next suspension point.
func (e *Engine) Pause() { e.signal.Pause() }

// Resume lifts a pause.
func (e *Engine) Resume() { e.signal.Resume() }

// Stop requests a graceful stop of the active run.
func (e *Engine) Stop() { e.signal.Stop() }

// StartResult is returned by Start.
type StartResult struct {
	SessionID            int64                     `json:"session_id"`
	Discovered           int                       `json:"discovered"`
	Completed            bool                      `json:"completed"`
	AvailableRefinements []browse.RefinementOption `json:"available_refinements,omitempty"`
}

// Start freezes the criteria onto a new session, performs the base search,
// and records the discovered count. A search with zero results completes the
// session immediately.
func (e *Engine) Start(ctx context.Context, criteria model.SearchCriteria) (*StartResult, error) {
	tracker, err := session.Begin(ctx, e.store, criteria, e.driver.Source())
	if err != nil {
		return nil, err
	}

	discovered, err := e.driver.PerformBaseSearch(ctx, criteria)
	if err != nil {
		e.fail(ctx, tracker, err)
		return nil, eris.Wrap(err, "engine: base search")
	}
	if err := tracker.SetDiscovered(ctx, discovered); err != nil {
		e.fail(ctx, tracker, err)
		return nil, err
	}

	if discovered == 0 {
		if err := tracker.Complete(ctx, 0, 0, 0); err != nil {
			return nil, err
		}
		return &StartResult{SessionID: tracker.ID(), Completed: true}, nil
	}

	// Refinement discovery is advisory; a failure here never fails the run.
	refinements, err := e.driver.AvailableRefinements(ctx)
	if err != nil {
		zap.L().Warn("refinement discovery failed",
			zap.Int64("session_id", tracker.ID()),
			zap.Error(err))
	}

	return &StartResult{
		SessionID:            tracker.ID(),
		Discovered:           discovered,
		AvailableRefinements: refinements,
	}, nil
}

// RefineResult is returned by Refine.
type RefineResult struct {
	SessionID  int64 `json:"session_id"`
	Discovered int   `json:"discovered"`
}

// Refine applies refinements to the session's search, refreshes the
// discovered count, and folds the refinements into the stored criteria
// snapshot.
func (e *Engine) Refine(ctx context.Context, sessionID int64, r model.Refinements) (*RefineResult, error) {
	tracker, err := session.Load(ctx, e.store, sessionID)
	if err != nil {
		return nil, err
	}
	sess := tracker.Session()
	if sess.Status.Terminal() {
		return nil, eris.Errorf("engine: session %d already %s", sessionID, sess.Status)
	}
	if r.Empty() {
		return &RefineResult{SessionID: sessionID, Discovered: sess.Discovered}, nil
	}

	discovered, err := e.driver.ApplyRefinements(ctx, r)
	if err != nil {
		e.fail(ctx, tracker, err)
		return nil, eris.Wrap(err, "engine: apply refinements")
	}

	criteria := sess.Criteria
	criteria.Apply(r)
	if err := tracker.UpdateCriteria(ctx, criteria); err != nil {
		e.fail(ctx, tracker, err)
		return nil, err
	}
	if err := tracker.SetDiscovered(ctx, discovered); err != nil {
		e.fail(ctx, tracker, err)
		return nil, err
	}

	zap.L().Info("refinements applied",
		zap.Int64("session_id", sessionID),
		zap.Int("discovered", discovered))
	return &RefineResult{SessionID: sessionID, Discovered: discovered}, nil
}

// RunOptions bounds a Run.
type RunOptions struct {
	// MaxItems caps how many results to process; zero or negative means all
	// discovered results.
	MaxItems int `json:"max_items,omitempty"`
	// ResumeOffset starts extraction at this position in discovery order.
	ResumeOffset int `json:"resume_offset,omitempty"`
}

// Run extracts, validates, and persists results for an existing session.
//
// Run always returns a statistics object. Expected scraping outcomes,
// including cancellation and infrastructure failure, are reported through
// the session's terminal status and error message; the returned error is
// non-nil only when the session id is unknown.
func (e *Engine) Run(ctx context.Context, sessionID int64, opts RunOptions) (model.RunStats, error) {
	tracker, err := session.Load(ctx, e.store, sessionID)
	if err != nil {
		return model.RunStats{}, err
	}
	if tracker.Session().Status.Terminal() {
		zap.L().Warn("run requested for terminal session",
			zap.Int64("session_id", sessionID),
			zap.String("status", string(tracker.Session().Status)))
		return tracker.Stats(), nil
	}

	// A stop or pause request applies to the run it interrupted, not to
	// later runs on the same engine.
	e.signal.Reset()

	acc, err := e.extract(ctx, tracker, opts)
	if err == nil {
		err = e.persist(ctx, tracker, acc)
	}
	if err != nil {
		// The session row must record the outcome even when the context that
		// caused the failure is already cancelled.
		writeCtx := context.WithoutCancel(ctx)
		e.recordPartial(writeCtx, tracker, acc)
		e.fail(writeCtx, tracker, err)
		return tracker.Stats(), nil
	}

	if err := tracker.Complete(ctx, acc.extracted, acc.persisted, acc.skipped); err != nil {
		zap.L().Error("finalize failed", zap.Int64("session_id", sessionID), zap.Error(err))
	}
	return tracker.Stats(), nil
}

// accumulator carries the in-memory results of the extraction phase into the
// persistence phase. Accumulated results survive pause and are never lost on
// stop; they are what the partial statistics are computed from.
type accumulator struct {
	postings []*model.Posting
	orgs     []*model.Organization
	orgIdx   map[string]int

	extracted int
	persisted int
	skipped   int
}

func newAccumulator() *accumulator {
	return &accumulator{orgIdx: map[string]int{}}
}

// noteOrganization accumulates one organization per normalized name,
// upgrading the in-memory record when a richer candidate arrives. The record
// is registered under both its own name and the posting card's organization
// name, which a profile page may spell differently; postings link through
// either alias.
func (a *accumulator) noteOrganization(postingName string, org *model.Organization) {
	keys := []string{identity.NormalizeName(org.Name)}
	if alias := identity.NormalizeName(postingName); alias != keys[0] {
		keys = append(keys, alias)
	}

	idx := -1
	for _, key := range keys {
		if i, ok := a.orgIdx[key]; ok {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = len(a.orgs)
		a.orgs = append(a.orgs, org)
	} else if decision, merged := merge.Resolve(a.orgs[idx], *org); decision == merge.MergeUpgrade {
		a.orgs[idx] = merged
	}
	for _, key := range keys {
		a.orgIdx[key] = idx
	}
}

func (e *Engine) extract(ctx context.Context, tracker *session.Tracker, opts RunOptions) (*accumulator, error) {
	acc := newAccumulator()
	sess := tracker.Session()

	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = sess.Discovered
	}

	for i := 0; i < maxItems; i++ {
		if err := e.signal.Check(ctx); err != nil {
			return acc, err
		}
		if err := e.limiter.Wait(ctx); err != nil {
			return acc, eris.Wrap(err, "engine: rate limit wait")
		}

		candidate, err := e.driver.ExtractAt(ctx, opts.ResumeOffset+i)
		if err != nil {
			if eris.Is(err, browse.ErrEndOfResults) {
				break
			}
			return acc, eris.Wrap(err, "engine: extract")
		}

		posting, err := validate.ValidatePosting(*candidate)
		if err != nil {
			var rej *validate.Rejection
			if errors.As(err, &rej) {
				zap.L().Debug("candidate rejected",
					zap.Int64("session_id", sess.ID),
					zap.Int("index", opts.ResumeOffset+i),
					zap.String("field", rej.Field),
					zap.String("reason", rej.Reason))
				acc.skipped++
				continue
			}
			return acc, eris.Wrap(err, "engine: validate posting")
		}
		posting.IdentityHash = identity.Hash(*candidate)
		acc.postings = append(acc.postings, posting)
		acc.extracted++

		acc.noteOrganization(posting.Organization, e.organizationFor(candidate, posting))
	}

	zap.L().Info("extraction finished",
		zap.Int64("session_id", sess.ID),
		zap.Int("extracted", acc.extracted),
		zap.Int("skipped", acc.skipped))
	return acc, nil
}

// organizationFor derives the organization record for a candidate: the
// validated profile detail when the sidecar captured one, otherwise a
// minimal posting-sourced record.
func (e *Engine) organizationFor(candidate *model.PostingCandidate, posting *model.Posting) *model.Organization {
	if candidate.OrgDetail != nil {
		if org, err := validate.ValidateOrganization(*candidate.OrgDetail); err == nil {
			return org
		}
		zap.L().Debug("organization detail rejected, keeping posting-sourced record",
			zap.String("organization", posting.Organization))
	}
	return &model.Organization{
		Name:       posting.Organization,
		Provenance: model.ProvenanceJobPosting,
	}
}

func (e *Engine) persist(ctx context.Context, tracker *session.Tracker, acc *accumulator) error {
	sessionID := tracker.ID()

	// Organizations first so postings can link to them.
	ids := make([]int64, len(acc.orgs))
	for i, org := range acc.orgs {
		if err := e.signal.Check(ctx); err != nil {
			return err
		}
		id, err := e.persistOrganization(ctx, org)
		if err != nil {
			return err
		}
		ids[i] = id
	}
	orgIDs := make(map[string]int64, len(acc.orgIdx))
	for key, i := range acc.orgIdx {
		orgIDs[key] = ids[i]
	}

	for _, posting := range acc.postings {
		if err := e.signal.Check(ctx); err != nil {
			return err
		}
		sid := sessionID
		posting.SessionID = &sid
		if id, ok := orgIDs[identity.NormalizeName(posting.Organization)]; ok {
			orgID := id
			posting.OrganizationID = &orgID
		}

		_, err := e.store.InsertPosting(ctx, *posting)
		switch {
		case err == nil:
			acc.persisted++
		case eris.Is(err, store.ErrDuplicatePosting):
			zap.L().Debug("duplicate posting skipped",
				zap.Int64("session_id", sessionID),
				zap.String("identity_hash", posting.IdentityHash))
			acc.skipped++
		default:
			return eris.Wrap(err, "engine: insert posting")
		}
	}
	return nil
}

func (e *Engine) persistOrganization(ctx context.Context, incoming *model.Organization) (int64, error) {
	existing, err := e.store.FindOrganizationByName(ctx, incoming.Name)
	if err != nil {
		return 0, eris.Wrap(err, "engine: find organization")
	}

	decision, record := merge.Resolve(existing, *incoming)
	switch decision {
	case merge.Insert:
		inserted, err := e.store.InsertOrganization(ctx, *record)
		if err != nil {
			return 0, eris.Wrap(err, "engine: insert organization")
		}
		return inserted.ID, nil
	case merge.MergeUpgrade:
		if err := e.store.UpdateOrganization(ctx, *record); err != nil {
			return 0, eris.Wrap(err, "engine: update organization")
		}
		zap.L().Info("organization upgraded",
			zap.String("name", record.Name),
			zap.String("provenance", string(record.Provenance)))
		return record.ID, nil
	default:
		return existing.ID, nil
	}
}

// recordPartial flushes accumulated counters before a failure transition so
// the partial statistics survive on the session row.
func (e *Engine) recordPartial(ctx context.Context, tracker *session.Tracker, acc *accumulator) {
	if acc == nil {
		return
	}
	if err := tracker.AddCounts(ctx, acc.extracted, acc.persisted, acc.skipped); err != nil {
		zap.L().Error("recording partial stats failed",
			zap.Int64("session_id", tracker.ID()),
			zap.Error(err))
	}
}

func (e *Engine) fail(ctx context.Context, tracker *session.Tracker, cause error) {
	message := eris.Cause(cause).Error()
	if eris.Is(cause, control.ErrStopped) || eris.Is(cause, context.Canceled) || eris.Is(cause, context.DeadlineExceeded) {
		message = CancelledMessage
	}
	if err := tracker.Fail(ctx, message); err != nil {
		zap.L().Error("failure transition failed",
			zap.Int64("session_id", tracker.ID()),
			zap.Error(err))
	}
}
