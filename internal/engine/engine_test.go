package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobscout/jobscout/internal/browse"
	"github.com/jobscout/jobscout/internal/control"
	"github.com/jobscout/jobscout/internal/model"
	"github.com/jobscout/jobscout/internal/store"
)

type fakeDriver struct {
	discovered        int
	refinedDiscovered int
	candidates        []model.PostingCandidate
	refinements       []browse.RefinementOption

	searchErr  error
	extractErr error

	extractCalls []int
	onExtract    func(index int)
}

func (f *fakeDriver) Source() string { return "glassdoor" }

func (f *fakeDriver) PerformBaseSearch(ctx context.Context, criteria model.SearchCriteria) (int, error) {
	if f.searchErr != nil {
		return 0, f.searchErr
	}
	return f.discovered, nil
}

func (f *fakeDriver) AvailableRefinements(ctx context.Context) ([]browse.RefinementOption, error) {
	return f.refinements, nil
}

func (f *fakeDriver) ApplyRefinements(ctx context.Context, r model.Refinements) (int, error) {
	return f.refinedDiscovered, nil
}

func (f *fakeDriver) ExtractAt(ctx context.Context, index int) (*model.PostingCandidate, error) {
	f.extractCalls = append(f.extractCalls, index)
	if f.onExtract != nil {
		f.onExtract(index)
	}
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	if index < 0 || index >= len(f.candidates) {
		return nil, browse.ErrEndOfResults
	}
	c := f.candidates[index]
	return &c, nil
}

// flakyStore fails the next n session updates, then behaves normally.
type flakyStore struct {
	store.Store
	updatesToFail int
}

func (f *flakyStore) UpdateSession(ctx context.Context, sess *model.Session) error {
	if f.updatesToFail > 0 {
		f.updatesToFail--
		return eris.New("connection lost")
	}
	return f.Store.UpdateSession(ctx, sess)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func candidate(n int) model.PostingCandidate {
	return model.PostingCandidate{
		Title:        fmt.Sprintf("Backend Engineer %d", n),
		Organization: "Acme",
		Location:     "Denver, CO",
		Source:       "glassdoor",
		ExternalID:   fmt.Sprintf("10000%d", n),
	}
}

func newTestEngine(st store.Store, drv browse.Driver) *Engine {
	return New(st, drv, control.NewSignal(0))
}

func TestStartZeroResultsCompletesImmediately(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{discovered: 0}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "cobol wizard", Location: "Nowhere"})
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Zero(t, res.Discovered)

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, sess.Status)
}

func TestStartRecordsDiscoveredAndRefinements(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{
		discovered:  40,
		refinements: []browse.RefinementOption{{Name: "date_posted", Values: []string{"last_week"}}},
	}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go developer"})
	require.NoError(t, err)
	assert.Equal(t, 40, res.Discovered)
	assert.False(t, res.Completed)
	require.Len(t, res.AvailableRefinements, 1)

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionInProgress, sess.Status)
	assert.Equal(t, 40, sess.Discovered)
	assert.Equal(t, "go developer", sess.Criteria.Query)
}

func TestStartSearchFailureFailsSession(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{searchErr: eris.New("sidecar unreachable")}
	eng := newTestEngine(st, drv)

	_, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.Error(t, err)

	sessions, err := st.ListSessions(context.Background(), store.SessionFilter{Status: model.SessionFailed})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Contains(t, sessions[0].ErrorMessage, "sidecar unreachable")
}

func TestRefineFoldsCriteriaAndRefreshesCount(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{discovered: 40, refinedDiscovered: 12}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go", Location: "Remote"})
	require.NoError(t, err)

	refined, err := eng.Refine(context.Background(), res.SessionID, model.Refinements{Remote: true, DatePosted: "last_week"})
	require.NoError(t, err)
	assert.Equal(t, 12, refined.Discovered)

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 12, sess.Discovered)
	assert.True(t, sess.Criteria.Remote)
	assert.Equal(t, "last_week", sess.Criteria.DatePosted)
	assert.Equal(t, "go", sess.Criteria.Query)
}

func TestRefineEmptyIsNoOp(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{discovered: 40}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)

	refined, err := eng.Refine(context.Background(), res.SessionID, model.Refinements{})
	require.NoError(t, err)
	assert.Equal(t, 40, refined.Discovered)
}

func TestRunPersistsAndCompletes(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{
		discovered: 3,
		candidates: []model.PostingCandidate{candidate(0), candidate(1), candidate(2)},
	}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), res.SessionID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Extracted)
	assert.Equal(t, 3, stats.Persisted)
	assert.Zero(t, stats.Skipped)

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, sess.Status)

	postings, err := st.ListPostings(context.Background(), store.PostingFilter{SessionID: res.SessionID})
	require.NoError(t, err)
	require.Len(t, postings, 3)
	require.NotNil(t, postings[0].OrganizationID)

	org, err := st.FindOrganizationByName(context.Background(), "Acme")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.Equal(t, *postings[0].OrganizationID, org.ID)
	assert.Equal(t, model.ProvenanceJobPosting, org.Provenance)
}

func TestRunSkipsDuplicates(t *testing.T) {
	st := newTestStore(t)

	dup := candidate(1)
	dup.Title = "Backend Engineer (repost)" // same external id, different card text
	drv := &fakeDriver{
		discovered: 5,
		candidates: []model.PostingCandidate{candidate(0), candidate(1), dup, candidate(1), candidate(4)},
	}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), res.SessionID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Extracted)
	assert.Equal(t, 3, stats.Persisted)
	assert.Equal(t, 2, stats.Skipped)

	n, err := st.CountPostings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRunCountsValidationRejections(t *testing.T) {
	st := newTestStore(t)

	bad := candidate(1)
	bad.Title = "   "
	drv := &fakeDriver{
		discovered: 3,
		candidates: []model.PostingCandidate{candidate(0), bad, candidate(2)},
	}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), res.SessionID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Extracted)
	assert.Equal(t, 2, stats.Persisted)
	assert.Equal(t, 1, stats.Skipped)

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, sess.Status)
}

func TestRunStopMidExtraction(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{
		discovered: 10,
		candidates: []model.PostingCandidate{
			candidate(0), candidate(1), candidate(2), candidate(3), candidate(4),
			candidate(5), candidate(6), candidate(7), candidate(8), candidate(9),
		},
	}
	eng := newTestEngine(st, drv)
	drv.onExtract = func(index int) {
		if index == 2 {
			eng.Stop()
		}
	}

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), res.SessionID, RunOptions{})
	require.NoError(t, err, "cancellation is an outcome, not an error")
	assert.Equal(t, 3, stats.Extracted, "partial statistics are preserved")
	assert.Zero(t, stats.Persisted)

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, sess.Status)
	assert.Equal(t, CancelledMessage, sess.ErrorMessage)
	assert.Equal(t, 3, sess.Extracted)
}

func TestStopDoesNotOutliveItsRun(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{
		discovered: 2,
		candidates: []model.PostingCandidate{candidate(0), candidate(1)},
	}
	eng := newTestEngine(st, drv)

	// Stop lands with no run in flight, then again after a stopped run.
	eng.Stop()

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)
	stats, err := eng.Run(context.Background(), res.SessionID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Persisted, "a stop issued before the run must not cancel it")

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, sess.Status)

	drv.onExtract = func(index int) { eng.Stop() }
	res2, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), res2.SessionID, RunOptions{})
	require.NoError(t, err)
	sess2, err := st.GetSession(context.Background(), res2.SessionID)
	require.NoError(t, err)
	require.Equal(t, model.SessionFailed, sess2.Status)

	drv.onExtract = nil
	res3, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)
	stats3, err := eng.Run(context.Background(), res3.SessionID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats3.Extracted, "a stopped run must not poison the next one")

	sess3, err := st.GetSession(context.Background(), res3.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, sess3.Status)
	assert.Empty(t, sess3.ErrorMessage)
}

func TestStartPersistenceFailureFailsSession(t *testing.T) {
	st := newTestStore(t)
	flaky := &flakyStore{Store: st, updatesToFail: 1}
	drv := &fakeDriver{discovered: 3}
	eng := newTestEngine(flaky, drv)

	_, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.Error(t, err)

	sessions, err := st.ListSessions(context.Background(), store.SessionFilter{Status: model.SessionFailed})
	require.NoError(t, err)
	require.Len(t, sessions, 1, "a session whose counters cannot be written must still finalize")
	assert.Contains(t, sessions[0].ErrorMessage, "connection lost")
}

func TestRunResumeOffsetAndMaxItems(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{
		discovered: 5,
		candidates: []model.PostingCandidate{candidate(0), candidate(1), candidate(2), candidate(3), candidate(4)},
	}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), res.SessionID, RunOptions{MaxItems: 2, ResumeOffset: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, drv.extractCalls, "extraction follows discovery order from the offset")
	assert.Equal(t, 2, stats.Extracted)
	assert.Equal(t, 2, stats.Persisted)
}

func TestRunUpgradesOrganizationFromProfile(t *testing.T) {
	st := newTestStore(t)

	// An earlier run left a posting-sourced record.
	_, err := st.InsertOrganization(context.Background(), model.Organization{
		Name:       "Acme",
		Provenance: model.ProvenanceJobPosting,
	})
	require.NoError(t, err)

	rich := candidate(0)
	rich.OrgDetail = &model.OrganizationCandidate{
		Name:       "Acme",
		Provenance: model.ProvenanceCompanyProfile,
		ProfileURL: "https://example.com/co/acme",
		Overview:   model.Overview{Size: "1001-5000", Industry: "Aerospace"},
	}
	drv := &fakeDriver{discovered: 1, candidates: []model.PostingCandidate{rich}}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), res.SessionID, RunOptions{})
	require.NoError(t, err)

	org, err := st.FindOrganizationByName(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.Equal(t, model.ProvenanceMerged, org.Provenance)
	assert.Equal(t, "Aerospace", org.Overview.Industry)
	assert.Equal(t, "https://example.com/co/acme", org.ProfileURL)
}

func TestRunLinksPostingWhenProfileNameDiffers(t *testing.T) {
	st := newTestStore(t)

	c := candidate(0)
	c.Organization = "Acme"
	c.OrgDetail = &model.OrganizationCandidate{
		Name:       "Acme Corporation", // profile pages often spell out the legal name
		Provenance: model.ProvenanceCompanyProfile,
		Overview:   model.Overview{Industry: "Aerospace"},
	}
	drv := &fakeDriver{discovered: 1, candidates: []model.PostingCandidate{c}}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), res.SessionID, RunOptions{})
	require.NoError(t, err)

	postings, err := st.ListPostings(context.Background(), store.PostingFilter{SessionID: res.SessionID})
	require.NoError(t, err)
	require.Len(t, postings, 1)
	require.NotNil(t, postings[0].OrganizationID, "posting must link through the card name alias")

	org, err := st.FindOrganizationByName(context.Background(), "Acme Corporation")
	require.NoError(t, err)
	require.NotNil(t, org)
	assert.Equal(t, org.ID, *postings[0].OrganizationID)
	assert.Equal(t, "Aerospace", org.Overview.Industry)
}

func TestRunExtractionFailureFailsSession(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{discovered: 3, extractErr: eris.New("sidecar crashed")}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "go"})
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), res.SessionID, RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, stats.Extracted)

	sess, err := st.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, model.SessionFailed, sess.Status)
	assert.Contains(t, sess.ErrorMessage, "sidecar crashed")
}

func TestRunUnknownSessionIsAnError(t *testing.T) {
	st := newTestStore(t)
	eng := newTestEngine(st, &fakeDriver{})

	_, err := eng.Run(context.Background(), 9999, RunOptions{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrSessionNotFound))
}

func TestRunTerminalSessionReturnsStats(t *testing.T) {
	st := newTestStore(t)
	drv := &fakeDriver{discovered: 0}
	eng := newTestEngine(st, drv)

	res, err := eng.Start(context.Background(), model.SearchCriteria{Query: "nothing"})
	require.NoError(t, err)

	stats, err := eng.Run(context.Background(), res.SessionID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, res.SessionID, stats.SessionID)
	assert.Empty(t, drv.extractCalls)
}
