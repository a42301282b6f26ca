// Package session tracks the lifecycle of one ingestion run. A session moves
// from in_progress to exactly one terminal state; after that its counters are
// frozen and further mutations are ignored.
package session

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/model"
	"github.com/jobscout/jobscout/internal/store"
)

// Tracker owns the persisted session row for a run. It is not safe for
// concurrent use; the engine drives it from a single goroutine.
type Tracker struct {
	store store.Store
	sess  *model.Session
}

// Begin persists a new in_progress session with the given criteria snapshot.
func Begin(ctx context.Context, st store.Store, criteria model.SearchCriteria, source string) (*Tracker, error) {
	sess, err := st.CreateSession(ctx, criteria, source)
	if err != nil {
		return nil, eris.Wrap(err, "session: begin")
	}
	zap.L().Info("session started",
		zap.Int64("session_id", sess.ID),
		zap.String("source", source),
		zap.String("query", criteria.Query))
	return &Tracker{store: st, sess: sess}, nil
}

// Load attaches a tracker to an existing session.
func Load(ctx context.Context, st store.Store, id int64) (*Tracker, error) {
	sess, err := st.GetSession(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "session: load %d", id)
	}
	return &Tracker{store: st, sess: sess}, nil
}

// Session returns a copy of the current session state.
func (t *Tracker) Session() model.Session {
	return *t.sess
}

// ID returns the session id.
func (t *Tracker) ID() int64 {
	return t.sess.ID
}

// Stats returns the run statistics as currently recorded.
func (t *Tracker) Stats() model.RunStats {
	return model.RunStats{
		SessionID:  t.sess.ID,
		Discovered: t.sess.Discovered,
		Extracted:  t.sess.Extracted,
		Persisted:  t.sess.Persisted,
		Skipped:    t.sess.Skipped,
	}
}

// SetDiscovered records the result-count reported by the search. Ignored
// with a warning once the session is terminal.
func (t *Tracker) SetDiscovered(ctx context.Context, n int) error {
	if t.guardTerminal("set discovered") {
		return nil
	}
	t.sess.Discovered = n
	return eris.Wrap(t.store.UpdateSession(ctx, t.sess), "session: set discovered")
}

// UpdateCriteria replaces the stored criteria snapshot, used when refinements
// are folded in after the base search.
func (t *Tracker) UpdateCriteria(ctx context.Context, criteria model.SearchCriteria) error {
	if t.guardTerminal("update criteria") {
		return nil
	}
	t.sess.Criteria = criteria
	return eris.Wrap(t.store.UpdateSession(ctx, t.sess), "session: update criteria")
}

// AddCounts accumulates extraction counters. Counters only grow; ignored with
// a warning once the session is terminal.
func (t *Tracker) AddCounts(ctx context.Context, extracted, persisted, skipped int) error {
	if t.guardTerminal("add counts") {
		return nil
	}
	t.sess.Extracted += extracted
	t.sess.Persisted += persisted
	t.sess.Skipped += skipped
	return eris.Wrap(t.store.UpdateSession(ctx, t.sess), "session: add counts")
}

// Complete moves the session to completed with its final counters. Effective
// at most once; later transitions are ignored with a warning.
func (t *Tracker) Complete(ctx context.Context, extracted, persisted, skipped int) error {
	if t.guardTerminal("complete") {
		return nil
	}
	t.sess.Status = model.SessionCompleted
	t.sess.Extracted = extracted
	t.sess.Persisted = persisted
	t.sess.Skipped = skipped
	if err := t.store.UpdateSession(ctx, t.sess); err != nil {
		return eris.Wrap(err, "session: complete")
	}
	zap.L().Info("session completed",
		zap.Int64("session_id", t.sess.ID),
		zap.Int("extracted", extracted),
		zap.Int("persisted", persisted),
		zap.Int("skipped", skipped))
	return nil
}

// Fail moves the session to failed with a reason. Effective at most once;
// later transitions are ignored with a warning.
func (t *Tracker) Fail(ctx context.Context, message string) error {
	if t.guardTerminal("fail") {
		return nil
	}
	t.sess.Status = model.SessionFailed
	t.sess.ErrorMessage = message
	if err := t.store.UpdateSession(ctx, t.sess); err != nil {
		return eris.Wrap(err, "session: fail")
	}
	zap.L().Warn("session failed",
		zap.Int64("session_id", t.sess.ID),
		zap.String("reason", message))
	return nil
}

func (t *Tracker) guardTerminal(op string) bool {
	if !t.sess.Status.Terminal() {
		return false
	}
	zap.L().Warn("ignoring mutation of terminal session",
		zap.Int64("session_id", t.sess.ID),
		zap.String("status", string(t.sess.Status)),
		zap.String("op", op))
	return true
}
