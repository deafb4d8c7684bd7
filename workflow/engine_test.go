package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/ariebrainware/educe-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateChild_RoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		e := NewEngine(h.store)
		in := aya()

		child, err := e.CreateChild(context.Background(), parent, in)
		require.NoError(t, err)
		assert.NotEmpty(t, child.ID)

		got := readChild(t, h.store, child.ID)
		assert.Equal(t, in.Name, got.Name)
		assert.Equal(t, in.Age, got.Age)
		assert.Equal(t, in.Gender, got.Gender)
		assert.Equal(t, in.Interests, []string(got.Interests))
		assert.Equal(t, in.Notes, got.Notes)
		assert.Equal(t, model.ChildAvailable, got.Status)
		assert.Equal(t, parent.UserID, got.ParentID)
		assert.Nil(t, got.PsychologistID)
	})
}

func TestCreateChild_KeepsClientID(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		in := aya()
		in.ID = model.NewID()
		child, err := NewEngine(h.store).CreateChild(context.Background(), parent, in)
		require.NoError(t, err)
		assert.Equal(t, in.ID, child.ID)
	})
}

func TestCreateChild_Rejected(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		e := NewEngine(h.store)
		ctx := context.Background()

		_, err := e.CreateChild(ctx, parent, ChildInput{Name: "  ", Age: 8})
		assert.ErrorIs(t, err, ErrValidation)

		_, err = e.CreateChild(ctx, parent, ChildInput{Name: "Aya", Age: 0})
		assert.ErrorIs(t, err, ErrValidation)

		_, err = e.CreateChild(ctx, psychUser, aya())
		assert.ErrorIs(t, err, ErrAuthorization)

		long := aya()
		long.ID = model.NewID() + "-0"
		_, err = e.CreateChild(ctx, parent, long)
		assert.ErrorIs(t, err, ErrValidation)

		odd := aya()
		odd.ID = "aya/1"
		_, err = e.CreateChild(ctx, parent, odd)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestAssessmentLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		p := h.seed(t, sarah())

		child, err := e.CreateChild(ctx, parent, aya())
		require.NoError(t, err)
		requireProjected(t, h.store, child.ID, model.ChildAvailable)

		req, err := e.SelectPsychologist(ctx, parent, child.ID, p.ID, "")
		require.NoError(t, err)
		assert.Equal(t, model.RequestPending, req.Status)
		assert.Equal(t, "Assessment request for Aya (8 years old)", req.Message)
		requireProjected(t, h.store, child.ID, model.ChildPending)
		reqs := readRequests(t, h.store, child.ID)
		require.Len(t, reqs, 1)
		assert.Equal(t, 1, countRequests(reqs, model.RequestPending))
		assert.Equal(t, p.ID, *readChild(t, h.store, child.ID).PsychologistID)

		req, err = e.RespondToRequest(ctx, psychUser, req.ID, true, "")
		require.NoError(t, err)
		assert.Equal(t, model.RequestAccepted, req.Status)
		assert.NotNil(t, req.RespondedAt)
		requireProjected(t, h.store, child.ID, model.ChildAccepted)

		_, err = e.CanStartGames(ctx, parent, child.ID)
		require.NoError(t, err)

		result, err := e.SubmitGameResult(ctx, parent, child.ID, fiveAnswers())
		require.NoError(t, err)
		assert.Len(t, result.Answers, 5)
		assert.Equal(t, req.ID, result.RequestID)
		requireProjected(t, h.store, child.ID, model.ChildGamesCompleted)
		results := readResults(t, h.store, child.ID)
		require.Len(t, results, 1)
		assert.Len(t, results[0].Answers, 5)

		analysis, err := e.SubmitReport(ctx, psychUser, ReportInput{
			ChildID:        child.ID,
			PsychologistID: p.ID,
			Grade:          "3rd Grade",
			Scores:         model.Scores{IQScore: 112, VerbalReasoning: 80, Creativity: 90},
			Observations:   "Expressive and curious.",
		})
		require.NoError(t, err)
		assert.True(t, analysis.ReportGenerated)
		assert.Contains(t, analysis.Report, "Aya")
		assert.Contains(t, analysis.Report, "IQ score: 112")
		requireProjected(t, h.store, child.ID, model.ChildCompleted)

		reqs = readRequests(t, h.store, child.ID)
		require.Len(t, reqs, 1)
		assert.Equal(t, model.RequestCompleted, reqs[0].Status)
		assert.NotNil(t, reqs[0].ReportGeneratedAt)

		require.NoError(t, h.store.Atomic(ctx, func(tx Tx) error {
			stored, err := tx.AnalysisForRequest(req.ID)
			require.NoError(t, err)
			assert.True(t, stored.ReportGenerated)
			profile, err := tx.Psychologist(p.ID)
			require.NoError(t, err)
			assert.Equal(t, 101, profile.CompletedAssessments)
			return nil
		}))
	})
}

func TestSubmitReport_KeepsPsychologistText(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		p := h.seed(t, sarah())
		child, _ := acceptedChild(t, e, p)
		_, err := e.SubmitGameResult(ctx, parent, child.ID, fiveAnswers())
		require.NoError(t, err)

		analysis, err := e.SubmitReport(ctx, psychUser, ReportInput{ChildID: child.ID, Report: "Written by hand."})
		require.NoError(t, err)
		assert.Equal(t, "Written by hand.", analysis.Report)
		assert.Equal(t, []string{"drawing", "music"}, []string(analysis.Interests))
	})
}

func TestRejectReturnsChildToAvailable(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		p := h.seed(t, sarah())
		other := h.seed(t, michael())

		child, err := e.CreateChild(ctx, parent, aya())
		require.NoError(t, err)
		req, err := e.SelectPsychologist(ctx, parent, child.ID, p.ID, "")
		require.NoError(t, err)

		req, err = e.RespondToRequest(ctx, psychUser, req.ID, false, "unavailable")
		require.NoError(t, err)
		assert.Equal(t, model.RequestRejected, req.Status)
		assert.Equal(t, "unavailable", req.ResponseReason)
		requireProjected(t, h.store, child.ID, model.ChildAvailable)
		assert.Nil(t, readChild(t, h.store, child.ID).PsychologistID)

		// The child can be sent to a different psychologist.
		_, err = e.SelectPsychologist(ctx, parent, child.ID, other.ID, "")
		require.NoError(t, err)
		requireProjected(t, h.store, child.ID, model.ChildPending)
		reqs := readRequests(t, h.store, child.ID)
		assert.Equal(t, 1, countRequests(reqs, model.RequestPending))
		assert.Equal(t, 1, countRequests(reqs, model.RequestRejected))
	})
}

func TestSubmitGameResult_RequiresAccepted(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		p := h.seed(t, sarah())

		child, err := e.CreateChild(ctx, parent, aya())
		require.NoError(t, err)

		_, err = e.SubmitGameResult(ctx, parent, child.ID, fiveAnswers())
		require.ErrorIs(t, err, ErrPreconditionFailed)
		assert.Equal(t, msgNotApproved, Reason(err))
		assert.Empty(t, readResults(t, h.store, child.ID))
		requireProjected(t, h.store, child.ID, model.ChildAvailable)

		_, err = e.CanStartGames(ctx, parent, child.ID)
		assert.ErrorIs(t, err, ErrPreconditionFailed)

		_, err = e.SelectPsychologist(ctx, parent, child.ID, p.ID, "")
		require.NoError(t, err)
		_, err = e.SubmitGameResult(ctx, parent, child.ID, fiveAnswers())
		require.ErrorIs(t, err, ErrPreconditionFailed)
		assert.Empty(t, readResults(t, h.store, child.ID))
		requireProjected(t, h.store, child.ID, model.ChildPending)
	})
}

func TestSubmitGameResult_NotRetaken(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		child, _ := acceptedChild(t, e, h.seed(t, sarah()))

		_, err := e.SubmitGameResult(ctx, parent, child.ID, fiveAnswers())
		require.NoError(t, err)
		_, err = e.SubmitGameResult(ctx, parent, child.ID, fiveAnswers()[:1])
		require.ErrorIs(t, err, ErrPreconditionFailed)
		assert.Len(t, readResults(t, h.store, child.ID), 1)
	})
}

func TestSubmitGameResult_Validation(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		child, _ := acceptedChild(t, e, h.seed(t, sarah()))

		_, err := e.SubmitGameResult(ctx, parent, child.ID, nil)
		assert.ErrorIs(t, err, ErrValidation)
		_, err = e.SubmitGameResult(ctx, parent, child.ID, []model.Answer{{Question: "Which color?"}})
		assert.ErrorIs(t, err, ErrValidation)
		_, err = e.SubmitGameResult(ctx, otherParent, child.ID, fiveAnswers())
		assert.ErrorIs(t, err, ErrAuthorization)
		requireProjected(t, h.store, child.ID, model.ChildAccepted)
	})
}

func TestSelectPsychologist_Guards(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		p := h.seed(t, sarah())

		hidden := michael()
		hidden.Approved = false
		hidden = h.seed(t, hidden)

		busy := michael()
		busy.UserID = 102
		busy.Available = false
		busy = h.seed(t, busy)

		child, err := e.CreateChild(ctx, parent, aya())
		require.NoError(t, err)

		_, err = e.SelectPsychologist(ctx, parent, child.ID, hidden.ID, "")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = e.SelectPsychologist(ctx, parent, child.ID, busy.ID, "")
		assert.ErrorIs(t, err, ErrPreconditionFailed)
		_, err = e.SelectPsychologist(ctx, parent, child.ID, model.NewID(), "")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = e.SelectPsychologist(ctx, parent, model.NewID(), p.ID, "")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = e.SelectPsychologist(ctx, otherParent, child.ID, p.ID, "")
		assert.ErrorIs(t, err, ErrAuthorization)
		_, err = e.SelectPsychologist(ctx, psychUser, child.ID, p.ID, "")
		assert.ErrorIs(t, err, ErrAuthorization)
		_, err = e.SelectPsychologist(ctx, parent, "", p.ID, "")
		assert.ErrorIs(t, err, ErrValidation)
		assert.Empty(t, readRequests(t, h.store, child.ID))
		requireProjected(t, h.store, child.ID, model.ChildAvailable)

		_, err = e.SelectPsychologist(ctx, parent, child.ID, p.ID, "please")
		require.NoError(t, err)
		_, err = e.SelectPsychologist(ctx, parent, child.ID, p.ID, "again")
		assert.ErrorIs(t, err, ErrPreconditionFailed)
		assert.Len(t, readRequests(t, h.store, child.ID), 1)
	})
}

func TestRespondToRequest_Guards(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		p := h.seed(t, sarah())
		h.seed(t, michael())

		child, err := e.CreateChild(ctx, parent, aya())
		require.NoError(t, err)
		req, err := e.SelectPsychologist(ctx, parent, child.ID, p.ID, "")
		require.NoError(t, err)

		_, err = e.RespondToRequest(ctx, otherPsych, req.ID, true, "")
		assert.ErrorIs(t, err, ErrAuthorization)
		_, err = e.RespondToRequest(ctx, parent, req.ID, true, "")
		assert.ErrorIs(t, err, ErrAuthorization)
		_, err = e.RespondToRequest(ctx, Actor{UserID: 555, Role: model.RolePsychologist}, req.ID, true, "")
		assert.ErrorIs(t, err, ErrAuthorization)
		_, err = e.RespondToRequest(ctx, psychUser, model.NewID(), true, "")
		assert.ErrorIs(t, err, ErrNotFound)
		requireProjected(t, h.store, child.ID, model.ChildPending)

		_, err = e.RespondToRequest(ctx, psychUser, req.ID, true, "")
		require.NoError(t, err)
		_, err = e.RespondToRequest(ctx, psychUser, req.ID, false, "changed my mind")
		assert.ErrorIs(t, err, ErrPreconditionFailed)
		requireProjected(t, h.store, child.ID, model.ChildAccepted)
	})
}

func TestCancelRequest(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		p := h.seed(t, sarah())
		other := h.seed(t, michael())

		child, err := e.CreateChild(ctx, parent, aya())
		require.NoError(t, err)
		req, err := e.SelectPsychologist(ctx, parent, child.ID, p.ID, "")
		require.NoError(t, err)

		_, err = e.CancelRequest(ctx, otherParent, req.ID)
		assert.ErrorIs(t, err, ErrAuthorization)

		cancelled, err := e.CancelRequest(ctx, parent, req.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RequestCancelled, cancelled.Status)
		requireProjected(t, h.store, child.ID, model.ChildAvailable)

		_, err = e.CancelRequest(ctx, parent, req.ID)
		assert.ErrorIs(t, err, ErrPreconditionFailed)

		second, err := e.SelectPsychologist(ctx, parent, child.ID, other.ID, "")
		require.NoError(t, err)
		_, err = e.RespondToRequest(ctx, otherPsych, second.ID, true, "")
		require.NoError(t, err)
		_, err = e.CancelRequest(ctx, parent, second.ID)
		assert.ErrorIs(t, err, ErrPreconditionFailed)
		requireProjected(t, h.store, child.ID, model.ChildAccepted)
	})
}

func TestSubmitReport_Guards(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		p := h.seed(t, sarah())
		other := h.seed(t, michael())
		child, _ := acceptedChild(t, e, p)

		_, err := e.SubmitReport(ctx, psychUser, ReportInput{ChildID: child.ID})
		assert.ErrorIs(t, err, ErrPreconditionFailed)

		_, err = e.SubmitGameResult(ctx, parent, child.ID, fiveAnswers())
		require.NoError(t, err)

		_, err = e.SubmitReport(ctx, otherPsych, ReportInput{ChildID: child.ID})
		assert.ErrorIs(t, err, ErrAuthorization)
		_, err = e.SubmitReport(ctx, psychUser, ReportInput{ChildID: child.ID, PsychologistID: other.ID})
		assert.ErrorIs(t, err, ErrAuthorization)
		_, err = e.SubmitReport(ctx, psychUser, ReportInput{ChildID: child.ID, Scores: model.Scores{Openness: 140}})
		assert.ErrorIs(t, err, ErrValidation)
		_, err = e.SubmitReport(ctx, parent, ReportInput{ChildID: child.ID})
		assert.ErrorIs(t, err, ErrAuthorization)
		requireProjected(t, h.store, child.ID, model.ChildGamesCompleted)

		_, err = e.SubmitReport(ctx, psychUser, ReportInput{ChildID: child.ID})
		require.NoError(t, err)
		_, err = e.SubmitReport(ctx, psychUser, ReportInput{ChildID: child.ID})
		assert.ErrorIs(t, err, ErrPreconditionFailed)
		_, err = e.SelectPsychologist(ctx, parent, child.ID, p.ID, "")
		assert.ErrorIs(t, err, ErrPreconditionFailed)
	})
}

func TestListPsychologists_Visibility(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		seedRanking(t, h)

		visible, err := e.ListPsychologists(ctx, parent)
		require.NoError(t, err)
		require.Len(t, visible, 4)
		for _, p := range visible {
			assert.True(t, p.Approved, p.Name)
		}
		assert.Equal(t, []string{"A", "B", "C", "D"}, names(visible))

		all, err := e.ListPsychologists(ctx, admin)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})
}

func TestListPsychologists_StoresAgree(t *testing.T) {
	g := newGormHarness(t)
	m := newMemoryHarness(t)
	for _, p := range rankingFixture() {
		p.ID = model.NewID()
		g.seed(t, p)
		m.seed(t, p)
	}

	for _, actor := range []Actor{parent, admin} {
		fromDB, err := NewEngine(g.store).ListPsychologists(context.Background(), actor)
		require.NoError(t, err)
		fromMirror, err := NewEngine(m.store).ListPsychologists(context.Background(), actor)
		require.NoError(t, err)
		assert.Equal(t, ids(fromDB), ids(fromMirror))
	}
}

func TestSelectPsychologist_ConcurrentSelectionsOpenOneRequest(t *testing.T) {
	h := newMemoryHarness(t)
	ctx := context.Background()
	e := NewEngine(h.store)
	p := h.seed(t, sarah())
	child, err := e.CreateChild(ctx, parent, aya())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.SelectPsychologist(ctx, parent, child.ID, p.ID, ""); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Len(t, readRequests(t, h.store, child.ID), 1)
	requireProjected(t, h.store, child.ID, model.ChildPending)
}

func TestTransition_LostRaceWritesNothing(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		p := h.seed(t, sarah())
		child, req := pendingChild(t, NewEngine(h.store), p)

		// Another tab cancels between the engine's read and its write.
		racing := &racingStore{inner: h.store}
		_, err := NewEngine(racing).RespondToRequest(ctx, psychUser, req.ID, true, "")
		require.ErrorIs(t, err, ErrConflict)

		reqs := readRequests(t, h.store, child.ID)
		require.Len(t, reqs, 1)
		assert.Equal(t, model.RequestPending, reqs[0].Status)
		assert.Nil(t, reqs[0].RespondedAt)
		requireProjected(t, h.store, child.ID, model.ChildPending)
	})
}

func TestReconcile_RepairsDrift(t *testing.T) {
	forEachStore(t, func(t *testing.T, h harness) {
		ctx := context.Background()
		e := NewEngine(h.store)
		p := h.seed(t, sarah())
		child, _ := pendingChild(t, e, p)

		require.NoError(t, h.store.Atomic(ctx, func(tx Tx) error {
			return tx.TransitionChild(child.ID, model.ChildPending, model.ChildGamesCompleted, nil)
		}))

		repaired, err := e.Reconcile(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ChildPending, repaired.Status)
		requireProjected(t, h.store, child.ID, model.ChildPending)

		unchanged, err := e.Reconcile(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ChildPending, unchanged.Status)
	})
}

func pendingChild(t *testing.T, e *Engine, p model.Psychologist) (model.Child, model.AssessmentRequest) {
	t.Helper()
	ctx := context.Background()
	child, err := e.CreateChild(ctx, parent, aya())
	require.NoError(t, err)
	req, err := e.SelectPsychologist(ctx, parent, child.ID, p.ID, "")
	require.NoError(t, err)
	return child, req
}

func acceptedChild(t *testing.T, e *Engine, p model.Psychologist) (model.Child, model.AssessmentRequest) {
	t.Helper()
	child, req := pendingChild(t, e, p)
	req, err := e.RespondToRequest(context.Background(), psychUser, req.ID, true, "")
	require.NoError(t, err)
	return child, req
}

func rankingFixture() []model.Psychologist {
	return []model.Psychologist{
		{UserID: 11, Name: "C", Title: "t", Rating: 4.5, CompletedAssessments: 10, Approved: true, Available: true},
		{UserID: 12, Name: "Hidden", Title: "t", Rating: 5.0, CompletedAssessments: 500, Approved: false},
		{UserID: 13, Name: "A", Title: "t", Rating: 4.9, CompletedAssessments: 1, Approved: true},
		{UserID: 14, Name: "D", Title: "t", Rating: 4.5, CompletedAssessments: 3, Approved: true},
		{UserID: 15, Name: "B", Title: "t", Rating: 4.5, CompletedAssessments: 50, Approved: true},
	}
}

func seedRanking(t *testing.T, h harness) {
	for _, p := range rankingFixture() {
		h.seed(t, p)
	}
}

func names(list []model.Psychologist) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.Name
	}
	return out
}

func ids(list []model.Psychologist) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.ID
	}
	return out
}

// racingStore lets a competing writer cancel the request right before the
// engine moves the child.
type racingStore struct {
	inner Store
}

func (s *racingStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	return s.inner.Atomic(ctx, func(tx Tx) error {
		return fn(&racingTx{Tx: tx})
	})
}

type racingTx struct {
	Tx
	raced bool
}

func (t *racingTx) TransitionChild(childID string, from, to model.ChildStatus, psychologistID *string) error {
	if !t.raced {
		t.raced = true
		if err := t.Tx.TransitionChild(childID, model.ChildPending, model.ChildAvailable, nil); err != nil {
			return err
		}
	}
	return t.Tx.TransitionChild(childID, from, to, psychologistID)
}
