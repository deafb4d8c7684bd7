package endpoint_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/ariebrainware/educe-api/archive"
	"github.com/ariebrainware/educe-api/endpoint"
	"github.com/ariebrainware/educe-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flow struct {
	s      *testServer
	admin  account
	parent account
	psych  account
	child  model.Child
}

func newFlow(t *testing.T) *flow {
	s := setupTestServer(t)
	admin := s.admin()
	f := &flow{
		s:      s,
		admin:  admin,
		parent: s.register(model.RoleCustomer, "parent@example.com"),
		psych:  s.approvedPsychologist(admin, "sarah@example.com"),
	}
	f.child = s.createChild(f.parent, "Aya", 8)
	return f
}

func TestAssessmentLifecycle(t *testing.T) {
	f := newFlow(t)
	s := f.s
	assert.Equal(t, model.ChildAvailable, f.child.Status)

	req := f.s.selectPsychologist(f.parent, f.child.ID, f.psych.PsychologistID)
	assert.Equal(t, model.RequestPending, req.Status)
	assert.Equal(t, "Assessment request for Aya (8 years old)", req.Message)
	child := s.child(f.child.ID)
	assert.Equal(t, model.ChildPending, child.Status)
	require.NotNil(t, child.PsychologistID)
	assert.Equal(t, f.psych.PsychologistID, *child.PsychologistID)

	// Games cannot start before the psychologist accepts.
	rr, resp := s.call(http.MethodPost, "/api/game-sessions", f.parent.Token, map[string]string{"child_id": f.child.ID})
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
	assert.Equal(t, "assessment must be approved by the psychologist first", resp.Msg)

	// The psychologist sees the request with the child's name.
	resp = s.mustCall(http.StatusOK, http.MethodGet, "/api/assessment-requests", f.psych.Token, nil)
	assert.Contains(t, string(resp.Data), `"name":"Aya"`)

	s.respond(f.psych, req.ID, true, "")
	assert.Equal(t, model.ChildAccepted, s.child(f.child.ID).Status)

	result := s.playGames(f.parent, f.child.ID)
	assert.Len(t, result.Answers, s.catalog.Len())
	assert.Equal(t, req.ID, result.RequestID)
	assert.Equal(t, model.ChildGamesCompleted, s.child(f.child.ID).Status)

	// A result is never re-taken.
	rr, _ = s.call(http.MethodPost, "/api/game-results", f.parent.Token, map[string]interface{}{
		"child_id": f.child.ID,
		"answers":  []map[string]string{{"question": "q", "answer": "a", "category": "c"}},
	})
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)

	resp = s.mustCall(http.StatusCreated, http.MethodPost, "/api/ai-analysis", f.psych.Token, map[string]interface{}{
		"child_id":        f.child.ID,
		"psychologist_id": f.psych.PsychologistID,
		"grade":           "Grade 3",
		"iq_score":        115,
		"creativity":      80,
		"observations":    "Curious and focused.",
	})
	var analysis model.AIAnalysis
	decode(t, resp, &analysis)
	assert.True(t, analysis.ReportGenerated)
	assert.Contains(t, analysis.Report, "Aya")
	assert.Contains(t, analysis.Report, "IQ score: 115")
	assert.Equal(t, archive.Key(analysis), analysis.ArchiveKey)
	require.Len(t, s.archiver.archived, 1)

	assert.Equal(t, model.ChildCompleted, s.child(f.child.ID).Status)
	var stored model.AssessmentRequest
	require.NoError(t, s.db.Where("id = ?", req.ID).Take(&stored).Error)
	assert.Equal(t, model.RequestCompleted, stored.Status)
	assert.NotNil(t, stored.ReportGeneratedAt)

	var profile model.Psychologist
	require.NoError(t, s.db.Where("id = ?", f.psych.PsychologistID).Take(&profile).Error)
	assert.Equal(t, 1, profile.CompletedAssessments)

	// Parent reads and downloads the report.
	resp = s.mustCall(http.StatusOK, http.MethodGet, "/api/ai-analysis/"+f.child.ID, f.parent.Token, nil)
	assert.Contains(t, string(resp.Data), analysis.ID)
	rr, _ = s.call(http.MethodGet, "/api/ai-analysis/"+f.child.ID+"/download", f.parent.Token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Disposition"), `attachment; filename="educe-report-aya-`))
	assert.Equal(t, analysis.Report, rr.Body.String())

	resp = s.mustCall(http.StatusOK, http.MethodGet, "/api/admin/stats", f.admin.Token, nil)
	var stats endpoint.Stats
	decode(t, resp, &stats)
	assert.Equal(t, int64(1), stats.TotalAssessments)
	assert.Equal(t, int64(1), stats.CompletedAssessments)
	assert.Equal(t, int64(1), stats.ApprovedPsychologists)
	assert.Equal(t, int64(3), stats.TotalUsers)

	// Completed is terminal.
	rr, _ = s.call(http.MethodPost, "/api/assessment-requests", f.parent.Token, map[string]string{
		"child_id":        f.child.ID,
		"psychologist_id": f.psych.PsychologistID,
	})
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
}

func TestAssessmentRejectionReturnsChildToAvailable(t *testing.T) {
	f := newFlow(t)
	s := f.s

	req := s.selectPsychologist(f.parent, f.child.ID, f.psych.PsychologistID)
	resp := s.respond(f.psych, req.ID, false, "unavailable")
	var responded model.AssessmentRequest
	decode(t, resp, &responded)
	assert.Equal(t, model.RequestRejected, responded.Status)
	assert.Equal(t, "unavailable", responded.ResponseReason)

	child := s.child(f.child.ID)
	assert.Equal(t, model.ChildAvailable, child.Status)
	assert.Nil(t, child.PsychologistID)

	// A new psychologist can be selected afterwards.
	second := s.approvedPsychologist(f.admin, "michael@example.com")
	s.selectPsychologist(f.parent, f.child.ID, second.PsychologistID)
	assert.Equal(t, model.ChildPending, s.child(f.child.ID).Status)
}

func TestAssessmentRequestGuards(t *testing.T) {
	f := newFlow(t)
	s := f.s
	other := s.register(model.RoleCustomer, "other@example.com")
	otherPsych := s.approvedPsychologist(f.admin, "michael@example.com")
	unapproved := s.register(model.RolePsychologist, "new@example.com")

	selectStatus := func(token, childID, psychID string) int {
		rr, _ := s.call(http.MethodPost, "/api/assessment-requests", token, map[string]string{"child_id": childID, "psychologist_id": psychID})
		return rr.Code
	}

	assert.Equal(t, http.StatusForbidden, selectStatus(other.Token, f.child.ID, f.psych.PsychologistID))
	assert.Equal(t, http.StatusForbidden, selectStatus(f.psych.Token, f.child.ID, f.psych.PsychologistID))
	assert.Equal(t, http.StatusNotFound, selectStatus(f.parent.Token, f.child.ID, unapproved.PsychologistID))
	assert.Equal(t, http.StatusNotFound, selectStatus(f.parent.Token, "missing", f.psych.PsychologistID))
	assert.Equal(t, http.StatusBadRequest, selectStatus(f.parent.Token, "", f.psych.PsychologistID))

	req := s.selectPsychologist(f.parent, f.child.ID, f.psych.PsychologistID)
	assert.Equal(t, http.StatusPreconditionFailed, selectStatus(f.parent.Token, f.child.ID, otherPsych.PsychologistID))

	rr, _ := s.call(http.MethodPut, "/api/assessment-requests/"+req.ID+"/respond", otherPsych.Token, map[string]bool{"accepted": true})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr, _ = s.call(http.MethodPut, "/api/assessment-requests/"+req.ID+"/respond", f.psych.Token, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	s.respond(f.psych, req.ID, true, "")
	rr, _ = s.call(http.MethodPut, "/api/assessment-requests/"+req.ID+"/respond", f.psych.Token, map[string]bool{"accepted": false})
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)

	// The report needs the interactive test first.
	rr, _ = s.call(http.MethodPost, "/api/ai-analysis", f.psych.Token, map[string]interface{}{"child_id": f.child.ID, "iq_score": 100})
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
	assert.Equal(t, model.ChildAccepted, s.child(f.child.ID).Status)
}

func TestCancelAssessmentRequest(t *testing.T) {
	f := newFlow(t)
	s := f.s
	req := s.selectPsychologist(f.parent, f.child.ID, f.psych.PsychologistID)

	rr, _ := s.call(http.MethodPut, "/api/assessment-requests/"+req.ID+"/cancel", f.psych.Token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	resp := s.mustCall(http.StatusOK, http.MethodPut, "/api/assessment-requests/"+req.ID+"/cancel", f.parent.Token, nil)
	var cancelled model.AssessmentRequest
	decode(t, resp, &cancelled)
	assert.Equal(t, model.RequestCancelled, cancelled.Status)
	assert.Equal(t, model.ChildAvailable, s.child(f.child.ID).Status)

	rr, _ = s.call(http.MethodPut, "/api/assessment-requests/"+req.ID+"/respond", f.psych.Token, map[string]bool{"accepted": true})
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
}

func TestListAssessmentRequests_ScopedByRole(t *testing.T) {
	f := newFlow(t)
	s := f.s
	other := s.register(model.RoleCustomer, "other@example.com")
	otherChild := s.createChild(other, "Ben", 6)
	otherPsych := s.approvedPsychologist(f.admin, "michael@example.com")

	s.selectPsychologist(f.parent, f.child.ID, f.psych.PsychologistID)
	s.selectPsychologist(other, otherChild.ID, otherPsych.PsychologistID)

	count := func(token, query string) int {
		var list []map[string]interface{}
		decode(t, s.mustCall(http.StatusOK, http.MethodGet, "/api/assessment-requests"+query, token, nil), &list)
		return len(list)
	}
	assert.Equal(t, 1, count(f.parent.Token, ""))
	assert.Equal(t, 1, count(f.psych.Token, ""))
	assert.Equal(t, 2, count(f.admin.Token, ""))
	assert.Equal(t, 2, count(f.admin.Token, "?status=pending"))
	assert.Equal(t, 0, count(f.admin.Token, "?status=completed"))
}

func TestSubmitGameResultDirectly(t *testing.T) {
	f := newFlow(t)
	s := f.s
	body := map[string]interface{}{
		"child_id": f.child.ID,
		"answers": []map[string]string{
			{"game_title": "Color Preferences", "question": "Which color makes you feel happiest?", "answer": "Blue", "category": "emotional"},
		},
	}

	rr, resp := s.call(http.MethodPost, "/api/game-results", f.parent.Token, body)
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)
	assert.Equal(t, "assessment must be approved by the psychologist first", resp.Msg)

	req := s.selectPsychologist(f.parent, f.child.ID, f.psych.PsychologistID)
	s.respond(f.psych, req.ID, true, "")

	rr, _ = s.call(http.MethodPost, "/api/game-results", f.parent.Token, map[string]interface{}{"child_id": f.child.ID, "answers": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	s.mustCall(http.StatusCreated, http.MethodPost, "/api/game-results", f.parent.Token, body)
	assert.Equal(t, model.ChildGamesCompleted, s.child(f.child.ID).Status)

	var results []model.GameResult
	decode(t, s.mustCall(http.StatusOK, http.MethodGet, "/api/game-results?childId="+f.child.ID, f.psych.Token, nil), &results)
	require.Len(t, results, 1)
	assert.Equal(t, "Blue", results[0].Answers[0].Answer)

	stranger := s.register(model.RoleCustomer, "stranger@example.com")
	rr, _ = s.call(http.MethodGet, "/api/game-results?child_id="+f.child.ID, stranger.Token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr, _ = s.call(http.MethodGet, "/api/game-results", f.parent.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmitAnalysis_ArchiveFailureDoesNotFailReport(t *testing.T) {
	f := newFlow(t)
	s := f.s
	s.archiver.err = errors.New("s3 unavailable")

	req := s.selectPsychologist(f.parent, f.child.ID, f.psych.PsychologistID)
	s.respond(f.psych, req.ID, true, "")
	s.playGames(f.parent, f.child.ID)

	rr, _ := s.call(http.MethodPost, "/api/ai-analysis", f.psych.Token, map[string]interface{}{"child_id": f.child.ID, "iq_score": 250})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	resp := s.mustCall(http.StatusCreated, http.MethodPost, "/api/ai-analysis", f.psych.Token, map[string]interface{}{
		"child_id": f.child.ID,
		"report":   "Written by hand.",
	})
	var analysis model.AIAnalysis
	decode(t, resp, &analysis)
	assert.Equal(t, "Written by hand.", analysis.Report)
	assert.Empty(t, analysis.ArchiveKey)
	assert.Equal(t, model.ChildCompleted, s.child(f.child.ID).Status)
}

func TestGameSessionNavigation(t *testing.T) {
	f := newFlow(t)
	s := f.s
	req := s.selectPsychologist(f.parent, f.child.ID, f.psych.PsychologistID)
	s.respond(f.psych, req.ID, true, "")

	var view struct {
		ID       string `json:"id"`
		Current  int    `json:"current"`
		Answered int    `json:"answered"`
	}
	decode(t, s.mustCall(http.StatusCreated, http.MethodPost, "/api/game-sessions", f.parent.Token, map[string]string{"child_id": f.child.ID}), &view)
	base := "/api/game-sessions/" + view.ID

	rr, _ := s.call(http.MethodPost, base+"/next", f.parent.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr, _ = s.call(http.MethodPut, base+"/answer", f.parent.Token, map[string]string{"answer": "not an option"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr, _ = s.call(http.MethodPost, base+"/finish", f.parent.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	first := s.catalog.Steps()[0].Question.Options[1]
	s.mustCall(http.StatusOK, http.MethodPut, base+"/answer", f.parent.Token, map[string]string{"answer": first})
	decode(t, s.mustCall(http.StatusOK, http.MethodPost, base+"/next", f.parent.Token, nil), &view)
	assert.Equal(t, 1, view.Current)
	assert.Equal(t, 1, view.Answered)
	decode(t, s.mustCall(http.StatusOK, http.MethodPost, base+"/previous", f.parent.Token, nil), &view)
	assert.Equal(t, 0, view.Current)

	other := s.register(model.RoleCustomer, "other@example.com")
	rr, _ = s.call(http.MethodGet, base, other.Token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr, _ = s.call(http.MethodGet, "/api/game-sessions/unknown", f.parent.Token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	resp := s.mustCall(http.StatusOK, http.MethodGet, "/api/games", f.parent.Token, nil)
	assert.Contains(t, string(resp.Data), "Color Preferences")
	assert.NotContains(t, string(resp.Data), "correct")
}
