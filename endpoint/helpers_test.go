package endpoint_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ariebrainware/educe-api/archive"
	"github.com/ariebrainware/educe-api/config"
	"github.com/ariebrainware/educe-api/endpoint"
	"github.com/ariebrainware/educe-api/games"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/router"
	"github.com/ariebrainware/educe-api/util"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type apiResp struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// requestParams groups HTTP request parameters to reduce function arguments
type requestParams struct {
	method  string
	path    string
	body    []byte
	headers map[string]string
}

func doRequest(r http.Handler, params requestParams) (*httptest.ResponseRecorder, error) {
	req, err := http.NewRequest(params.method, params.path, bytes.NewBuffer(params.body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range params.headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr, nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []model.AIAnalysis
	err      error
}

func (f *fakeArchiver) Archive(_ context.Context, a model.AIAnalysis) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.archived = append(f.archived, a)
	return archive.Key(a), nil
}

type testServer struct {
	t        *testing.T
	handler  http.Handler
	db       *gorm.DB
	archiver *fakeArchiver
	catalog  *games.Catalog
}

// setupTestServer builds the full API on a private in-memory database.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	config.ResetRedisClientForTest()

	db, err := config.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, model.Migrate(db))

	catalog, err := games.DefaultCatalog()
	require.NoError(t, err)

	fa := &fakeArchiver{}
	h := endpoint.NewHandler(games.NewManager(catalog, games.NewMemoryStore(time.Minute)), fa, time.Hour)
	return &testServer{
		t:        t,
		handler:  router.New(db, h, config.LoadConfig()),
		db:       db,
		archiver: fa,
		catalog:  catalog,
	}
}

// call sends body as JSON with an optional bearer token and decodes the envelope.
func (s *testServer) call(method, path, token string, body interface{}) (*httptest.ResponseRecorder, apiResp) {
	s.t.Helper()
	params := requestParams{method: method, path: path, headers: map[string]string{}}
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		params.body = b
	}
	if token != "" {
		params.headers["Authorization"] = "Bearer " + token
	}
	rr, err := doRequest(s.handler, params)
	require.NoError(s.t, err)

	var resp apiResp
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") != "text/plain; charset=utf-8" {
		require.NoError(s.t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	}
	return rr, resp
}

// mustCall is call that also checks the status code.
func (s *testServer) mustCall(status int, method, path, token string, body interface{}) apiResp {
	s.t.Helper()
	rr, resp := s.call(method, path, token, body)
	require.Equal(s.t, status, rr.Code, "%s %s: %s", method, path, rr.Body.String())
	return resp
}

func decode(t *testing.T, resp apiResp, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

type account struct {
	ID             uint
	Token          string
	PsychologistID string
}

func (s *testServer) register(role model.Role, email string) account {
	s.t.Helper()
	resp := s.mustCall(http.StatusCreated, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"email":    email,
		"password": "password123",
		"name":     "User " + email,
		"role":     role,
		"title":    "Child Psychologist",
	})
	var auth endpoint.AuthResponse
	decode(s.t, resp, &auth)
	a := account{ID: auth.User.ID, Token: auth.Token}
	if auth.Psychologist != nil {
		a.PsychologistID = auth.Psychologist.ID
	}
	return a
}

func (s *testServer) admin() account {
	s.t.Helper()
	hash, err := util.HashPassword("admin-password")
	require.NoError(s.t, err)
	require.NoError(s.t, model.SeedAdmin(s.db, "Administrator", "admin@example.com", hash))

	resp := s.mustCall(http.StatusOK, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "admin@example.com",
		"password": "admin-password",
	})
	var auth endpoint.AuthResponse
	decode(s.t, resp, &auth)
	return account{ID: auth.User.ID, Token: auth.Token}
}

// approvedPsychologist registers a psychologist and has admin approve it.
func (s *testServer) approvedPsychologist(admin account, email string) account {
	s.t.Helper()
	p := s.register(model.RolePsychologist, email)
	s.mustCall(http.StatusOK, http.MethodPut, "/api/admin/psychologists/"+p.PsychologistID+"/approval", admin.Token,
		map[string]interface{}{"approved": true})
	return p
}

func (s *testServer) createChild(parent account, name string, age int) model.Child {
	s.t.Helper()
	resp := s.mustCall(http.StatusCreated, http.MethodPost, "/api/children", parent.Token, map[string]interface{}{
		"name":      name,
		"age":       age,
		"gender":    "female",
		"interests": []string{"drawing", "puzzles"},
	})
	var child model.Child
	decode(s.t, resp, &child)
	return child
}

func (s *testServer) child(id string) model.Child {
	s.t.Helper()
	var child model.Child
	require.NoError(s.t, s.db.Where("id = ?", id).Take(&child).Error)
	return child
}

func (s *testServer) selectPsychologist(parent account, childID, psychologistID string) model.AssessmentRequest {
	s.t.Helper()
	resp := s.mustCall(http.StatusCreated, http.MethodPost, "/api/assessment-requests", parent.Token, map[string]string{
		"child_id":        childID,
		"psychologist_id": psychologistID,
	})
	var req model.AssessmentRequest
	decode(s.t, resp, &req)
	return req
}

func (s *testServer) respond(psych account, requestID string, accepted bool, reason string) apiResp {
	s.t.Helper()
	return s.mustCall(http.StatusOK, http.MethodPut, "/api/assessment-requests/"+requestID+"/respond", psych.Token,
		map[string]interface{}{"accepted": accepted, "reason": reason})
}

// playGames runs a full interactive session choosing the first option of
// every question.
func (s *testServer) playGames(parent account, childID string) model.GameResult {
	s.t.Helper()
	resp := s.mustCall(http.StatusCreated, http.MethodPost, "/api/game-sessions", parent.Token, map[string]string{"child_id": childID})
	var view struct {
		ID    string `json:"id"`
		Total int    `json:"total"`
	}
	decode(s.t, resp, &view)
	require.Equal(s.t, s.catalog.Len(), view.Total)

	base := "/api/game-sessions/" + view.ID
	for i, step := range s.catalog.Steps() {
		s.mustCall(http.StatusOK, http.MethodPut, base+"/answer", parent.Token, map[string]string{"answer": step.Question.Options[0]})
		if i < s.catalog.Len()-1 {
			s.mustCall(http.StatusOK, http.MethodPost, base+"/next", parent.Token, nil)
		}
	}
	resp = s.mustCall(http.StatusCreated, http.MethodPost, base+"/finish", parent.Token, nil)
	var result model.GameResult
	decode(s.t, resp, &result)
	return result
}
