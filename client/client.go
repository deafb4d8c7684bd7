package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/workflow"
)

var (
	// ErrUnavailable marks calls that never got a usable answer from the API:
	// transport failures, rate limiting and 5xx responses.
	ErrUnavailable = errors.New("api unavailable")
	// ErrUnauthenticated is returned for 401 responses.
	ErrUnauthenticated = errors.New("not authenticated")
)

const defaultTimeout = 10 * time.Second

// envelope mirrors util.APIResponse.
type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// User is the account part of a login or register response.
type User struct {
	ID       uint       `json:"id"`
	Email    string     `json:"email"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
	Approved bool       `json:"approved"`
}

// Auth is returned by Login and Register.
type Auth struct {
	User         User                `json:"user"`
	Psychologist *model.Psychologist `json:"psychologist,omitempty"`
	Token        string              `json:"token"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

// Actor is the workflow identity of the authenticated account.
func (a Auth) Actor() workflow.Actor {
	return workflow.Actor{UserID: a.User.ID, Role: a.User.Role}
}

// Client talks to the EDUCE REST API. Error responses come back wrapped in
// the workflow error kinds so callers can use errors.Is against either store.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New returns a client for the API rooted at baseURL, e.g.
// "http://localhost:3000/api". A nil httpClient gets a 10s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) Token() string { return c.token }

// kindOf maps an HTTP status to the matching error kind.
func kindOf(status int) error {
	switch {
	case status == http.StatusBadRequest:
		return workflow.ErrValidation
	case status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case status == http.StatusForbidden:
		return workflow.ErrAuthorization
	case status == http.StatusNotFound:
		return workflow.ErrNotFound
	case status == http.StatusConflict:
		return workflow.ErrConflict
	case status == http.StatusPreconditionFailed:
		return workflow.ErrPreconditionFailed
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return ErrUnavailable
	}
	return fmt.Errorf("unexpected status %d", status)
}

// IsUnavailable reports whether err means the API could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s %s: %v", ErrUnavailable, method, path, err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}

	if resp.StatusCode >= 300 {
		msg := env.Msg
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s", kindOf(resp.StatusCode), msg)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode %s %s data: %w", method, path, err)
	}
	return nil
}

// Health checks that the API answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// RegisterInput is the body of POST /auth/register.
type RegisterInput struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role,omitempty"`
	Phone    string     `json:"phone,omitempty"`
	Title    string     `json:"title,omitempty"`
}

// Register creates an account and keeps its token.
func (c *Client) Register(ctx context.Context, in RegisterInput) (Auth, error) {
	var auth Auth
	if err := c.do(ctx, http.MethodPost, "/auth/register", in, &auth); err != nil {
		return auth, err
	}
	c.token = auth.Token
	return auth, nil
}

// Login authenticates and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Auth, error) {
	var auth Auth
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &auth); err != nil {
		return auth, err
	}
	c.token = auth.Token
	return auth, nil
}

func (c *Client) Psychologists(ctx context.Context) ([]model.Psychologist, error) {
	var list []model.Psychologist
	err := c.do(ctx, http.MethodGet, "/psychologists", nil, &list)
	return list, err
}

func (c *Client) Children(ctx context.Context) ([]model.Child, error) {
	var list []model.Child
	err := c.do(ctx, http.MethodGet, "/children", nil, &list)
	return list, err
}

type childBody struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Age       int      `json:"age"`
	Gender    string   `json:"gender,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// CreateChild adds a child. A non-empty in.ID is kept by the server.
func (c *Client) CreateChild(ctx context.Context, in workflow.ChildInput) (model.Child, error) {
	var child model.Child
	body := childBody{ID: in.ID, Name: in.Name, Age: in.Age, Gender: in.Gender, Interests: in.Interests, Notes: in.Notes}
	err := c.do(ctx, http.MethodPost, "/children", body, &child)
	return child, err
}

func (c *Client) Child(ctx context.Context, id string) (model.Child, error) {
	var child model.Child
	err := c.do(ctx, http.MethodGet, "/children/"+url.PathEscape(id), nil, &child)
	return child, err
}

func (c *Client) SelectPsychologist(ctx context.Context, childID, psychologistID, message string) (model.AssessmentRequest, error) {
	var req model.AssessmentRequest
	body := map[string]string{"child_id": childID, "psychologist_id": psychologistID, "message": message}
	err := c.do(ctx, http.MethodPost, "/assessment-requests", body, &req)
	return req, err
}

func (c *Client) Requests(ctx context.Context) ([]model.AssessmentRequest, error) {
	var list []model.AssessmentRequest
	err := c.do(ctx, http.MethodGet, "/assessment-requests", nil, &list)
	return list, err
}

func (c *Client) RespondToRequest(ctx context.Context, requestID string, accepted bool, reason string) (model.AssessmentRequest, error) {
	var req model.AssessmentRequest
	body := map[string]interface{}{"accepted": accepted, "reason": reason}
	err := c.do(ctx, http.MethodPut, "/assessment-requests/"+url.PathEscape(requestID)+"/respond", body, &req)
	return req, err
}

func (c *Client) CancelRequest(ctx context.Context, requestID string) (model.AssessmentRequest, error) {
	var req model.AssessmentRequest
	err := c.do(ctx, http.MethodPut, "/assessment-requests/"+url.PathEscape(requestID)+"/cancel", nil, &req)
	return req, err
}

func (c *Client) SubmitGameResult(ctx context.Context, childID string, answers []model.Answer) (model.GameResult, error) {
	var result model.GameResult
	body := map[string]interface{}{"child_id": childID, "answers": answers}
	err := c.do(ctx, http.MethodPost, "/game-results", body, &result)
	return result, err
}

func (c *Client) GameResults(ctx context.Context, childID string) ([]model.GameResult, error) {
	var list []model.GameResult
	err := c.do(ctx, http.MethodGet, "/game-results?child_id="+url.QueryEscape(childID), nil, &list)
	return list, err
}

type reportBody struct {
	ChildID        string `json:"child_id"`
	PsychologistID string `json:"psychologist_id,omitempty"`
	Grade          string `json:"grade,omitempty"`
	model.Scores
	Interests    []string `json:"interests,omitempty"`
	Observations string   `json:"observations,omitempty"`
	Report       string   `json:"report,omitempty"`
}

func (c *Client) SubmitReport(ctx context.Context, in workflow.ReportInput) (model.AIAnalysis, error) {
	var analysis model.AIAnalysis
	body := reportBody{
		ChildID:        in.ChildID,
		PsychologistID: in.PsychologistID,
		Grade:          in.Grade,
		Scores:         in.Scores,
		Interests:      in.Interests,
		Observations:   in.Observations,
		Report:         in.Report,
	}
	err := c.do(ctx, http.MethodPost, "/ai-analysis", body, &analysis)
	return analysis, err
}

func (c *Client) Analysis(ctx context.Context, childID string) (model.AIAnalysis, error) {
	var analysis model.AIAnalysis
	err := c.do(ctx, http.MethodGet, "/ai-analysis/"+url.PathEscape(childID), nil, &analysis)
	return analysis, err
}
