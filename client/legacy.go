package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/workflow"
	"github.com/samber/lo"
)

// legacyID accepts the numeric and string ids found in older offline data
// and keeps them as strings.
type legacyID string

func (id *legacyID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = legacyID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("legacy id %s: %w", b, err)
	}
	*id = legacyID(n.String())
	return nil
}

// legacyList accepts either a JSON array or a comma separated string.
type legacyList []string

func (l *legacyList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = nil
		return nil
	}
	var items []string
	if b[0] == '[' {
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
	} else {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		items = strings.Split(s, ",")
	}
	*l = lo.Filter(lo.Map(items, func(s string, _ int) string { return strings.TrimSpace(s) }),
		func(s string, _ int) bool { return s != "" })
	return nil
}

// legacyInt accepts numbers and numeric strings.
type legacyInt int

func (n *legacyInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("legacy number %s: %w", b, err)
	}
	*n = legacyInt(v)
	return nil
}

type LegacyChild struct {
	ID             legacyID   `json:"id"`
	ParentID       legacyID   `json:"parentId"`
	ParentEmail    string     `json:"parentEmail"`
	PsychologistID legacyID   `json:"psychologistId"`
	Name           string     `json:"name"`
	Age            legacyInt  `json:"age"`
	Gender         string     `json:"gender"`
	Interests      legacyList `json:"interests"`
	Notes          string     `json:"notes"`
	Status         string     `json:"status"`
	AddedDate      string     `json:"addedDate"`
}

type LegacyRequest struct {
	ID             legacyID `json:"id"`
	ChildID        legacyID `json:"childId"`
	ChildName      string   `json:"childName"`
	PsychologistID legacyID `json:"psychologistId"`
	ParentID       legacyID `json:"parentId"`
	ParentEmail    string   `json:"parentEmail"`
	CustomerEmail  string   `json:"customerEmail"`
	Status         string   `json:"status"`
	Message        string   `json:"message"`
	CreatedAt      string   `json:"createdAt"`
	RequestDate    string   `json:"requestDate"`
}

type LegacyAnswer struct {
	GameTitle string `json:"gameTitle"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
}

type LegacyGameResult struct {
	ChildID        legacyID       `json:"childId"`
	ChildName      string         `json:"childName"`
	PsychologistID legacyID       `json:"psychologistId"`
	Answers        []LegacyAnswer `json:"answers"`
	CompletedDate  string         `json:"completedDate"`
}

// LegacyData is the content of the old offline storage keys.
type LegacyData struct {
	Children    []LegacyChild      `json:"children"`
	Requests    []LegacyRequest    `json:"requests"`
	GameResults []LegacyGameResult `json:"gameResults"`
}

// ParseLegacy decodes a LegacyData document.
func ParseLegacy(raw []byte) (LegacyData, error) {
	var data LegacyData
	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("decode legacy data: %w", err)
	}
	return data, nil
}

func legacyTime(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			return time.UnixMilli(ms)
		}
	}
	return time.Time{}
}

// ParentResolver maps a legacy parent reference to a user id.
type ParentResolver func(parentID, email string) (uint, bool)

// Parents resolves legacy parent references against known accounts. Emails
// are matched case-insensitively; numeric ids only when they belong to one of
// the accounts, since old offline ids were timestamps.
func Parents(byEmail map[string]uint) ParentResolver {
	known := lo.Invert(byEmail)
	return func(parentID, email string) (uint, bool) {
		if id, ok := byEmail[strings.ToLower(strings.TrimSpace(email))]; ok {
			return id, true
		}
		if id, err := strconv.ParseUint(parentID, 10, 64); err == nil {
			if _, ok := known[uint(id)]; ok {
				return uint(id), true
			}
		}
		return 0, false
	}
}

// TranslateLegacy converts legacy records into canonical ones. Records that
// cannot be placed, like a child without a known parent, are skipped and
// reported.
func TranslateLegacy(data LegacyData, resolve ParentResolver) (workflow.Snapshot, []error) {
	snap := workflow.Snapshot{
		Psychologists: map[string]model.Psychologist{},
		Children:      map[string]model.Child{},
		Requests:      map[string]model.AssessmentRequest{},
		GameResults:   map[string]model.GameResult{},
		Analyses:      map[string]model.AIAnalysis{},
	}
	var problems []error

	for _, lc := range data.Children {
		id := string(lc.ID)
		if id == "" {
			id = model.NewID()
		}
		parent, ok := resolve(string(lc.ParentID), lc.ParentEmail)
		if !ok {
			problems = append(problems, fmt.Errorf("%w: child %q has no known parent", workflow.ErrNotFound, lc.Name))
			continue
		}
		child := model.Child{
			ParentID:  parent,
			Name:      strings.Join(strings.Fields(lc.Name), " "),
			Age:       int(lc.Age),
			Gender:    strings.TrimSpace(lc.Gender),
			Interests: []string(lc.Interests),
			Notes:     lc.Notes,
			Status:    model.ChildAvailable,
		}
		child.ID = id
		child.CreatedAt = legacyTime(lc.AddedDate)
		if err := (workflow.ChildInput{ID: id, Name: child.Name, Age: child.Age}).Validate(); err != nil {
			problems = append(problems, fmt.Errorf("child %q: %w", lc.Name, err))
			continue
		}
		snap.Children[id] = child
	}

	// childName is the only link some old requests have to their child.
	childByName := func(parent uint, name string) (model.Child, bool) {
		return lo.Find(lo.Values(snap.Children), func(c model.Child) bool {
			return c.ParentID == parent && strings.EqualFold(c.Name, strings.TrimSpace(name))
		})
	}

	for _, lr := range data.Requests {
		email := lr.ParentEmail
		if email == "" {
			email = lr.CustomerEmail
		}
		parent, ok := resolve(string(lr.ParentID), email)
		if !ok {
			problems = append(problems, fmt.Errorf("%w: request %s has no known parent", workflow.ErrNotFound, lr.ID))
			continue
		}
		child, ok := snap.Children[string(lr.ChildID)]
		if !ok || child.ParentID != parent {
			child, ok = childByName(parent, lr.ChildName)
		}
		if !ok {
			problems = append(problems, fmt.Errorf("%w: request %s refers to an unknown child", workflow.ErrNotFound, lr.ID))
			continue
		}
		status := model.RequestStatus(lr.Status)
		switch status {
		case model.RequestPending, model.RequestAccepted, model.RequestRejected, model.RequestCompleted, model.RequestCancelled:
		default:
			problems = append(problems, fmt.Errorf("%w: request %s has unknown status %q", workflow.ErrValidation, lr.ID, lr.Status))
			continue
		}
		req := model.AssessmentRequest{
			ChildID:        child.ID,
			PsychologistID: string(lr.PsychologistID),
			ParentID:       parent,
			Status:         status,
			Message:        lr.Message,
		}
		req.ID = string(lr.ID)
		if req.ID == "" {
			req.ID = model.NewID()
		}
		req.CreatedAt = legacyTime(lr.CreatedAt, lr.RequestDate)
		snap.Requests[req.ID] = req
	}

	for _, lg := range data.GameResults {
		child, ok := snap.Children[string(lg.ChildID)]
		if !ok {
			problems = append(problems, fmt.Errorf("%w: game result for unknown child %s", workflow.ErrNotFound, lg.ChildID))
			continue
		}
		req, ok := latestRequest(snap.Requests, child.ID)
		if !ok {
			problems = append(problems, fmt.Errorf("%w: game result for %s has no request", workflow.ErrPreconditionFailed, child.Name))
			continue
		}
		result := model.GameResult{
			ChildID:        child.ID,
			RequestID:      req.ID,
			PsychologistID: req.PsychologistID,
			CompletedAt:    legacyTime(lg.CompletedDate),
			Answers: lo.Map(lg.Answers, func(a LegacyAnswer, _ int) model.Answer {
				return model.Answer{
					GameTitle: a.GameTitle,
					Question:  a.Question,
					Answer:    a.Answer,
					Category:  a.Category,
					Timestamp: legacyTime(a.Timestamp),
				}
			}),
		}
		result.ID = model.NewID()
		snap.GameResults[result.ID] = result
	}

	// Stored statuses are not trusted; a child's status follows its requests.
	for id, child := range snap.Children {
		child.Status, child.PsychologistID = workflow.DeriveStatus(requestsOf(snap.Requests, id), resultsOf(snap.GameResults, id))
		snap.Children[id] = child
	}

	return snap, problems
}

// requestsOf returns the requests of a child, oldest first.
func requestsOf(reqs map[string]model.AssessmentRequest, childID string) []model.AssessmentRequest {
	out := lo.Filter(lo.Values(reqs), func(r model.AssessmentRequest, _ int) bool { return r.ChildID == childID })
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func resultsOf(results map[string]model.GameResult, childID string) []model.GameResult {
	return lo.Filter(lo.Values(results), func(r model.GameResult, _ int) bool { return r.ChildID == childID })
}

// latestRequest returns the newest accepted or completed request of a child.
func latestRequest(reqs map[string]model.AssessmentRequest, childID string) (model.AssessmentRequest, bool) {
	candidates := lo.Filter(lo.Values(reqs), func(r model.AssessmentRequest, _ int) bool {
		return r.ChildID == childID && (r.Status == model.RequestAccepted || r.Status == model.RequestCompleted)
	})
	if len(candidates) == 0 {
		return model.AssessmentRequest{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		}
		return candidates[i].ID > candidates[j].ID
	})
	return candidates[0], true
}

// MergeLegacy adds translated legacy records to the mirror, keeping records
// the mirror already holds under the same id.
func MergeLegacy(mirror *workflow.MemoryStore, data LegacyData, resolve ParentResolver) []error {
	legacy, problems := TranslateLegacy(data, resolve)
	return append(problems, merge(mirror, legacy)...)
}

// merge adds the legacy records the mirror does not hold yet and then
// recomputes the status of every child it touched, since a kept record and
// a merged one can disagree.
func merge(mirror *workflow.MemoryStore, legacy workflow.Snapshot) []error {
	snap := mirror.Export()
	for k, v := range legacy.Children {
		if _, ok := snap.Children[k]; !ok {
			snap.Children[k] = v
		}
	}
	for k, v := range legacy.Requests {
		if _, ok := snap.Requests[k]; !ok {
			snap.Requests[k] = v
		}
	}
	for k, v := range legacy.GameResults {
		snap.GameResults[k] = v
	}
	mirror.Import(snap)

	var problems []error
	engine := workflow.NewEngine(mirror)
	for _, id := range lo.Keys(legacy.Children) {
		if _, err := engine.Reconcile(context.Background(), id); err != nil {
			problems = append(problems, fmt.Errorf("reconcile child %s: %w", id, err))
		}
	}
	return problems
}

// MigrateLegacy merges the caller's legacy data into the mirror and queues
// every legacy child for the next Sync, which recreates it on the server
// under its old id in status available. Requests and results are not pushed;
// the server state replaces them once Sync reloads the mirror.
func (s *Service) MigrateLegacy(data LegacyData) []error {
	s.mu.Lock()
	user := s.auth.User
	s.mu.Unlock()

	parents := Parents(map[string]uint{strings.ToLower(user.Email): user.ID})
	// Records kept under the signed-in customer carry no parent reference.
	resolve := func(parentID, email string) (uint, bool) {
		if parentID == "" && email == "" {
			return user.ID, true
		}
		return parents(parentID, email)
	}
	legacy, problems := TranslateLegacy(data, resolve)
	legacy.Children = lo.PickBy(legacy.Children, func(_ string, c model.Child) bool { return c.ParentID == user.ID })
	problems = append(problems, merge(s.mirror, legacy)...)

	children := lo.Values(legacy.Children)
	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	for _, c := range children {
		s.enqueue(op{Kind: opCreateChild, Child: workflow.ChildInput{
			ID:        c.ID,
			Name:      c.Name,
			Age:       c.Age,
			Gender:    c.Gender,
			Interests: []string(c.Interests),
			Notes:     c.Notes,
		}})
	}
	return problems
}
