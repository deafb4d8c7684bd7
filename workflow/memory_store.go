package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariebrainware/educe-api/model"
	"github.com/samber/lo"
)

// Snapshot is the serialisable content of a MemoryStore.
type Snapshot struct {
	Psychologists map[string]model.Psychologist      `json:"psychologists"`
	Children      map[string]model.Child             `json:"children"`
	Requests      map[string]model.AssessmentRequest `json:"requests"`
	GameResults   map[string]model.GameResult        `json:"game_results"`
	Analyses      map[string]model.AIAnalysis        `json:"analyses"`
}

func newSnapshot() Snapshot {
	return Snapshot{
		Psychologists: map[string]model.Psychologist{},
		Children:      map[string]model.Child{},
		Requests:      map[string]model.AssessmentRequest{},
		GameResults:   map[string]model.GameResult{},
		Analyses:      map[string]model.AIAnalysis{},
	}
}

func (s Snapshot) clone() Snapshot {
	return Snapshot{
		Psychologists: lo.Assign(s.Psychologists),
		Children:      lo.Assign(s.Children),
		Requests:      lo.Assign(s.Requests),
		GameResults:   lo.Assign(s.GameResults),
		Analyses:      lo.Assign(s.Analyses),
	}
}

// MemoryStore is an in-process Store used as the offline mirror of the API.
// Transactions are serialised and applied to a copy that replaces the live
// data only when fn succeeds.
type MemoryStore struct {
	mu   sync.Mutex
	data Snapshot
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newSnapshot(), now: time.Now}
}

func (s *MemoryStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.data.clone()
	if err := fn(&memoryTx{data: &working, now: s.now}); err != nil {
		return err
	}
	s.data = working
	return nil
}

// Export returns a copy of the stored data.
func (s *MemoryStore) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

// Import replaces the stored data. Child statuses are normalised on the way in.
func (s *MemoryStore) Import(snap Snapshot) {
	next := newSnapshot()
	for k, v := range snap.Psychologists {
		next.Psychologists[k] = v
	}
	for k, v := range snap.Children {
		v.Status = NormalizeStatus(v.Status)
		next.Children[k] = v
	}
	for k, v := range snap.Requests {
		next.Requests[k] = v
	}
	for k, v := range snap.GameResults {
		next.GameResults[k] = v
	}
	for k, v := range snap.Analyses {
		next.Analyses[k] = v
	}
	s.mu.Lock()
	s.data = next
	s.mu.Unlock()
}

// MarshalJSON encodes the current snapshot.
func (s *MemoryStore) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Export())
}

// UnmarshalJSON replaces the current snapshot with the decoded one.
func (s *MemoryStore) UnmarshalJSON(b []byte) error {
	snap := newSnapshot()
	if err := json.Unmarshal(b, &snap); err != nil {
		return fmt.Errorf("failed to decode mirror snapshot: %w", err)
	}
	s.Import(snap)
	return nil
}

// PutPsychologist upserts a profile copied from the server.
func (s *MemoryStore) PutPsychologist(p model.Psychologist) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Psychologists[p.ID] = p
}

// PutChild upserts a child copied from the server.
func (s *MemoryStore) PutChild(c model.Child) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Status = NormalizeStatus(c.Status)
	s.data.Children[c.ID] = c
}

// PutRequest upserts a request copied from the server.
func (s *MemoryStore) PutRequest(r model.AssessmentRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Requests[r.ID] = r
}

// PutGameResult upserts a game result copied from the server.
func (s *MemoryStore) PutGameResult(r model.GameResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.GameResults[r.ID] = r
}

// PutAnalysis upserts an analysis copied from the server.
func (s *MemoryStore) PutAnalysis(a model.AIAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Analyses[a.ID] = a
}

// ChildrenOf lists the children of a parent ordered by creation time.
func (s *MemoryStore) ChildrenOf(parentID uint) []model.Child {
	s.mu.Lock()
	defer s.mu.Unlock()
	children := lo.Filter(lo.Values(s.data.Children), func(c model.Child, _ int) bool {
		return c.ParentID == parentID
	})
	sort.SliceStable(children, func(i, j int) bool {
		if !children[i].CreatedAt.Equal(children[j].CreatedAt) {
			return children[i].CreatedAt.Before(children[j].CreatedAt)
		}
		return children[i].ID < children[j].ID
	})
	return children
}

type memoryTx struct {
	data *Snapshot
	now  func() time.Time
}

func (t *memoryTx) stamp(e *model.Entity) {
	now := t.now()
	if e.ID == "" {
		e.ID = model.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
}

func (t *memoryTx) Child(id string) (model.Child, error) {
	c, ok := t.data.Children[id]
	if !ok {
		return c, failf(ErrNotFound, "child %s not found", id)
	}
	return c, nil
}

func (t *memoryTx) Psychologist(id string) (model.Psychologist, error) {
	p, ok := t.data.Psychologists[id]
	if !ok {
		return p, failf(ErrNotFound, "psychologist %s not found", id)
	}
	return p, nil
}

func (t *memoryTx) PsychologistByUser(userID uint) (model.Psychologist, error) {
	p, ok := lo.Find(lo.Values(t.data.Psychologists), func(p model.Psychologist) bool {
		return p.UserID == userID
	})
	if !ok {
		return p, failf(ErrNotFound, "psychologist profile of user %d not found", userID)
	}
	return p, nil
}

func (t *memoryTx) Request(id string) (model.AssessmentRequest, error) {
	r, ok := t.data.Requests[id]
	if !ok {
		return r, failf(ErrNotFound, "assessment request %s not found", id)
	}
	return r, nil
}

func (t *memoryTx) ActiveRequest(childID string) (model.AssessmentRequest, error) {
	reqs, _ := t.RequestsForChild(childID)
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Status.Active() {
			return reqs[i], nil
		}
	}
	return model.AssessmentRequest{}, failf(ErrNotFound, "active request of child %s not found", childID)
}

func (t *memoryTx) RequestsForChild(childID string) ([]model.AssessmentRequest, error) {
	reqs := lo.Filter(lo.Values(t.data.Requests), func(r model.AssessmentRequest, _ int) bool {
		return r.ChildID == childID
	})
	sort.SliceStable(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
		}
		return reqs[i].ID < reqs[j].ID
	})
	return reqs, nil
}

func (t *memoryTx) GameResultsForChild(childID string) ([]model.GameResult, error) {
	results := lo.Filter(lo.Values(t.data.GameResults), func(r model.GameResult, _ int) bool {
		return r.ChildID == childID
	})
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CompletedAt.Before(results[j].CompletedAt)
	})
	return results, nil
}

func (t *memoryTx) GameResultForRequest(requestID string) (model.GameResult, error) {
	r, ok := lo.Find(lo.Values(t.data.GameResults), func(r model.GameResult) bool {
		return r.RequestID == requestID
	})
	if !ok {
		return r, failf(ErrNotFound, "game result of request %s not found", requestID)
	}
	return r, nil
}

func (t *memoryTx) AnalysisForRequest(requestID string) (model.AIAnalysis, error) {
	a, ok := lo.Find(lo.Values(t.data.Analyses), func(a model.AIAnalysis) bool {
		return a.RequestID == requestID
	})
	if !ok {
		return a, failf(ErrNotFound, "analysis of request %s not found", requestID)
	}
	return a, nil
}

func (t *memoryTx) ListPsychologists(approvedOnly bool) ([]model.Psychologist, error) {
	return RankPsychologists(lo.Values(t.data.Psychologists), approvedOnly), nil
}

func (t *memoryTx) CreateChild(child *model.Child) error {
	t.stamp(&child.Entity)
	if _, exists := t.data.Children[child.ID]; exists {
		return failf(ErrConflict, "child %s already exists", child.ID)
	}
	t.data.Children[child.ID] = *child
	return nil
}

func (t *memoryTx) CreateRequest(req *model.AssessmentRequest) error {
	t.stamp(&req.Entity)
	if _, exists := t.data.Requests[req.ID]; exists {
		return failf(ErrConflict, "assessment request %s already exists", req.ID)
	}
	t.data.Requests[req.ID] = *req
	return nil
}

func (t *memoryTx) UpdateRequest(req *model.AssessmentRequest) error {
	if _, exists := t.data.Requests[req.ID]; !exists {
		return failf(ErrNotFound, "assessment request %s not found", req.ID)
	}
	req.UpdatedAt = t.now()
	t.data.Requests[req.ID] = *req
	return nil
}

func (t *memoryTx) CreateGameResult(result *model.GameResult) error {
	if _, err := t.GameResultForRequest(result.RequestID); err == nil {
		return failf(ErrConflict, "game result for request %s already exists", result.RequestID)
	}
	t.stamp(&result.Entity)
	t.data.GameResults[result.ID] = *result
	return nil
}

func (t *memoryTx) CreateAnalysis(analysis *model.AIAnalysis) error {
	if _, err := t.AnalysisForRequest(analysis.RequestID); err == nil {
		return failf(ErrConflict, "analysis for request %s already exists", analysis.RequestID)
	}
	t.stamp(&analysis.Entity)
	t.data.Analyses[analysis.ID] = *analysis
	return nil
}

func (t *memoryTx) TransitionChild(childID string, from, to model.ChildStatus, psychologistID *string) error {
	c, ok := t.data.Children[childID]
	if !ok {
		return failf(ErrNotFound, "child %s not found", childID)
	}
	if c.Status != from {
		return failf(ErrConflict, "child %s is no longer %s", childID, from)
	}
	c.Status = to
	c.PsychologistID = psychologistID
	c.UpdatedAt = t.now()
	t.data.Children[childID] = c
	return nil
}

func (t *memoryTx) IncrementCompletedAssessments(psychologistID string) error {
	p, ok := t.data.Psychologists[psychologistID]
	if !ok {
		return failf(ErrNotFound, "psychologist %s not found", psychologistID)
	}
	p.CompletedAssessments++
	t.data.Psychologists[psychologistID] = p
	return nil
}
