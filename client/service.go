package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ariebrainware/educe-api/logger"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/workflow"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// ErrPendingChanges is returned by Refresh while offline changes wait to be pushed.
var ErrPendingChanges = errors.New("offline changes not pushed yet")

type opKind string

const (
	opCreateChild opKind = "create_child"
	opSelect      opKind = "select_psychologist"
	opRespond     opKind = "respond"
	opCancel      opKind = "cancel"
	opGameResult  opKind = "game_result"
	opReport      opKind = "report"
)

// op is a transition applied to the mirror while the API was unreachable.
type op struct {
	Kind           opKind
	Child          workflow.ChildInput
	ChildID        string
	PsychologistID string
	RequestID      string
	Message        string
	Accepted       bool
	Reason         string
	Answers        []model.Answer
	Report         workflow.ReportInput
}

// SyncReport summarises a Sync run.
type SyncReport struct {
	Pushed  int
	Dropped []error
	Pending int
}

// Service runs the assessment workflow against the API and falls back to a
// local mirror when the API cannot be reached. The mirror runs the same
// workflow.Engine so it rejects exactly what the server would reject. Domain
// errors from the API are returned as-is, never retried locally.
type Service struct {
	api    *Client
	mirror *workflow.MemoryStore
	engine *workflow.Engine

	syncMu sync.Mutex

	mu       sync.Mutex
	auth     Auth
	outbox   []op
	remoteID map[string]string
}

func NewService(api *Client, mirror *workflow.MemoryStore) *Service {
	if mirror == nil {
		mirror = workflow.NewMemoryStore()
	}
	return &Service{
		api:      api,
		mirror:   mirror,
		engine:   workflow.NewEngine(mirror),
		remoteID: map[string]string{},
	}
}

func (s *Service) Mirror() *workflow.MemoryStore { return s.mirror }

func (s *Service) actor() workflow.Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth.Actor()
}

// Login authenticates against the API. There is no offline login.
func (s *Service) Login(ctx context.Context, email, password string) (Auth, error) {
	auth, err := s.api.Login(ctx, email, password)
	if err != nil {
		return auth, err
	}
	s.mu.Lock()
	s.auth = auth
	s.mu.Unlock()
	if auth.Psychologist != nil {
		s.mirror.PutPsychologist(*auth.Psychologist)
	}
	return auth, nil
}

// Pending is the number of offline changes waiting for Sync.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.outbox)
}

func (s *Service) enqueue(o op) {
	s.mu.Lock()
	s.outbox = append(s.outbox, o)
	s.mu.Unlock()
}

// flush pushes queued offline changes before an online call so the server
// holds every record the mirror shows. Only an unreachable API or a done
// context is reported; changes the server rejects are dropped by Sync.
func (s *Service) flush(ctx context.Context) error {
	if s.Pending() == 0 {
		return nil
	}
	report, err := s.Sync(ctx)
	if err == nil || IsUnavailable(err) || ctx.Err() != nil {
		return err
	}
	logger.Log.WithError(err).WithField("pushed", report.Pushed).Warn("failed to reload mirror after pushing offline changes")
	return nil
}

func fallback(operation string, err error) {
	logger.Log.WithError(err).WithField("operation", operation).Warn("API call failed, using local mirror")
}

func (s *Service) refreshChild(ctx context.Context, id string) {
	child, err := s.api.Child(ctx, id)
	if err != nil {
		logger.Log.WithError(err).WithField("child_id", id).Debug("failed to refresh mirrored child")
		return
	}
	s.mirror.PutChild(child)
}

// Psychologists lists the ranked profiles, mirroring them on success.
func (s *Service) Psychologists(ctx context.Context) ([]model.Psychologist, error) {
	list, err := s.api.Psychologists(ctx)
	if err == nil {
		for _, p := range list {
			s.mirror.PutPsychologist(p)
		}
		return list, nil
	}
	if !IsUnavailable(err) {
		return nil, err
	}
	fallback("psychologists", err)
	return s.engine.ListPsychologists(ctx, s.actor())
}

// Children lists the caller's children.
func (s *Service) Children(ctx context.Context) ([]model.Child, error) {
	var list []model.Child
	err := s.flush(ctx)
	if err == nil {
		list, err = s.api.Children(ctx)
	}
	if err == nil {
		for _, c := range list {
			s.mirror.PutChild(c)
		}
		return list, nil
	}
	if !IsUnavailable(err) {
		return nil, err
	}
	fallback("children", err)
	return s.mirror.ChildrenOf(s.actor().UserID), nil
}

// CreateChild adds a child. The id is minted here so the offline and online
// copies of the child agree.
func (s *Service) CreateChild(ctx context.Context, in workflow.ChildInput) (model.Child, error) {
	if in.ID == "" {
		in.ID = model.NewID()
	}
	var child model.Child
	err := s.flush(ctx)
	if err == nil {
		child, err = s.api.CreateChild(ctx, in)
	}
	if err == nil {
		s.mirror.PutChild(child)
		return child, nil
	}
	if !IsUnavailable(err) {
		return child, err
	}
	fallback("create child", err)
	child, err = s.engine.CreateChild(ctx, s.actor(), in)
	if err != nil {
		return child, err
	}
	s.enqueue(op{Kind: opCreateChild, Child: in})
	return child, nil
}

func (s *Service) SelectPsychologist(ctx context.Context, childID, psychologistID, message string) (model.AssessmentRequest, error) {
	var req model.AssessmentRequest
	err := s.flush(ctx)
	if err == nil {
		req, err = s.api.SelectPsychologist(ctx, childID, psychologistID, message)
	}
	if err == nil {
		s.mirror.PutRequest(req)
		s.refreshChild(ctx, childID)
		return req, nil
	}
	if !IsUnavailable(err) {
		return req, err
	}
	fallback("select psychologist", err)
	req, err = s.engine.SelectPsychologist(ctx, s.actor(), childID, psychologistID, message)
	if err != nil {
		return req, err
	}
	s.enqueue(op{Kind: opSelect, ChildID: childID, PsychologistID: psychologistID, Message: req.Message, RequestID: req.ID})
	return req, nil
}

func (s *Service) RespondToRequest(ctx context.Context, requestID string, accepted bool, reason string) (model.AssessmentRequest, error) {
	var req model.AssessmentRequest
	err := s.flush(ctx)
	if err == nil {
		req, err = s.api.RespondToRequest(ctx, s.serverID(requestID), accepted, reason)
	}
	if err == nil {
		s.mirror.PutRequest(req)
		s.refreshChild(ctx, req.ChildID)
		return req, nil
	}
	if !IsUnavailable(err) {
		return req, err
	}
	fallback("respond to request", err)
	req, err = s.engine.RespondToRequest(ctx, s.actor(), s.serverID(requestID), accepted, reason)
	if err != nil {
		return req, err
	}
	s.enqueue(op{Kind: opRespond, RequestID: requestID, Accepted: accepted, Reason: reason})
	return req, nil
}

func (s *Service) CancelRequest(ctx context.Context, requestID string) (model.AssessmentRequest, error) {
	var req model.AssessmentRequest
	err := s.flush(ctx)
	if err == nil {
		req, err = s.api.CancelRequest(ctx, s.serverID(requestID))
	}
	if err == nil {
		s.mirror.PutRequest(req)
		s.refreshChild(ctx, req.ChildID)
		return req, nil
	}
	if !IsUnavailable(err) {
		return req, err
	}
	fallback("cancel request", err)
	req, err = s.engine.CancelRequest(ctx, s.actor(), s.serverID(requestID))
	if err != nil {
		return req, err
	}
	s.enqueue(op{Kind: opCancel, RequestID: requestID})
	return req, nil
}

func (s *Service) SubmitGameResult(ctx context.Context, childID string, answers []model.Answer) (model.GameResult, error) {
	var result model.GameResult
	err := s.flush(ctx)
	if err == nil {
		result, err = s.api.SubmitGameResult(ctx, childID, answers)
	}
	if err == nil {
		s.mirror.PutGameResult(result)
		s.refreshChild(ctx, childID)
		return result, nil
	}
	if !IsUnavailable(err) {
		return result, err
	}
	fallback("submit game result", err)
	result, err = s.engine.SubmitGameResult(ctx, s.actor(), childID, answers)
	if err != nil {
		return result, err
	}
	s.enqueue(op{Kind: opGameResult, ChildID: childID, Answers: answers})
	return result, nil
}

func (s *Service) SubmitReport(ctx context.Context, in workflow.ReportInput) (model.AIAnalysis, error) {
	var analysis model.AIAnalysis
	err := s.flush(ctx)
	if err == nil {
		analysis, err = s.api.SubmitReport(ctx, in)
	}
	if err == nil {
		s.mirror.PutAnalysis(analysis)
		s.refreshChild(ctx, in.ChildID)
		return analysis, nil
	}
	if !IsUnavailable(err) {
		return analysis, err
	}
	fallback("submit report", err)
	analysis, err = s.engine.SubmitReport(ctx, s.actor(), in)
	if err != nil {
		return analysis, err
	}
	// Push the composed text so the server stores what the user saw.
	in.Report = analysis.Report
	s.enqueue(op{Kind: opReport, Report: in})
	return analysis, nil
}

// serverID translates an offline request id to the id the server assigned
// when the request was pushed. The mapping outlives Refresh because callers
// keep the ids they were handed while offline.
func (s *Service) serverID(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if remote, ok := s.remoteID[id]; ok {
		return remote
	}
	return id
}

func (s *Service) replay(ctx context.Context, o op) error {
	var err error
	switch o.Kind {
	case opCreateChild:
		_, err = s.api.CreateChild(ctx, o.Child)
	case opSelect:
		var req model.AssessmentRequest
		req, err = s.api.SelectPsychologist(ctx, o.ChildID, o.PsychologistID, o.Message)
		if err == nil {
			s.mu.Lock()
			s.remoteID[o.RequestID] = req.ID
			s.mu.Unlock()
		}
	case opRespond:
		_, err = s.api.RespondToRequest(ctx, s.serverID(o.RequestID), o.Accepted, o.Reason)
	case opCancel:
		_, err = s.api.CancelRequest(ctx, s.serverID(o.RequestID))
	case opGameResult:
		_, err = s.api.SubmitGameResult(ctx, o.ChildID, o.Answers)
	case opReport:
		_, err = s.api.SubmitReport(ctx, o.Report)
	default:
		err = fmt.Errorf("unknown offline operation %q", o.Kind)
	}
	return err
}

// Sync pushes offline changes to the API in the order they were made and
// then reloads the mirror from the server. Changes the server rejects are
// dropped and reported. Sync stops early, keeping the rest, when the API
// becomes unreachable again.
func (s *Service) Sync(ctx context.Context) (SyncReport, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	var report SyncReport
	for {
		s.mu.Lock()
		if len(s.outbox) == 0 {
			s.mu.Unlock()
			break
		}
		next := s.outbox[0]
		s.mu.Unlock()

		err := s.replay(ctx, next)
		if IsUnavailable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			report.Pending = s.Pending()
			return report, err
		}
		if err != nil {
			logger.Log.WithError(err).WithFields(logrus.Fields{
				"operation": string(next.Kind),
				"child_id":  next.ChildID,
			}).Warn("server rejected offline change, dropping it")
			report.Dropped = append(report.Dropped, err)
		} else {
			report.Pushed++
		}

		s.mu.Lock()
		s.outbox = s.outbox[1:]
		s.mu.Unlock()
	}
	return report, s.Refresh(ctx)
}

// Refresh replaces the mirror with the server's view of the caller's data.
func (s *Service) Refresh(ctx context.Context) error {
	if s.Pending() > 0 {
		return ErrPendingChanges
	}
	actor := s.actor()
	snap := workflow.Snapshot{
		Psychologists: map[string]model.Psychologist{},
		Children:      map[string]model.Child{},
		Requests:      map[string]model.AssessmentRequest{},
		GameResults:   map[string]model.GameResult{},
		Analyses:      map[string]model.AIAnalysis{},
	}

	psychs, err := s.api.Psychologists(ctx)
	if err != nil {
		return err
	}
	for _, p := range psychs {
		snap.Psychologists[p.ID] = p
	}
	s.mu.Lock()
	if own := s.auth.Psychologist; own != nil {
		if _, ok := snap.Psychologists[own.ID]; !ok {
			snap.Psychologists[own.ID] = *own
		}
	}
	s.mu.Unlock()

	reqs, err := s.api.Requests(ctx)
	if err != nil {
		return err
	}
	for _, r := range reqs {
		snap.Requests[r.ID] = r
	}

	var children []model.Child
	if actor.Role == model.RoleCustomer {
		if children, err = s.api.Children(ctx); err != nil {
			return err
		}
	} else {
		for _, id := range lo.Uniq(lo.Map(reqs, func(r model.AssessmentRequest, _ int) string { return r.ChildID })) {
			child, err := s.api.Child(ctx, id)
			if errors.Is(err, workflow.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			children = append(children, child)
		}
	}

	for _, child := range children {
		snap.Children[child.ID] = child
		results, err := s.api.GameResults(ctx, child.ID)
		if err != nil {
			return err
		}
		for _, r := range results {
			snap.GameResults[r.ID] = r
		}
		if child.Status != model.ChildCompleted {
			continue
		}
		analysis, err := s.api.Analysis(ctx, child.ID)
		if err != nil && !errors.Is(err, workflow.ErrNotFound) {
			return err
		}
		if err == nil {
			snap.Analyses[analysis.ID] = analysis
		}
	}

	s.mirror.Import(snap)
	return nil
}
