package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariebrainware/educe-api/model"
)

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	UserID uint
	Role   model.Role
}

const msgNotApproved = "assessment must be approved by the psychologist first"

// Engine applies the assessment workflow to a Store. The same engine runs on
// the server database and on the offline mirror so both enforce identical
// guards.
type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func requireRole(actor Actor, roles ...model.Role) error {
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return failf(ErrAuthorization, "role %q may not perform this action", actor.Role)
}

// ChildInput holds the parent supplied fields of a child.
type ChildInput struct {
	ID        string
	Name      string
	Age       int
	Gender    string
	Interests []string
	Notes     string
}

// Validate checks the required child fields.
func (in ChildInput) Validate() error {
	if in.ID != "" && !model.ValidID(in.ID) {
		return failf(ErrValidation, "child id must be at most %d letters, digits, '-' or '_'", model.MaxIDLength)
	}
	if strings.TrimSpace(in.Name) == "" {
		return failf(ErrValidation, "child name is required")
	}
	if in.Age < 1 || in.Age > 18 {
		return failf(ErrValidation, "child age must be between 1 and 18")
	}
	return nil
}

// CreateChild registers a child for the calling parent in status available.
func (e *Engine) CreateChild(ctx context.Context, actor Actor, in ChildInput) (model.Child, error) {
	if err := requireRole(actor, model.RoleCustomer); err != nil {
		return model.Child{}, err
	}
	if err := in.Validate(); err != nil {
		return model.Child{}, err
	}

	child := model.Child{
		Entity:    model.Entity{ID: in.ID},
		ParentID:  actor.UserID,
		Name:      strings.TrimSpace(in.Name),
		Age:       in.Age,
		Gender:    in.Gender,
		Interests: in.Interests,
		Notes:     in.Notes,
		Status:    model.ChildAvailable,
	}
	if child.ID == "" {
		child.ID = model.NewID()
	}
	err := e.store.Atomic(ctx, func(tx Tx) error {
		return tx.CreateChild(&child)
	})
	return child, err
}

// ListPsychologists returns the ranked profiles visible to the actor.
// Only admins see unapproved profiles.
func (e *Engine) ListPsychologists(ctx context.Context, actor Actor) ([]model.Psychologist, error) {
	var list []model.Psychologist
	err := e.store.Atomic(ctx, func(tx Tx) error {
		var err error
		list, err = tx.ListPsychologists(actor.Role != model.RoleAdmin)
		return err
	})
	return list, err
}

func (e *Engine) ownedChild(tx Tx, actor Actor, childID string) (model.Child, error) {
	child, err := tx.Child(childID)
	if err != nil {
		return child, err
	}
	if child.ParentID != actor.UserID {
		return child, failf(ErrAuthorization, "child %s belongs to another parent", childID)
	}
	return child, nil
}

// SelectPsychologist opens an assessment request for an available child.
func (e *Engine) SelectPsychologist(ctx context.Context, actor Actor, childID, psychologistID, message string) (model.AssessmentRequest, error) {
	if err := requireRole(actor, model.RoleCustomer); err != nil {
		return model.AssessmentRequest{}, err
	}
	if childID == "" || psychologistID == "" {
		return model.AssessmentRequest{}, failf(ErrValidation, "child id and psychologist id are required")
	}

	var req model.AssessmentRequest
	err := e.store.Atomic(ctx, func(tx Tx) error {
		child, err := e.ownedChild(tx, actor, childID)
		if err != nil {
			return err
		}
		if child.Status != model.ChildAvailable {
			return failf(ErrPreconditionFailed, "child %s is %s, a psychologist can only be selected while available", child.Name, child.Status)
		}

		psych, err := tx.Psychologist(psychologistID)
		if err != nil {
			return err
		}
		if !psych.Approved {
			return failf(ErrNotFound, "psychologist %s not found", psychologistID)
		}
		if !psych.Available {
			return failf(ErrPreconditionFailed, "psychologist %s is not accepting new assessments", psych.Name)
		}

		if active, err := tx.ActiveRequest(childID); err == nil {
			return failf(ErrPreconditionFailed, "child %s already has an active request %s", child.Name, active.ID)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if err := tx.TransitionChild(child.ID, model.ChildAvailable, model.ChildPending, &psych.ID); err != nil {
			return err
		}

		if strings.TrimSpace(message) == "" {
			message = fmt.Sprintf("Assessment request for %s (%d years old)", child.Name, child.Age)
		}
		now := e.now()
		req = model.AssessmentRequest{
			Entity:         model.Entity{ID: model.NewID(), CreatedAt: now, UpdatedAt: now},
			ChildID:        child.ID,
			PsychologistID: psych.ID,
			ParentID:       actor.UserID,
			Status:         model.RequestPending,
			Message:        message,
		}
		return tx.CreateRequest(&req)
	})
	return req, err
}

func (e *Engine) assignedRequest(tx Tx, actor Actor, requestID string) (model.AssessmentRequest, model.Psychologist, error) {
	req, err := tx.Request(requestID)
	if err != nil {
		return req, model.Psychologist{}, err
	}
	psych, err := tx.PsychologistByUser(actor.UserID)
	if errors.Is(err, ErrNotFound) {
		return req, psych, failf(ErrAuthorization, "caller has no psychologist profile")
	}
	if err != nil {
		return req, psych, err
	}
	if req.PsychologistID != psych.ID {
		return req, psych, failf(ErrAuthorization, "request %s is assigned to another psychologist", requestID)
	}
	return req, psych, nil
}

// RespondToRequest lets the assigned psychologist accept or reject a pending
// request. A rejection returns the child to available and clears its
// psychologist.
func (e *Engine) RespondToRequest(ctx context.Context, actor Actor, requestID string, accepted bool, reason string) (model.AssessmentRequest, error) {
	if err := requireRole(actor, model.RolePsychologist); err != nil {
		return model.AssessmentRequest{}, err
	}

	var req model.AssessmentRequest
	err := e.store.Atomic(ctx, func(tx Tx) error {
		var err error
		req, _, err = e.assignedRequest(tx, actor, requestID)
		if err != nil {
			return err
		}
		if req.Status != model.RequestPending {
			return failf(ErrPreconditionFailed, "request %s is already %s", req.ID, req.Status)
		}
		child, err := tx.Child(req.ChildID)
		if err != nil {
			return err
		}
		if child.Status != model.ChildPending {
			return failf(ErrPreconditionFailed, "child %s is %s, expected pending", child.Name, child.Status)
		}

		now := e.now()
		req.RespondedAt = &now
		if accepted {
			req.Status = model.RequestAccepted
			err = tx.TransitionChild(child.ID, model.ChildPending, model.ChildAccepted, child.PsychologistID)
		} else {
			req.Status = model.RequestRejected
			req.ResponseReason = strings.TrimSpace(reason)
			err = tx.TransitionChild(child.ID, model.ChildPending, model.ChildAvailable, nil)
		}
		if err != nil {
			return err
		}
		return tx.UpdateRequest(&req)
	})
	return req, err
}

// CancelRequest lets the parent withdraw a request the psychologist has not
// answered yet. The child becomes available again.
func (e *Engine) CancelRequest(ctx context.Context, actor Actor, requestID string) (model.AssessmentRequest, error) {
	if err := requireRole(actor, model.RoleCustomer); err != nil {
		return model.AssessmentRequest{}, err
	}

	var req model.AssessmentRequest
	err := e.store.Atomic(ctx, func(tx Tx) error {
		var err error
		req, err = tx.Request(requestID)
		if err != nil {
			return err
		}
		if req.ParentID != actor.UserID {
			return failf(ErrAuthorization, "request %s belongs to another parent", requestID)
		}
		if req.Status != model.RequestPending {
			return failf(ErrPreconditionFailed, "only pending requests can be cancelled, request %s is %s", req.ID, req.Status)
		}
		if err := tx.TransitionChild(req.ChildID, model.ChildPending, model.ChildAvailable, nil); err != nil {
			return err
		}
		now := e.now()
		req.Status = model.RequestCancelled
		req.RespondedAt = &now
		return tx.UpdateRequest(&req)
	})
	return req, err
}

// CanStartGames checks that the parent's child may begin the interactive test.
func (e *Engine) CanStartGames(ctx context.Context, actor Actor, childID string) (model.Child, error) {
	if err := requireRole(actor, model.RoleCustomer); err != nil {
		return model.Child{}, err
	}
	var child model.Child
	err := e.store.Atomic(ctx, func(tx Tx) error {
		var err error
		child, err = e.ownedChild(tx, actor, childID)
		if err != nil {
			return err
		}
		if child.Status != model.ChildAccepted {
			return failf(ErrPreconditionFailed, msgNotApproved)
		}
		return nil
	})
	return child, err
}

// SubmitGameResult records the answers of a finished interactive test.
func (e *Engine) SubmitGameResult(ctx context.Context, actor Actor, childID string, answers []model.Answer) (model.GameResult, error) {
	if err := requireRole(actor, model.RoleCustomer); err != nil {
		return model.GameResult{}, err
	}
	if childID == "" {
		return model.GameResult{}, failf(ErrValidation, "child id is required")
	}
	if len(answers) == 0 {
		return model.GameResult{}, failf(ErrValidation, "at least one answer is required")
	}
	for i, a := range answers {
		if strings.TrimSpace(a.Question) == "" || strings.TrimSpace(a.Answer) == "" {
			return model.GameResult{}, failf(ErrValidation, "answer %d is missing its question or answer", i+1)
		}
	}

	var result model.GameResult
	err := e.store.Atomic(ctx, func(tx Tx) error {
		child, err := e.ownedChild(tx, actor, childID)
		if err != nil {
			return err
		}
		if child.Status != model.ChildAccepted {
			return failf(ErrPreconditionFailed, msgNotApproved)
		}
		req, err := tx.ActiveRequest(child.ID)
		if errors.Is(err, ErrNotFound) || (err == nil && req.Status != model.RequestAccepted) {
			return failf(ErrPreconditionFailed, msgNotApproved)
		}
		if err != nil {
			return err
		}
		if _, err := tx.GameResultForRequest(req.ID); err == nil {
			return failf(ErrPreconditionFailed, "the interactive test was already completed for this assessment")
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		now := e.now()
		recorded := make([]model.Answer, len(answers))
		for i, a := range answers {
			if a.Timestamp.IsZero() {
				a.Timestamp = now
			}
			recorded[i] = a
		}
		result = model.GameResult{
			Entity:         model.Entity{ID: model.NewID(), CreatedAt: now, UpdatedAt: now},
			ChildID:        child.ID,
			RequestID:      req.ID,
			PsychologistID: req.PsychologistID,
			Answers:        recorded,
			CompletedAt:    now,
		}
		if err := tx.TransitionChild(child.ID, model.ChildAccepted, model.ChildGamesCompleted, child.PsychologistID); err != nil {
			return err
		}
		return tx.CreateGameResult(&result)
	})
	return result, err
}

// ReportInput is what a psychologist submits to close an assessment.
type ReportInput struct {
	ChildID        string
	PsychologistID string
	Grade          string
	Scores         model.Scores
	Interests      []string
	Observations   string
	Report         string
}

// Validate checks the score ranges.
func (in ReportInput) Validate() error {
	if in.ChildID == "" {
		return failf(ErrValidation, "child id is required")
	}
	if in.Scores.IQScore < 0 || in.Scores.IQScore > 200 {
		return failf(ErrValidation, "iq score must be between 0 and 200")
	}
	for name, v := range map[string]int{
		"verbal reasoning":    in.Scores.VerbalReasoning,
		"numerical reasoning": in.Scores.NumericalReasoning,
		"spatial reasoning":   in.Scores.SpatialReasoning,
		"memory":              in.Scores.MemoryScore,
		"processing speed":    in.Scores.ProcessingSpeed,
		"extroversion":        in.Scores.Extroversion,
		"conscientiousness":   in.Scores.Conscientiousness,
		"openness":            in.Scores.Openness,
		"creativity":          in.Scores.Creativity,
	} {
		if v < 0 || v > 100 {
			return failf(ErrValidation, "%s score must be between 0 and 100", name)
		}
	}
	return nil
}

// SubmitReport stores the analysis of a child whose test is complete and
// closes the assessment.
func (e *Engine) SubmitReport(ctx context.Context, actor Actor, in ReportInput) (model.AIAnalysis, error) {
	if err := requireRole(actor, model.RolePsychologist); err != nil {
		return model.AIAnalysis{}, err
	}
	if err := in.Validate(); err != nil {
		return model.AIAnalysis{}, err
	}

	var analysis model.AIAnalysis
	err := e.store.Atomic(ctx, func(tx Tx) error {
		psych, err := tx.PsychologistByUser(actor.UserID)
		if errors.Is(err, ErrNotFound) {
			return failf(ErrAuthorization, "caller has no psychologist profile")
		}
		if err != nil {
			return err
		}
		if in.PsychologistID != "" && in.PsychologistID != psych.ID {
			return failf(ErrAuthorization, "reports can only be submitted under the caller's own profile")
		}

		child, err := tx.Child(in.ChildID)
		if err != nil {
			return err
		}
		if child.PsychologistID == nil || *child.PsychologistID != psych.ID {
			return failf(ErrAuthorization, "child %s is not assigned to the caller", child.ID)
		}
		if child.Status != model.ChildGamesCompleted {
			return failf(ErrPreconditionFailed, "child %s is %s, the interactive test must be completed first", child.Name, child.Status)
		}

		req, err := tx.ActiveRequest(child.ID)
		if errors.Is(err, ErrNotFound) {
			return failf(ErrPreconditionFailed, "child %s has no accepted request", child.Name)
		}
		if err != nil {
			return err
		}
		if req.PsychologistID != psych.ID {
			return failf(ErrAuthorization, "request %s is assigned to another psychologist", req.ID)
		}
		result, err := tx.GameResultForRequest(req.ID)
		if errors.Is(err, ErrNotFound) {
			return failf(ErrPreconditionFailed, "no game result recorded for request %s", req.ID)
		}
		if err != nil {
			return err
		}

		now := e.now()
		interests := in.Interests
		if len(interests) == 0 {
			interests = child.Interests
		}
		report := strings.TrimSpace(in.Report)
		if report == "" {
			report, err = ComposeReport(child, psych, result, in)
			if err != nil {
				return err
			}
		}

		analysis = model.AIAnalysis{
			Entity:          model.Entity{ID: model.NewID(), CreatedAt: now, UpdatedAt: now},
			ChildID:         child.ID,
			RequestID:       req.ID,
			PsychologistID:  psych.ID,
			Grade:           in.Grade,
			Scores:          in.Scores,
			Interests:       interests,
			Observations:    in.Observations,
			Report:          report,
			ReportGenerated: true,
			AssessmentDate:  now,
		}
		if err := tx.TransitionChild(child.ID, model.ChildGamesCompleted, model.ChildCompleted, child.PsychologistID); err != nil {
			return err
		}
		if err := tx.CreateAnalysis(&analysis); err != nil {
			return err
		}
		req.Status = model.RequestCompleted
		req.ReportGeneratedAt = &now
		if err := tx.UpdateRequest(&req); err != nil {
			return err
		}
		return tx.IncrementCompletedAssessments(psych.ID)
	})
	return analysis, err
}

// Reconcile recomputes the status of a child from its requests and results
// and rewrites the cached value when it drifted.
func (e *Engine) Reconcile(ctx context.Context, childID string) (model.Child, error) {
	var child model.Child
	err := e.store.Atomic(ctx, func(tx Tx) error {
		var err error
		child, err = tx.Child(childID)
		if err != nil {
			return err
		}
		reqs, err := tx.RequestsForChild(childID)
		if err != nil {
			return err
		}
		results, err := tx.GameResultsForChild(childID)
		if err != nil {
			return err
		}
		status, psychologistID := DeriveStatus(reqs, results)
		if status == child.Status && samePsychologist(child.PsychologistID, psychologistID) {
			return nil
		}
		if err := tx.TransitionChild(child.ID, child.Status, status, psychologistID); err != nil {
			return err
		}
		child.Status = status
		child.PsychologistID = psychologistID
		return nil
	})
	return child, err
}

func samePsychologist(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
