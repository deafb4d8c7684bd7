package games

import (
	"context"
	"fmt"
	"time"

	"github.com/ariebrainware/educe-api/logger"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/workflow"
)

// Workflow is the part of the assessment engine a game session drives.
type Workflow interface {
	CanStartGames(ctx context.Context, actor workflow.Actor, childID string) (model.Child, error)
	SubmitGameResult(ctx context.Context, actor workflow.Actor, childID string, answers []model.Answer) (model.GameResult, error)
}

// Manager runs interactive test sessions for parents.
type Manager struct {
	Catalog *Catalog
	Store   SessionStore
	Now     func() time.Time
}

func NewManager(c *Catalog, store SessionStore) *Manager {
	return &Manager{Catalog: c, Store: store, Now: time.Now}
}

// Start opens a session for a child whose assessment was accepted.
func (m *Manager) Start(ctx context.Context, wf Workflow, actor workflow.Actor, childID string) (*Session, error) {
	child, err := wf.CanStartGames(ctx, actor, childID)
	if err != nil {
		return nil, err
	}
	s := NewSession(m.Catalog, child.ID, actor.UserID, m.Now())
	if err := m.Store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get loads a session owned by the actor.
func (m *Manager) Get(ctx context.Context, actor workflow.Actor, id string) (*Session, error) {
	s, err := m.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.ParentID != actor.UserID {
		return nil, fmt.Errorf("%w: game session %s belongs to another parent", workflow.ErrAuthorization, id)
	}
	if len(s.Answers) != m.Catalog.Len() || s.Current < 0 || s.Current >= m.Catalog.Len() {
		return nil, fmt.Errorf("%w: game session %s no longer matches the game catalog, start a new one", workflow.ErrPreconditionFailed, id)
	}
	return s, nil
}

func (m *Manager) update(ctx context.Context, actor workflow.Actor, id string, fn func(s *Session) error) (*Session, error) {
	s, err := m.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	if err := m.Store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Answer records the chosen option for the current question.
func (m *Manager) Answer(ctx context.Context, actor workflow.Actor, id, option string) (*Session, error) {
	return m.update(ctx, actor, id, func(s *Session) error {
		return s.Answer(m.Catalog, option, m.Now())
	})
}

// Next advances to the following question.
func (m *Manager) Next(ctx context.Context, actor workflow.Actor, id string) (*Session, error) {
	return m.update(ctx, actor, id, func(s *Session) error {
		return s.Next(m.Catalog)
	})
}

// Previous goes back one question.
func (m *Manager) Previous(ctx context.Context, actor workflow.Actor, id string) (*Session, error) {
	return m.update(ctx, actor, id, func(s *Session) error {
		s.Previous()
		return nil
	})
}

// Finish submits the answers as the child's game result and discards the
// session.
func (m *Manager) Finish(ctx context.Context, wf Workflow, actor workflow.Actor, id string) (model.GameResult, error) {
	s, err := m.Get(ctx, actor, id)
	if err != nil {
		return model.GameResult{}, err
	}
	if !s.Complete() {
		return model.GameResult{}, fmt.Errorf("%w: every question must be answered before finishing", workflow.ErrValidation)
	}
	result, err := wf.SubmitGameResult(ctx, actor, s.ChildID, s.Result())
	if err != nil {
		return model.GameResult{}, err
	}
	if err := m.Store.Delete(ctx, id); err != nil {
		// The session expires on its own; the result is already stored.
		logger.Log.WithError(err).WithField("session_id", id).Warn("failed to discard finished game session")
	}
	return result, nil
}
