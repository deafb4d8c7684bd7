package games

import (
	"fmt"
	"time"

	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/workflow"
	"github.com/samber/lo"
)

// Session is the progress of one child through the catalog.
type Session struct {
	ID        string         `json:"id"`
	ChildID   string         `json:"child_id"`
	ParentID  uint           `json:"parent_id"`
	Current   int            `json:"current"`
	Answers   []model.Answer `json:"answers"`
	StartedAt time.Time      `json:"started_at"`
}

// NewSession starts a session at the first question.
func NewSession(c *Catalog, childID string, parentID uint, now time.Time) *Session {
	return &Session{
		ID:        model.NewID(),
		ChildID:   childID,
		ParentID:  parentID,
		Answers:   make([]model.Answer, c.Len()),
		StartedAt: now,
	}
}

func (s *Session) answered(i int) bool {
	return i < len(s.Answers) && s.Answers[i].Answer != ""
}

// Answer records the option chosen for the current question, replacing an
// earlier choice.
func (s *Session) Answer(c *Catalog, option string, now time.Time) error {
	step := c.Steps()[s.Current]
	if !lo.Contains(step.Question.Options, option) {
		return fmt.Errorf("%w: %q is not an option of this question", workflow.ErrValidation, option)
	}
	s.Answers[s.Current] = model.Answer{
		GameTitle: step.GameTitle,
		Question:  step.Question.Text,
		Answer:    option,
		Category:  step.Question.Category,
		Timestamp: now,
	}
	return nil
}

// Next moves to the following question once the current one is answered.
func (s *Session) Next(c *Catalog) error {
	if !s.answered(s.Current) {
		return fmt.Errorf("%w: please select an answer first", workflow.ErrValidation)
	}
	if s.Current >= c.Len()-1 {
		return fmt.Errorf("%w: this is the last question, finish the session instead", workflow.ErrValidation)
	}
	s.Current++
	return nil
}

// Previous moves back one question. On the first question it does nothing.
func (s *Session) Previous() {
	if s.Current > 0 {
		s.Current--
	}
}

// Complete reports whether every question has an answer.
func (s *Session) Complete() bool {
	for i := range s.Answers {
		if !s.answered(i) {
			return false
		}
	}
	return len(s.Answers) > 0
}

// Result returns the answers in catalog order.
func (s *Session) Result() []model.Answer {
	out := make([]model.Answer, len(s.Answers))
	copy(out, s.Answers)
	return out
}

// View is the API representation of a session.
type View struct {
	*Session
	Total    int  `json:"total"`
	Step     Step `json:"step"`
	Answered int  `json:"answered"`
	Complete bool `json:"complete"`
}

// ViewOf renders s against the catalog.
func ViewOf(c *Catalog, s *Session) View {
	n := 0
	for i := range s.Answers {
		if s.answered(i) {
			n++
		}
	}
	return View{Session: s, Total: c.Len(), Step: c.Steps()[s.Current], Answered: n, Complete: s.Complete()}
}
