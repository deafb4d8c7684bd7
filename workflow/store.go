package workflow

import (
	"context"

	"github.com/ariebrainware/educe-api/model"
)

// Store runs workflow reads and writes as one atomic unit. When fn returns an
// error nothing it wrote is kept.
type Store interface {
	Atomic(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the keyed CRUD surface the engine needs inside a transaction.
// Lookups of missing rows return an error wrapping ErrNotFound.
type Tx interface {
	Child(id string) (model.Child, error)
	Psychologist(id string) (model.Psychologist, error)
	PsychologistByUser(userID uint) (model.Psychologist, error)
	Request(id string) (model.AssessmentRequest, error)
	// ActiveRequest returns the pending or accepted request of a child.
	ActiveRequest(childID string) (model.AssessmentRequest, error)
	RequestsForChild(childID string) ([]model.AssessmentRequest, error)
	GameResultsForChild(childID string) ([]model.GameResult, error)
	GameResultForRequest(requestID string) (model.GameResult, error)
	AnalysisForRequest(requestID string) (model.AIAnalysis, error)
	// ListPsychologists returns profiles ordered by rating desc,
	// completed assessments desc, id asc.
	ListPsychologists(approvedOnly bool) ([]model.Psychologist, error)

	CreateChild(child *model.Child) error
	CreateRequest(req *model.AssessmentRequest) error
	UpdateRequest(req *model.AssessmentRequest) error
	CreateGameResult(result *model.GameResult) error
	CreateAnalysis(analysis *model.AIAnalysis) error
	// TransitionChild moves a child from one status to the next and sets its
	// psychologist. It fails with ErrConflict when the stored status no longer
	// equals from.
	TransitionChild(childID string, from, to model.ChildStatus, psychologistID *string) error
	IncrementCompletedAssessments(psychologistID string) error
}
