package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariebrainware/educe-api/model"
	"gorm.io/gorm"
)

// GormStore keeps workflow state in the relational database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Atomic runs fn inside a database transaction.
func (s *GormStore) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
}

type gormTx struct {
	db *gorm.DB
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return failf(ErrNotFound, "%s %s not found", what, id)
	}
	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}

func (t *gormTx) Child(id string) (model.Child, error) {
	var child model.Child
	if err := t.db.First(&child, "id = ?", id).Error; err != nil {
		return child, notFound(err, "child", id)
	}
	return child, nil
}

func (t *gormTx) Psychologist(id string) (model.Psychologist, error) {
	var p model.Psychologist
	if err := t.db.First(&p, "id = ?", id).Error; err != nil {
		return p, notFound(err, "psychologist", id)
	}
	return p, nil
}

func (t *gormTx) PsychologistByUser(userID uint) (model.Psychologist, error) {
	var p model.Psychologist
	if err := t.db.First(&p, "user_id = ?", userID).Error; err != nil {
		return p, notFound(err, "psychologist profile of user", fmt.Sprint(userID))
	}
	return p, nil
}

func (t *gormTx) Request(id string) (model.AssessmentRequest, error) {
	var req model.AssessmentRequest
	if err := t.db.First(&req, "id = ?", id).Error; err != nil {
		return req, notFound(err, "assessment request", id)
	}
	return req, nil
}

func (t *gormTx) ActiveRequest(childID string) (model.AssessmentRequest, error) {
	var req model.AssessmentRequest
	err := t.db.Where("child_id = ? AND status IN ?", childID,
		[]model.RequestStatus{model.RequestPending, model.RequestAccepted}).
		Order("created_at DESC").
		First(&req).Error
	if err != nil {
		return req, notFound(err, "active request of child", childID)
	}
	return req, nil
}

func (t *gormTx) RequestsForChild(childID string) ([]model.AssessmentRequest, error) {
	var reqs []model.AssessmentRequest
	if err := t.db.Where("child_id = ?", childID).Order("created_at ASC").Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("failed to list requests of child %s: %w", childID, err)
	}
	return reqs, nil
}

func (t *gormTx) GameResultsForChild(childID string) ([]model.GameResult, error) {
	var results []model.GameResult
	if err := t.db.Where("child_id = ?", childID).Order("completed_at ASC").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to list game results of child %s: %w", childID, err)
	}
	return results, nil
}

func (t *gormTx) GameResultForRequest(requestID string) (model.GameResult, error) {
	var result model.GameResult
	if err := t.db.First(&result, "request_id = ?", requestID).Error; err != nil {
		return result, notFound(err, "game result of request", requestID)
	}
	return result, nil
}

func (t *gormTx) AnalysisForRequest(requestID string) (model.AIAnalysis, error) {
	var analysis model.AIAnalysis
	if err := t.db.First(&analysis, "request_id = ?", requestID).Error; err != nil {
		return analysis, notFound(err, "analysis of request", requestID)
	}
	return analysis, nil
}

func (t *gormTx) ListPsychologists(approvedOnly bool) ([]model.Psychologist, error) {
	var list []model.Psychologist
	query := t.db.Model(&model.Psychologist{})
	if approvedOnly {
		query = query.Where("approved = ?", true)
	}
	err := query.Order("rating DESC").Order("completed_assessments DESC").Order("id ASC").Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list psychologists: %w", err)
	}
	return list, nil
}

func (t *gormTx) CreateChild(child *model.Child) error {
	if child.ID != "" {
		var n int64
		if err := t.db.Model(&model.Child{}).Where("id = ?", child.ID).Count(&n).Error; err != nil {
			return fmt.Errorf("failed to check child id: %w", err)
		}
		if n > 0 {
			return failf(ErrConflict, "child %s already exists", child.ID)
		}
	}
	if err := t.db.Create(child).Error; err != nil {
		return fmt.Errorf("failed to create child: %w", err)
	}
	return nil
}

func (t *gormTx) CreateRequest(req *model.AssessmentRequest) error {
	if err := t.db.Create(req).Error; err != nil {
		return fmt.Errorf("failed to create assessment request: %w", err)
	}
	return nil
}

func (t *gormTx) UpdateRequest(req *model.AssessmentRequest) error {
	if err := t.db.Save(req).Error; err != nil {
		return fmt.Errorf("failed to update assessment request %s: %w", req.ID, err)
	}
	return nil
}

func (t *gormTx) CreateGameResult(result *model.GameResult) error {
	if err := t.db.Create(result).Error; err != nil {
		return fmt.Errorf("failed to create game result: %w", err)
	}
	return nil
}

func (t *gormTx) CreateAnalysis(analysis *model.AIAnalysis) error {
	if err := t.db.Create(analysis).Error; err != nil {
		return fmt.Errorf("failed to create analysis: %w", err)
	}
	return nil
}

func (t *gormTx) TransitionChild(childID string, from, to model.ChildStatus, psychologistID *string) error {
	res := t.db.Model(&model.Child{}).
		Where("id = ? AND status = ?", childID, from).
		Updates(map[string]interface{}{"status": to, "psychologist_id": psychologistID})
	if res.Error != nil {
		return fmt.Errorf("failed to update child %s: %w", childID, res.Error)
	}
	if res.RowsAffected == 0 {
		return failf(ErrConflict, "child %s is no longer %s", childID, from)
	}
	return nil
}

func (t *gormTx) IncrementCompletedAssessments(psychologistID string) error {
	res := t.db.Model(&model.Psychologist{}).
		Where("id = ?", psychologistID).
		UpdateColumn("completed_assessments", gorm.Expr("completed_assessments + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("failed to update psychologist %s: %w", psychologistID, res.Error)
	}
	if res.RowsAffected == 0 {
		return failf(ErrNotFound, "psychologist %s not found", psychologistID)
	}
	return nil
}
