package endpoint

import (
	"errors"
	"fmt"

	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/workflow"
	"gorm.io/gorm"
)

func findChild(db *gorm.DB, childID string) (model.Child, error) {
	var child model.Child
	err := db.Where("id = ?", childID).Take(&child).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return child, fmt.Errorf("%w: child %s not found", workflow.ErrNotFound, childID)
	}
	return child, err
}

func psychologistOf(db *gorm.DB, userID uint) (model.Psychologist, error) {
	var p model.Psychologist
	err := db.Where("user_id = ?", userID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, fmt.Errorf("%w: psychologist profile not found", workflow.ErrNotFound)
	}
	return p, err
}

// childAccess loads a child the actor may read: the parent, a psychologist
// the child was ever assigned to, or an admin.
func childAccess(db *gorm.DB, actor workflow.Actor, childID string) (model.Child, error) {
	child, err := findChild(db, childID)
	if err != nil {
		return child, err
	}

	denied := fmt.Errorf("%w: no access to child %s", workflow.ErrAuthorization, childID)
	switch actor.Role {
	case model.RoleAdmin:
		return child, nil
	case model.RoleCustomer:
		if child.ParentID == actor.UserID {
			return child, nil
		}
		return child, denied
	case model.RolePsychologist:
		psych, err := psychologistOf(db, actor.UserID)
		if errors.Is(err, workflow.ErrNotFound) {
			return child, denied
		}
		if err != nil {
			return child, err
		}
		if child.PsychologistID != nil && *child.PsychologistID == psych.ID {
			return child, nil
		}
		var n int64
		if err := db.Model(&model.AssessmentRequest{}).
			Where("child_id = ? AND psychologist_id = ?", child.ID, psych.ID).
			Count(&n).Error; err != nil {
			return child, err
		}
		if n > 0 {
			return child, nil
		}
	}
	return child, denied
}

// ownChild loads a child owned by the calling parent.
func ownChild(db *gorm.DB, actor workflow.Actor, childID string) (model.Child, error) {
	child, err := findChild(db, childID)
	if err != nil {
		return child, err
	}
	if child.ParentID != actor.UserID {
		return child, fmt.Errorf("%w: child %s belongs to another parent", workflow.ErrAuthorization, childID)
	}
	return child, nil
}

// deleteChildren removes children together with their requests, game results
// and analyses. Must run inside a transaction.
func deleteChildren(tx *gorm.DB, childIDs []string) error {
	if len(childIDs) == 0 {
		return nil
	}
	for _, m := range []interface{}{&model.AIAnalysis{}, &model.GameResult{}, &model.AssessmentRequest{}} {
		if err := tx.Where("child_id IN ?", childIDs).Delete(m).Error; err != nil {
			return err
		}
	}
	return tx.Where("id IN ?", childIDs).Delete(&model.Child{}).Error
}
