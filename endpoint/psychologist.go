package endpoint

import (
	"errors"
	"strings"

	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/util"
	"github.com/ariebrainware/educe-api/workflow"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type UpdatePsychologistRequest struct {
	Name            *string   `json:"name" example:"Dr. Sarah Johnson"`
	Title           *string   `json:"title" example:"Child Psychologist"`
	Specializations *[]string `json:"specializations"`
	Experience      *string   `json:"experience" example:"5+ years"`
	Description     *string   `json:"description"`
	Available       *bool     `json:"available"`
}

// ListPsychologists godoc
// @Summary      List psychologists
// @Description  Approved psychologists ranked by rating, then completed assessments. Admins also see unapproved profiles.
// @Tags         Psychologists
// @Produce      json
// @Success      200 {object} util.APIResponse{data=[]model.Psychologist}
// @Router       /psychologists [get]
func ListPsychologists(c *gin.Context) {
	list, err := engineFor(c).ListPsychologists(c.Request.Context(), middleware.GetActor(c))
	if err != nil {
		util.CallWorkflowError(c, "Failed to get psychologists", err)
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Psychologists retrieved", Data: list})
}

// GetPsychologist godoc
// @Summary      Get a psychologist
// @Tags         Psychologists
// @Produce      json
// @Param        id path string true "Psychologist ID"
// @Success      200 {object} util.APIResponse{data=model.Psychologist}
// @Failure      404 {object} util.APIResponse "Psychologist not found"
// @Router       /psychologists/{id} [get]
func GetPsychologist(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	var p model.Psychologist
	err := db.Where("id = ?", c.Param("id")).Take(&p).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get psychologist", Err: err})
		return
	}

	actor := middleware.GetActor(c)
	hidden := !p.Approved && actor.Role != model.RoleAdmin && p.UserID != actor.UserID
	if errors.Is(err, gorm.ErrRecordNotFound) || hidden {
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "Psychologist not found", Err: workflow.ErrNotFound})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Psychologist retrieved", Data: p})
}

// GetMyPsychologistProfile godoc
// @Summary      Get own psychologist profile
// @Tags         Psychologists
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=model.Psychologist}
// @Failure      404 {object} util.APIResponse "Psychologist profile not found"
// @Router       /psychologists/me [get]
func GetMyPsychologistProfile(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(c)
	p, err := psychologistOf(db, userID)
	if err != nil {
		util.CallWorkflowError(c, "Failed to get profile", err)
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Profile retrieved", Data: p})
}

// UpdateMyPsychologistProfile godoc
// @Summary      Update own psychologist profile
// @Description  Approval, rating and completed assessments are not editable here.
// @Tags         Psychologists
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdatePsychologistRequest true "Profile fields"
// @Success      200 {object} util.APIResponse{data=model.Psychologist}
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      404 {object} util.APIResponse "Psychologist profile not found"
// @Router       /psychologists/me [put]
func UpdateMyPsychologistProfile(c *gin.Context) {
	var req UpdatePsychologistRequest
	if !bindJSON(c, &req) {
		return
	}
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(c)
	p, err := psychologistOf(db, userID)
	if err != nil {
		util.CallWorkflowError(c, "Failed to update profile", err)
		return
	}

	if req.Name != nil {
		name := util.NormalizeName(*req.Name)
		if name == "" {
			util.CallUserError(c, util.APIErrorParams{Msg: "Name cannot be empty", Err: errors.New("empty name")})
			return
		}
		p.Name = name
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			util.CallUserError(c, util.APIErrorParams{Msg: "Title cannot be empty", Err: errors.New("empty title")})
			return
		}
		p.Title = title
	}
	if req.Specializations != nil {
		p.Specializations = *req.Specializations
	}
	if req.Experience != nil {
		p.Experience = strings.TrimSpace(*req.Experience)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Available != nil {
		p.Available = *req.Available
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&p).
			Select("name", "title", "specializations", "experience", "description", "available").
			Updates(&p).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).Where("id = ?", userID).Update("name", p.Name).Error
	})
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update profile", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Profile updated successfully", Data: p})
}
