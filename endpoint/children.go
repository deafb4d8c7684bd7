package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/util"
	"github.com/ariebrainware/educe-api/workflow"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ChildRequest struct {
	ID        string   `json:"id" example:"3f1c2a9e-7d4b-4a51-9a57-1f0e9b8c2d11"`
	Name      string   `json:"name" example:"Aya"`
	Age       int      `json:"age" example:"8"`
	Gender    string   `json:"gender" example:"female"`
	Interests []string `json:"interests"`
	Notes     string   `json:"notes"`
	// Status is accepted only when it equals the stored value; the workflow
	// owns every status change.
	Status model.ChildStatus `json:"status,omitempty"`
}

func (r ChildRequest) input() workflow.ChildInput {
	return workflow.ChildInput{
		ID:        strings.TrimSpace(r.ID),
		Name:      util.NormalizeName(r.Name),
		Age:       r.Age,
		Gender:    strings.TrimSpace(r.Gender),
		Interests: r.Interests,
		Notes:     r.Notes,
	}
}

// ListChildren godoc
// @Summary      List own children
// @Tags         Children
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=[]model.Child}
// @Router       /children [get]
func ListChildren(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	userID, _ := middleware.GetUserID(c)
	var children []model.Child
	if err := db.Where("parent_id = ?", userID).Order("created_at DESC").Find(&children).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get children", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Children retrieved", Data: children})
}

// CreateChild godoc
// @Summary      Add a child
// @Description  The child starts in status available.
// @Tags         Children
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body ChildRequest true "Child details"
// @Success      201 {object} util.APIResponse{data=model.Child}
// @Failure      400 {object} util.APIResponse "Invalid child"
// @Router       /children [post]
func CreateChild(c *gin.Context) {
	var req ChildRequest
	if !bindJSON(c, &req) {
		return
	}
	child, err := engineFor(c).CreateChild(c.Request.Context(), middleware.GetActor(c), req.input())
	if err != nil {
		util.CallWorkflowError(c, "Failed to add child", err)
		return
	}
	logEvent(c, util.EventChildCreated, "Child added", map[string]interface{}{"child_id": child.ID})
	util.CallCreated(c, util.APISuccessParams{Msg: "Child added successfully", Data: child})
}

// GetChild godoc
// @Summary      Get a child
// @Description  Visible to the parent, psychologists the child was assigned to and admins.
// @Tags         Children
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Child ID"
// @Success      200 {object} util.APIResponse{data=model.Child}
// @Failure      403 {object} util.APIResponse "No access"
// @Failure      404 {object} util.APIResponse "Child not found"
// @Router       /children/{id} [get]
func GetChild(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	child, err := childAccess(db, middleware.GetActor(c), c.Param("id"))
	if err != nil {
		util.CallWorkflowError(c, "Failed to get child", err)
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Child retrieved", Data: child})
}

// UpdateChild godoc
// @Summary      Update a child
// @Description  Replaces the descriptive fields. The status cannot be changed here.
// @Tags         Children
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Child ID"
// @Param        request body ChildRequest true "Child details"
// @Success      200 {object} util.APIResponse{data=model.Child}
// @Failure      400 {object} util.APIResponse "Invalid child or status change"
// @Failure      403 {object} util.APIResponse "Not the parent"
// @Failure      404 {object} util.APIResponse "Child not found"
// @Router       /children/{id} [put]
func UpdateChild(c *gin.Context) {
	var req ChildRequest
	if !bindJSON(c, &req) {
		return
	}
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	child, err := ownChild(db, middleware.GetActor(c), c.Param("id"))
	if err != nil {
		util.CallWorkflowError(c, "Failed to update child", err)
		return
	}

	if req.Status != "" && req.Status != child.Status {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Child status is managed by the assessment workflow",
			Err: fmt.Errorf("%w: status change %s -> %s", workflow.ErrValidation, child.Status, req.Status),
		})
		return
	}
	in := req.input()
	if err := in.Validate(); err != nil {
		util.CallWorkflowError(c, "Failed to update child", err)
		return
	}

	child.Name = in.Name
	child.Age = in.Age
	child.Gender = in.Gender
	child.Interests = in.Interests
	child.Notes = in.Notes
	if err := db.Model(&child).Select("name", "age", "gender", "interests", "notes").Updates(&child).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update child", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Child updated successfully", Data: child})
}

// DeleteChild godoc
// @Summary      Delete a child
// @Description  Removes the child with its requests, game results and analyses.
// @Tags         Children
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Child ID"
// @Success      200 {object} util.APIResponse "Deleted"
// @Failure      403 {object} util.APIResponse "Not the parent"
// @Failure      404 {object} util.APIResponse "Child not found"
// @Router       /children/{id} [delete]
func DeleteChild(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	child, err := ownChild(db, middleware.GetActor(c), c.Param("id"))
	if err != nil {
		util.CallWorkflowError(c, "Failed to delete child", err)
		return
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		return deleteChildren(tx, []string{child.ID})
	})
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to delete child", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Child deleted successfully"})
}
