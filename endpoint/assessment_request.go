package endpoint

import (
	"errors"

	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/util"
	"github.com/ariebrainware/educe-api/workflow"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type CreateAssessmentRequest struct {
	ChildID        string `json:"child_id" binding:"required"`
	PsychologistID string `json:"psychologist_id" binding:"required"`
	Message        string `json:"message" example:"Please assess Aya"`
}

type RespondRequest struct {
	Accepted *bool  `json:"accepted" binding:"required"`
	Reason   string `json:"reason" example:"Fully booked this month"`
}

type childSummary struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Age    int               `json:"age"`
	Gender string            `json:"gender"`
	Status model.ChildStatus `json:"status"`
}

// requestView is an assessment request with the names a dashboard shows.
type requestView struct {
	model.AssessmentRequest
	Child            *childSummary `json:"child,omitempty"`
	PsychologistName string        `json:"psychologist_name,omitempty"`
}

func viewsOfRequests(db *gorm.DB, reqs []model.AssessmentRequest) ([]requestView, error) {
	var children []model.Child
	childIDs := lo.Uniq(lo.Map(reqs, func(r model.AssessmentRequest, _ int) string { return r.ChildID }))
	if len(childIDs) > 0 {
		if err := db.Where("id IN ?", childIDs).Find(&children).Error; err != nil {
			return nil, err
		}
	}
	var psychs []model.Psychologist
	psychIDs := lo.Uniq(lo.Map(reqs, func(r model.AssessmentRequest, _ int) string { return r.PsychologistID }))
	if len(psychIDs) > 0 {
		if err := db.Where("id IN ?", psychIDs).Find(&psychs).Error; err != nil {
			return nil, err
		}
	}

	childByID := lo.KeyBy(children, func(ch model.Child) string { return ch.ID })
	psychByID := lo.KeyBy(psychs, func(p model.Psychologist) string { return p.ID })
	return lo.Map(reqs, func(r model.AssessmentRequest, _ int) requestView {
		v := requestView{AssessmentRequest: r, PsychologistName: psychByID[r.PsychologistID].Name}
		if ch, ok := childByID[r.ChildID]; ok {
			v.Child = &childSummary{ID: ch.ID, Name: ch.Name, Age: ch.Age, Gender: ch.Gender, Status: ch.Status}
		}
		return v
	}), nil
}

// CreateAssessmentRequestHandler godoc
// @Summary      Select a psychologist for a child
// @Description  Opens a pending assessment request. The child must be available and the psychologist approved and available.
// @Tags         Assessment Requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CreateAssessmentRequest true "Selection"
// @Success      201 {object} util.APIResponse{data=model.AssessmentRequest}
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      403 {object} util.APIResponse "Not the parent"
// @Failure      404 {object} util.APIResponse "Child or psychologist not found"
// @Failure      409 {object} util.APIResponse "Concurrent change"
// @Failure      412 {object} util.APIResponse "Child not available"
// @Router       /assessment-requests [post]
func CreateAssessmentRequestHandler(c *gin.Context) {
	var req CreateAssessmentRequest
	if !bindJSON(c, &req) {
		return
	}
	created, err := engineFor(c).SelectPsychologist(c.Request.Context(), middleware.GetActor(c), req.ChildID, req.PsychologistID, req.Message)
	if err != nil {
		util.CallWorkflowError(c, "Failed to create assessment request", err)
		return
	}
	logEvent(c, util.EventRequestCreated, "Assessment request created", map[string]interface{}{
		"request_id":      created.ID,
		"child_id":        created.ChildID,
		"psychologist_id": created.PsychologistID,
	})
	util.CallCreated(c, util.APISuccessParams{Msg: "Assessment request sent", Data: created})
}

// ListAssessmentRequests godoc
// @Summary      List assessment requests
// @Description  Parents see their own requests, psychologists the ones assigned to them, admins all. Filter with ?status=.
// @Tags         Assessment Requests
// @Produce      json
// @Security     BearerAuth
// @Param        status query string false "Request status"
// @Success      200 {object} util.APIResponse{data=[]requestView}
// @Router       /assessment-requests [get]
func ListAssessmentRequests(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	actor := middleware.GetActor(c)

	q := db.Model(&model.AssessmentRequest{})
	switch actor.Role {
	case model.RoleCustomer:
		q = q.Where("parent_id = ?", actor.UserID)
	case model.RolePsychologist:
		psych, err := psychologistOf(db, actor.UserID)
		if errors.Is(err, workflow.ErrNotFound) {
			util.CallSuccessOK(c, util.APISuccessParams{Msg: "Assessment requests retrieved", Data: []requestView{}})
			return
		}
		if err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get assessment requests", Err: err})
			return
		}
		q = q.Where("psychologist_id = ?", psych.ID)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}

	var reqs []model.AssessmentRequest
	if err := q.Order("created_at DESC").Find(&reqs).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get assessment requests", Err: err})
		return
	}
	views, err := viewsOfRequests(db, reqs)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get assessment requests", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Assessment requests retrieved", Data: views})
}

// RespondToAssessmentRequest godoc
// @Summary      Accept or reject an assessment request
// @Description  A rejection returns the child to available.
// @Tags         Assessment Requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Request ID"
// @Param        request body RespondRequest true "Decision"
// @Success      200 {object} util.APIResponse{data=model.AssessmentRequest}
// @Failure      403 {object} util.APIResponse "Assigned to another psychologist"
// @Failure      404 {object} util.APIResponse "Request not found"
// @Failure      412 {object} util.APIResponse "Request not pending"
// @Router       /assessment-requests/{id}/respond [put]
func RespondToAssessmentRequest(c *gin.Context) {
	var req RespondRequest
	if !bindJSON(c, &req) {
		return
	}
	updated, err := engineFor(c).RespondToRequest(c.Request.Context(), middleware.GetActor(c), c.Param("id"), *req.Accepted, req.Reason)
	if err != nil {
		util.CallWorkflowError(c, "Failed to respond to assessment request", err)
		return
	}
	msg := "Assessment request rejected"
	if *req.Accepted {
		msg = "Assessment request accepted"
	}
	logEvent(c, util.EventRequestResponded, msg, map[string]interface{}{
		"request_id": updated.ID,
		"status":     string(updated.Status),
	})
	util.CallSuccessOK(c, util.APISuccessParams{Msg: msg, Data: updated})
}

// CancelAssessmentRequest godoc
// @Summary      Cancel a pending assessment request
// @Tags         Assessment Requests
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Request ID"
// @Success      200 {object} util.APIResponse{data=model.AssessmentRequest}
// @Failure      403 {object} util.APIResponse "Not the parent"
// @Failure      404 {object} util.APIResponse "Request not found"
// @Failure      412 {object} util.APIResponse "Request not pending"
// @Router       /assessment-requests/{id}/cancel [put]
func CancelAssessmentRequest(c *gin.Context) {
	updated, err := engineFor(c).CancelRequest(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		util.CallWorkflowError(c, "Failed to cancel assessment request", err)
		return
	}
	logEvent(c, util.EventRequestCancelled, "Assessment request cancelled", map[string]interface{}{"request_id": updated.ID})
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Assessment request cancelled", Data: updated})
}
