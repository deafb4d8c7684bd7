package endpoint

import (
	"errors"

	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/util"
	"github.com/gin-gonic/gin"
)

type GameResultRequest struct {
	ChildID string         `json:"child_id" binding:"required"`
	Answers []model.Answer `json:"answers" binding:"required"`
}

// childIDQuery accepts both the snake case and the legacy camel case name.
func childIDQuery(c *gin.Context) string {
	if id := c.Query("child_id"); id != "" {
		return id
	}
	return c.Query("childId")
}

// SubmitGameResult godoc
// @Summary      Submit interactive test answers
// @Description  Requires the child's assessment to be accepted. A result is never replaced.
// @Tags         Game Results
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body GameResultRequest true "Answers"
// @Success      201 {object} util.APIResponse{data=model.GameResult}
// @Failure      400 {object} util.APIResponse "Invalid answers"
// @Failure      412 {object} util.APIResponse "Assessment not accepted or already tested"
// @Router       /game-results [post]
func SubmitGameResult(c *gin.Context) {
	var req GameResultRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := engineFor(c).SubmitGameResult(c.Request.Context(), middleware.GetActor(c), req.ChildID, req.Answers)
	if err != nil {
		util.CallWorkflowError(c, "Failed to save game results", err)
		return
	}
	logEvent(c, util.EventGameResultSubmitted, "Game result submitted", map[string]interface{}{
		"child_id":  result.ChildID,
		"result_id": result.ID,
	})
	util.CallCreated(c, util.APISuccessParams{Msg: "Game results saved", Data: result})
}

// ListGameResults godoc
// @Summary      Game results of a child
// @Tags         Game Results
// @Produce      json
// @Security     BearerAuth
// @Param        child_id query string true "Child ID"
// @Success      200 {object} util.APIResponse{data=[]model.GameResult}
// @Failure      403 {object} util.APIResponse "No access"
// @Failure      404 {object} util.APIResponse "Child not found"
// @Router       /game-results [get]
func ListGameResults(c *gin.Context) {
	childID := childIDQuery(c)
	if childID == "" {
		util.CallUserError(c, util.APIErrorParams{Msg: "child_id is required", Err: errors.New("missing child_id")})
		return
	}
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	if _, err := childAccess(db, middleware.GetActor(c), childID); err != nil {
		util.CallWorkflowError(c, "Failed to get game results", err)
		return
	}
	var results []model.GameResult
	if err := db.Where("child_id = ?", childID).Order("completed_at DESC").Find(&results).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get game results", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Game results retrieved", Data: results})
}
