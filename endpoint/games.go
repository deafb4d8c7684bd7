package endpoint

import (
	"github.com/ariebrainware/educe-api/games"
	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/util"
	"github.com/gin-gonic/gin"
)

type StartSessionRequest struct {
	ChildID string `json:"child_id" binding:"required"`
}

type AnswerRequest struct {
	Answer string `json:"answer" binding:"required" example:"Blue - Calm and peaceful"`
}

type catalogView struct {
	Games          []games.Game `json:"games"`
	TotalQuestions int          `json:"total_questions"`
}

// ListGames godoc
// @Summary      Interactive test catalog
// @Tags         Games
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=catalogView}
// @Router       /games [get]
func (h *Handler) ListGames(c *gin.Context) {
	util.CallSuccessOK(c, util.APISuccessParams{
		Msg:  "Games retrieved",
		Data: catalogView{Games: h.Games.Catalog.Games, TotalQuestions: h.Games.Catalog.Len()},
	})
}

func (h *Handler) respondSession(c *gin.Context, s *games.Session, err error, fallback string) {
	if err != nil {
		util.CallWorkflowError(c, fallback, err)
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Game session updated", Data: games.ViewOf(h.Games.Catalog, s)})
}

// StartGameSession godoc
// @Summary      Start the interactive test
// @Description  Requires the child's assessment to be accepted by the psychologist.
// @Tags         Games
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body StartSessionRequest true "Child"
// @Success      201 {object} util.APIResponse{data=games.View}
// @Failure      412 {object} util.APIResponse "Assessment not accepted"
// @Router       /game-sessions [post]
func (h *Handler) StartGameSession(c *gin.Context) {
	var req StartSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.Games.Start(c.Request.Context(), engineFor(c), middleware.GetActor(c), req.ChildID)
	if err != nil {
		util.CallWorkflowError(c, "Failed to start game session", err)
		return
	}
	util.CallCreated(c, util.APISuccessParams{Msg: "Game session started", Data: games.ViewOf(h.Games.Catalog, s)})
}

// GetGameSession godoc
// @Summary      Get a game session
// @Tags         Games
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Success      200 {object} util.APIResponse{data=games.View}
// @Failure      404 {object} util.APIResponse "Session not found or expired"
// @Router       /game-sessions/{id} [get]
func (h *Handler) GetGameSession(c *gin.Context) {
	s, err := h.Games.Get(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	h.respondSession(c, s, err, "Failed to get game session")
}

// AnswerGameSession godoc
// @Summary      Answer the current question
// @Tags         Games
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Param        request body AnswerRequest true "Chosen option"
// @Success      200 {object} util.APIResponse{data=games.View}
// @Failure      400 {object} util.APIResponse "Unknown option"
// @Router       /game-sessions/{id}/answer [put]
func (h *Handler) AnswerGameSession(c *gin.Context) {
	var req AnswerRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.Games.Answer(c.Request.Context(), middleware.GetActor(c), c.Param("id"), req.Answer)
	h.respondSession(c, s, err, "Failed to record answer")
}

// NextGameQuestion godoc
// @Summary      Move to the next question
// @Tags         Games
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Success      200 {object} util.APIResponse{data=games.View}
// @Failure      400 {object} util.APIResponse "Current question unanswered or last question"
// @Router       /game-sessions/{id}/next [post]
func (h *Handler) NextGameQuestion(c *gin.Context) {
	s, err := h.Games.Next(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	h.respondSession(c, s, err, "Failed to move to the next question")
}

// PreviousGameQuestion godoc
// @Summary      Move to the previous question
// @Tags         Games
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Success      200 {object} util.APIResponse{data=games.View}
// @Router       /game-sessions/{id}/previous [post]
func (h *Handler) PreviousGameQuestion(c *gin.Context) {
	s, err := h.Games.Previous(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	h.respondSession(c, s, err, "Failed to move to the previous question")
}

// FinishGameSession godoc
// @Summary      Finish the interactive test
// @Description  Stores the answers as the child's game result.
// @Tags         Games
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Session ID"
// @Success      201 {object} util.APIResponse{data=model.GameResult}
// @Failure      400 {object} util.APIResponse "Unanswered questions"
// @Failure      412 {object} util.APIResponse "Assessment not accepted or already tested"
// @Router       /game-sessions/{id}/finish [post]
func (h *Handler) FinishGameSession(c *gin.Context) {
	result, err := h.Games.Finish(c.Request.Context(), engineFor(c), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		util.CallWorkflowError(c, "Failed to finish game session", err)
		return
	}
	logEvent(c, util.EventGameResultSubmitted, "Interactive test completed", map[string]interface{}{
		"child_id":  result.ChildID,
		"result_id": result.ID,
	})
	util.CallCreated(c, util.APISuccessParams{Msg: "Games completed successfully", Data: result})
}
