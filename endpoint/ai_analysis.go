package endpoint

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ariebrainware/educe-api/logger"
	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/util"
	"github.com/ariebrainware/educe-api/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type AnalysisRequest struct {
	ChildID        string `json:"child_id" binding:"required"`
	PsychologistID string `json:"psychologist_id"`
	Grade          string `json:"grade" example:"Grade 3"`
	model.Scores
	Interests    []string `json:"interests"`
	Observations string   `json:"observations"`
	// Report is composed from the answers and scores when left empty.
	Report string `json:"report"`
}

func (r AnalysisRequest) input() workflow.ReportInput {
	return workflow.ReportInput{
		ChildID:        r.ChildID,
		PsychologistID: r.PsychologistID,
		Grade:          strings.TrimSpace(r.Grade),
		Scores:         r.Scores,
		Interests:      r.Interests,
		Observations:   r.Observations,
		Report:         r.Report,
	}
}

// archiveReport copies the report to the archive. Failures are logged only,
// the analysis is already committed.
func (h *Handler) archiveReport(c *gin.Context, db *gorm.DB, analysis *model.AIAnalysis) {
	key, err := h.Archiver.Archive(c.Request.Context(), *analysis)
	if err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"analysis_id": analysis.ID,
			"child_id":    analysis.ChildID,
		}).Warn("failed to archive report")
		return
	}
	if key == "" {
		return
	}
	if err := db.Model(&model.AIAnalysis{}).Where("id = ?", analysis.ID).Update("archive_key", key).Error; err != nil {
		logger.Log.WithError(err).WithField("analysis_id", analysis.ID).Warn("failed to store archive key")
		return
	}
	analysis.ArchiveKey = key
}

// SubmitAnalysis godoc
// @Summary      Submit the assessment report
// @Description  Requires the interactive test to be completed. Completes the assessment.
// @Tags         AI Analysis
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body AnalysisRequest true "Scores and report"
// @Success      201 {object} util.APIResponse{data=model.AIAnalysis}
// @Failure      400 {object} util.APIResponse "Invalid scores"
// @Failure      403 {object} util.APIResponse "Child assigned to another psychologist"
// @Failure      412 {object} util.APIResponse "Test not completed"
// @Router       /ai-analysis [post]
func (h *Handler) SubmitAnalysis(c *gin.Context) {
	var req AnalysisRequest
	if !bindJSON(c, &req) {
		return
	}
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	analysis, err := engineFor(c).SubmitReport(c.Request.Context(), middleware.GetActor(c), req.input())
	if err != nil {
		util.CallWorkflowError(c, "Failed to save analysis", err)
		return
	}
	h.archiveReport(c, db, &analysis)

	logEvent(c, util.EventReportSubmitted, "Assessment report submitted", map[string]interface{}{
		"child_id":    analysis.ChildID,
		"analysis_id": analysis.ID,
		"archived":    analysis.ArchiveKey != "",
	})
	util.CallCreated(c, util.APISuccessParams{Msg: "Analysis saved and assessment completed", Data: analysis})
}

func latestAnalysis(c *gin.Context) (model.Child, model.AIAnalysis, bool) {
	var analysis model.AIAnalysis
	db, ok := getDBOrRespond(c)
	if !ok {
		return model.Child{}, analysis, false
	}
	child, err := childAccess(db, middleware.GetActor(c), c.Param("childId"))
	if err != nil {
		util.CallWorkflowError(c, "Failed to get analysis", err)
		return child, analysis, false
	}
	err = db.Where("child_id = ?", child.ID).Order("created_at DESC").Take(&analysis).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "No analysis for this child yet", Err: err})
		return child, analysis, false
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get analysis", Err: err})
		return child, analysis, false
	}
	return child, analysis, true
}

// GetAnalysis godoc
// @Summary      Latest analysis of a child
// @Tags         AI Analysis
// @Produce      json
// @Security     BearerAuth
// @Param        childId path string true "Child ID"
// @Success      200 {object} util.APIResponse{data=model.AIAnalysis}
// @Failure      403 {object} util.APIResponse "No access"
// @Failure      404 {object} util.APIResponse "No analysis"
// @Router       /ai-analysis/{childId} [get]
func GetAnalysis(c *gin.Context) {
	_, analysis, ok := latestAnalysis(c)
	if !ok {
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Analysis retrieved", Data: analysis})
}

// DownloadReport godoc
// @Summary      Download the report of a child
// @Tags         AI Analysis
// @Produce      plain
// @Security     BearerAuth
// @Param        childId path string true "Child ID"
// @Success      200 {string} string "Report text"
// @Failure      404 {object} util.APIResponse "No analysis"
// @Router       /ai-analysis/{childId}/download [get]
func DownloadReport(c *gin.Context) {
	child, analysis, ok := latestAnalysis(c)
	if !ok {
		return
	}
	name := strings.ToLower(strings.Join(strings.Fields(child.Name), "-"))
	filename := fmt.Sprintf("educe-report-%s-%s.txt", name, analysis.AssessmentDate.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(analysis.Report))
}
