package endpoint

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/util"
	"github.com/ariebrainware/educe-api/workflow"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type ApprovalRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Reason   string `json:"reason" example:"Credentials verified"`
}

type adminPsychologistView struct {
	model.Psychologist
	Email         string    `json:"email"`
	UserCreatedAt time.Time `json:"user_created_at"`
}

type Stats struct {
	TotalUsers            int64 `json:"total_users"`
	PendingPsychologists  int64 `json:"pending_psychologists"`
	ApprovedPsychologists int64 `json:"approved_psychologists"`
	TotalAssessments      int64 `json:"total_assessments"`
	CompletedAssessments  int64 `json:"completed_assessments"`

	GeoIPCache GeoIPCacheStats `json:"geoip_cache"`
}

// GeoIPCacheStats reports the location lookup cache used by the activity log.
type GeoIPCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

const (
	defaultActivityLimit = 100
	maxActivityLimit     = 500
)

// ListAllPsychologists godoc
// @Summary      All psychologist profiles
// @Description  Newest first, including unapproved and rejected profiles.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=[]adminPsychologistView}
// @Router       /admin/psychologists [get]
func ListAllPsychologists(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	var psychs []model.Psychologist
	if err := db.Order("created_at DESC").Find(&psychs).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get psychologists", Err: err})
		return
	}
	var users []model.User
	userIDs := lo.Map(psychs, func(p model.Psychologist, _ int) uint { return p.UserID })
	if len(userIDs) > 0 {
		if err := db.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get psychologists", Err: err})
			return
		}
	}
	userByID := lo.KeyBy(users, func(u model.User) uint { return u.ID })
	views := lo.Map(psychs, func(p model.Psychologist, _ int) adminPsychologistView {
		u := userByID[p.UserID]
		return adminPsychologistView{Psychologist: p, Email: u.Email, UserCreatedAt: u.CreatedAt}
	})
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Psychologists retrieved", Data: views})
}

// ReviewPsychologist godoc
// @Summary      Approve or reject a psychologist
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Psychologist ID"
// @Param        request body ApprovalRequest true "Decision"
// @Success      200 {object} util.APIResponse{data=model.Psychologist}
// @Failure      404 {object} util.APIResponse "Psychologist not found"
// @Router       /admin/psychologists/{id}/approval [put]
func ReviewPsychologist(c *gin.Context) {
	var req ApprovalRequest
	if !bindJSON(c, &req) {
		return
	}
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	claims, _ := middleware.GetClaims(c)
	reviewer := ""
	if claims != nil {
		reviewer = claims.Email
	}

	var p model.Psychologist
	err := db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", c.Param("id")).Take(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: psychologist %s not found", workflow.ErrNotFound, c.Param("id"))
		}
		if err != nil {
			return err
		}

		now := time.Now()
		if *req.Approved {
			p.Approved, p.ApprovedBy, p.ApprovedAt = true, reviewer, &now
			p.RejectedBy, p.RejectedAt = "", nil
		} else {
			p.Approved, p.ApprovedBy, p.ApprovedAt = false, "", nil
			p.RejectedBy, p.RejectedAt = reviewer, &now
		}
		if err := tx.Model(&p).
			Select("approved", "approved_by", "approved_at", "rejected_by", "rejected_at").
			Updates(&p).Error; err != nil {
			return err
		}
		return tx.Model(&model.User{}).Where("id = ?", p.UserID).Update("approved", p.Approved).Error
	})
	if err != nil {
		util.CallWorkflowError(c, "Failed to update approval status", err)
		return
	}
	util.ForgetAccount(p.UserID)

	decision := "rejected"
	if p.Approved {
		decision = "approved"
	}
	logEvent(c, util.EventPsychologistApproval, "Psychologist "+decision, map[string]interface{}{
		"psychologist_id": p.ID,
		"reason":          req.Reason,
	})
	util.CallSuccessOK(c, util.APISuccessParams{Msg: fmt.Sprintf("Psychologist %s successfully", decision), Data: p})
}

// GetStats godoc
// @Summary      Platform statistics
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=Stats}
// @Router       /admin/stats [get]
func GetStats(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	var s Stats
	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&s.TotalUsers, db.Model(&model.User{})},
		{&s.PendingPsychologists, db.Model(&model.Psychologist{}).Where("approved = ?", false)},
		{&s.ApprovedPsychologists, db.Model(&model.Psychologist{}).Where("approved = ?", true)},
		{&s.TotalAssessments, db.Model(&model.AssessmentRequest{})},
		{&s.CompletedAssessments, db.Model(&model.AssessmentRequest{}).Where("status = ?", model.RequestCompleted)},
	}
	for _, q := range counts {
		if err := q.query.Count(q.dst).Error; err != nil {
			util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get statistics", Err: err})
			return
		}
	}
	s.GeoIPCache.Hits, s.GeoIPCache.Misses, s.GeoIPCache.Size = util.GetGeoIPCacheMetrics()
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Statistics retrieved", Data: s})
}

// ResetRateLimit godoc
// @Summary      Clear the rate limit counter of a client IP
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        ip path string true "Client IP"
// @Success      200 {object} util.APIResponse "Counter cleared"
// @Failure      400 {object} util.APIResponse "Invalid IP"
// @Failure      503 {object} util.APIResponse "Rate limiting disabled"
// @Router       /admin/rate-limits/{ip} [delete]
func ResetRateLimit(c *gin.Context) {
	ip := net.ParseIP(c.Param("ip"))
	if ip == nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid IP address", Err: fmt.Errorf("parse ip %q", c.Param("ip"))})
		return
	}
	err := middleware.ResetRateLimit(c.Request.Context(), middleware.APIRateLimitScope, ip.String())
	switch {
	case errors.Is(err, middleware.ErrRateLimitDisabled):
		util.CallServiceUnavailable(c, util.APIErrorParams{Msg: "Rate limiting is disabled", Err: err})
		return
	case err != nil:
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to reset rate limit", Err: err})
		return
	}
	logEvent(c, util.EventRateLimitReset, "Rate limit counter cleared", map[string]interface{}{"client_ip": ip.String()})
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Rate limit counter cleared", Data: gin.H{"ip": ip.String()}})
}

// DeleteUser godoc
// @Summary      Delete an account
// @Description  Removes the user, their children with everything attached and their psychologist profile. Psychologists with open requests cannot be deleted.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "User ID"
// @Success      200 {object} util.APIResponse "Deleted"
// @Failure      400 {object} util.APIResponse "Invalid id or own account"
// @Failure      404 {object} util.APIResponse "User not found"
// @Failure      412 {object} util.APIResponse "Psychologist has open requests"
// @Router       /admin/users/{id} [delete]
func DeleteUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid user id", Err: fmt.Errorf("parse user id %q: %v", c.Param("id"), err)})
		return
	}
	userID := uint(id)
	if self, _ := middleware.GetUserID(c); self == userID {
		util.CallUserError(c, util.APIErrorParams{Msg: "Admins cannot delete their own account", Err: errors.New("self deletion")})
		return
	}
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		var user model.User
		err := tx.Take(&user, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: user %d not found", workflow.ErrNotFound, userID)
		}
		if err != nil {
			return err
		}

		var psych model.Psychologist
		err = tx.Where("user_id = ?", userID).Take(&psych).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			var open int64
			if err := tx.Model(&model.AssessmentRequest{}).
				Where("psychologist_id = ? AND status IN ?", psych.ID, []model.RequestStatus{model.RequestPending, model.RequestAccepted}).
				Count(&open).Error; err != nil {
				return err
			}
			if open > 0 {
				return fmt.Errorf("%w: psychologist has %d open assessment requests", workflow.ErrPreconditionFailed, open)
			}
			if err := tx.Delete(&psych).Error; err != nil {
				return err
			}
		}

		var childIDs []string
		if err := tx.Model(&model.Child{}).Where("parent_id = ?", userID).Pluck("id", &childIDs).Error; err != nil {
			return err
		}
		if err := deleteChildren(tx, childIDs); err != nil {
			return err
		}
		return tx.Unscoped().Delete(&user).Error
	})
	if err != nil {
		util.CallWorkflowError(c, "Failed to delete user", err)
		return
	}
	util.ForgetAccount(userID)

	logEvent(c, util.EventUserDeleted, "User deleted", map[string]interface{}{"deleted_user_id": userID})
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "User deleted successfully"})
}

// ListActivity godoc
// @Summary      Recent activity log
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Param        event query string false "Event type"
// @Param        user_id query int false "User ID"
// @Param        limit query int false "Max entries, default 100, at most 500"
// @Success      200 {object} util.APIResponse{data=[]model.ActivityLog}
// @Router       /admin/activity [get]
func ListActivity(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultActivityLimit)))
	if err != nil || limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	q := db.Model(&model.ActivityLog{})
	if event := c.Query("event"); event != "" {
		q = q.Where("event = ?", event)
	}
	if uid := c.Query("user_id"); uid != "" {
		q = q.Where("user_id = ?", uid)
	}
	var entries []model.ActivityLog
	if err := q.Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get activity", Err: err})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Activity retrieved", Data: entries})
}
