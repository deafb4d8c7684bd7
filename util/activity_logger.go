package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ariebrainware/educe-api/logger"
	"github.com/ariebrainware/educe-api/model"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ActivityEventType names an account or workflow event.
type ActivityEventType string

const (
	EventRegister             ActivityEventType = "REGISTER"
	EventLoginSuccess         ActivityEventType = "LOGIN_SUCCESS"
	EventLoginFailure         ActivityEventType = "LOGIN_FAILURE"
	EventLogout               ActivityEventType = "LOGOUT"
	EventUnauthorizedAccess   ActivityEventType = "UNAUTHORIZED_ACCESS"
	EventRateLimitExceeded    ActivityEventType = "RATE_LIMIT_EXCEEDED"
	EventEndpointCall         ActivityEventType = "ENDPOINT_CALL"
	EventChildCreated         ActivityEventType = "CHILD_CREATED"
	EventRequestCreated       ActivityEventType = "REQUEST_CREATED"
	EventRequestResponded     ActivityEventType = "REQUEST_RESPONDED"
	EventRequestCancelled     ActivityEventType = "REQUEST_CANCELLED"
	EventGameResultSubmitted  ActivityEventType = "GAME_RESULT_SUBMITTED"
	EventReportSubmitted      ActivityEventType = "REPORT_SUBMITTED"
	EventPsychologistApproval ActivityEventType = "PSYCHOLOGIST_APPROVAL"
	EventUserDeleted          ActivityEventType = "USER_DELETED"
	EventRateLimitReset       ActivityEventType = "RATE_LIMIT_RESET"
)

// ActivityEvent is one event to log and persist.
type ActivityEvent struct {
	Type      ActivityEventType
	UserID    uint
	Role      model.Role
	IP        string
	UserAgent string
	Message   string
	Details   map[string]interface{}
}

var activityDB *gorm.DB

// SetActivityLoggerDB sets the database events are persisted to. Call it
// during startup after the database is connected.
func SetActivityLoggerDB(db *gorm.DB) {
	activityDB = db
}

// sanitizeLogValue removes newlines and other characters that could break log parsing
func sanitizeLogValue(value string) string {
	value = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(value)
	if len(value) > 200 {
		value = value[:200] + "..."
	}
	return value
}

func formatLocation(city, country string) string {
	switch {
	case city != "" && country != "":
		return fmt.Sprintf("%s/%s", city, country)
	case country != "":
		return country
	}
	return city
}

// LogActivity writes the event to the application log and, best effort, to
// the activity_logs table.
func LogActivity(event ActivityEvent) {
	logger.Log.WithFields(logrus.Fields{
		"event":      string(event.Type),
		"user_id":    event.UserID,
		"role":       string(event.Role),
		"ip":         sanitizeLogValue(event.IP),
		"user_agent": sanitizeLogValue(event.UserAgent),
		"details":    len(event.Details),
	}).Info(sanitizeLogValue(event.Message))

	if activityDB == nil {
		return
	}

	var details datatypes.JSON
	if event.Details != nil {
		if b, err := json.Marshal(event.Details); err == nil {
			details = datatypes.JSON(b)
		}
	}

	entry := model.ActivityLog{
		Event:     string(event.Type),
		UserID:    event.UserID,
		Role:      string(event.Role),
		IP:        sanitizeLogValue(event.IP),
		Location:  sanitizeLogValue(formatLocation(GetIPLocation(event.IP))),
		UserAgent: sanitizeLogValue(event.UserAgent),
		Message:   sanitizeLogValue(event.Message),
		Details:   details,
	}
	if err := activityDB.Create(&entry).Error; err != nil {
		logger.Log.WithError(err).Warn("failed to persist activity event")
	}
}

// LogLoginSuccess logs a successful login event
func LogLoginSuccess(userID uint, role model.Role, ip, userAgent string) {
	LogActivity(ActivityEvent{
		Type:      EventLoginSuccess,
		UserID:    userID,
		Role:      role,
		IP:        ip,
		UserAgent: userAgent,
		Message:   "User logged in successfully",
	})
}

// LogLoginFailure logs a failed login attempt
func LogLoginFailure(email, ip, userAgent, reason string) {
	LogActivity(ActivityEvent{
		Type:      EventLoginFailure,
		IP:        ip,
		UserAgent: userAgent,
		Message:   fmt.Sprintf("Login failed: %s", reason),
		Details:   map[string]interface{}{"email": sanitizeLogValue(email)},
	})
}

// LogUnauthorizedAccess logs rejected access to a resource
func LogUnauthorizedAccess(userID uint, ip, resource, reason string) {
	LogActivity(ActivityEvent{
		Type:    EventUnauthorizedAccess,
		UserID:  userID,
		IP:      ip,
		Message: fmt.Sprintf("Unauthorized access to %s: %s", resource, reason),
	})
}

// LogRateLimitExceeded logs when rate limit is exceeded
func LogRateLimitExceeded(ip, endpoint string) {
	LogActivity(ActivityEvent{
		Type:    EventRateLimitExceeded,
		IP:      ip,
		Message: fmt.Sprintf("Rate limit exceeded for endpoint: %s", endpoint),
	})
}
