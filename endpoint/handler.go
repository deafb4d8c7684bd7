package endpoint

import (
	"errors"
	"time"

	"github.com/ariebrainware/educe-api/archive"
	"github.com/ariebrainware/educe-api/games"
	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/util"
	"github.com/ariebrainware/educe-api/workflow"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler carries the collaborators of handlers that need more than the
// request database.
type Handler struct {
	Games    *games.Manager
	Archiver archive.Archiver
	TokenTTL time.Duration
}

func NewHandler(gm *games.Manager, archiver archive.Archiver, tokenTTL time.Duration) *Handler {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Handler{Games: gm, Archiver: archiver, TokenTTL: tokenTTL}
}

// engineFor runs the workflow on the request database.
func engineFor(c *gin.Context) *workflow.Engine {
	return workflow.NewEngine(workflow.NewGormStore(middleware.GetDB(c)))
}

func logEvent(c *gin.Context, event util.ActivityEventType, msg string, details map[string]interface{}) {
	actor := middleware.GetActor(c)
	util.LogActivity(util.ActivityEvent{
		Type:      event,
		UserID:    actor.UserID,
		Role:      actor.Role,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Message:   msg,
		Details:   details,
	})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		util.CallUserError(c, util.APIErrorParams{Msg: "Invalid request payload", Err: err})
		return false
	}
	return true
}

// userView is the public part of an account.
type userView struct {
	ID        uint       `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      model.Role `json:"role"`
	Phone     string     `json:"phone"`
	Approved  bool       `json:"approved"`
	CreatedAt time.Time  `json:"created_at"`
}

func viewOfUser(u model.User) userView {
	return userView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Phone:     u.Phone,
		Approved:  u.Approved,
		CreatedAt: u.CreatedAt,
	}
}

// getDBOrRespond fetches the request database or answers 500.
func getDBOrRespond(c *gin.Context) (*gorm.DB, bool) {
	db := middleware.GetDB(c)
	if db == nil {
		util.CallServerError(c, util.APIErrorParams{
			Msg: "Database connection not available",
			Err: errors.New("no database in request context"),
		})
		return nil, false
	}
	return db, true
}
