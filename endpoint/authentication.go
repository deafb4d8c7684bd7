package endpoint

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type RegisterRequest struct {
	Email    string     `json:"email" binding:"required,email" example:"parent@example.com"`
	Password string     `json:"password" binding:"required,min=6" example:"password123"`
	Name     string     `json:"name" binding:"required" example:"Jane Doe"`
	Role     model.Role `json:"role" example:"customer"`
	Phone    string     `json:"phone" example:"+62812345678"`

	// Psychologist profile fields, ignored for customers.
	Title           string   `json:"title" example:"Child Psychologist"`
	Specializations []string `json:"specializations"`
	Experience      string   `json:"experience" example:"5+ years"`
	Description     string   `json:"description"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" example:"parent@example.com"`
	Password string `json:"password" binding:"required" example:"password123"`
}

type AuthResponse struct {
	User         userView            `json:"user"`
	Psychologist *model.Psychologist `json:"psychologist,omitempty"`
	Token        string              `json:"token"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

var errEmailTaken = errors.New("email already registered")

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *Handler) issueToken(c *gin.Context, user model.User, psych *model.Psychologist, created bool) {
	token, claims, err := util.GenerateToken(user, h.TokenTTL)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to generate token", Err: err})
		return
	}
	resp := AuthResponse{
		User:         viewOfUser(user),
		Psychologist: psych,
		Token:        token,
		ExpiresAt:    claims.ExpiresAt.Time,
	}
	if created {
		util.CallCreated(c, util.APISuccessParams{Msg: "User registered successfully", Data: resp})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Login successful", Data: resp})
}

// Register godoc
// @Summary      Register an account
// @Description  Create a customer or psychologist account. Psychologists start unapproved.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request body RegisterRequest true "Registration details"
// @Success      201 {object} util.APIResponse{data=AuthResponse} "Registered"
// @Failure      400 {object} util.APIResponse "Invalid request or email already registered"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	if req.Role == "" {
		req.Role = model.RoleCustomer
	}
	if req.Role != model.RoleCustomer && req.Role != model.RolePsychologist {
		util.CallUserError(c, util.APIErrorParams{
			Msg: "Role must be customer or psychologist",
			Err: fmt.Errorf("role %q cannot self register", req.Role),
		})
		return
	}
	name := util.NormalizeName(req.Name)
	if name == "" {
		util.CallUserError(c, util.APIErrorParams{Msg: "Name is required", Err: errors.New("empty name")})
		return
	}

	hash, err := util.HashPassword(req.Password)
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to hash password", Err: err})
		return
	}

	user := model.User{
		Email:        normalizeEmail(req.Email),
		PasswordHash: hash,
		Name:         name,
		Role:         req.Role,
		Phone:        strings.TrimSpace(req.Phone),
		Approved:     req.Role.ApprovedByDefault(),
	}
	var psych *model.Psychologist

	err = db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.User{}).Where("email = ?", user.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errEmailTaken
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if user.Role != model.RolePsychologist {
			return nil
		}
		title := strings.TrimSpace(req.Title)
		if title == "" {
			title = "Child Psychologist"
		}
		psych = &model.Psychologist{
			UserID:          user.ID,
			Name:            user.Name,
			Title:           title,
			Specializations: req.Specializations,
			Experience:      req.Experience,
			Rating:          model.DefaultRating,
			Description:     req.Description,
			Available:       true,
		}
		return tx.Create(psych).Error
	})
	if errors.Is(err, errEmailTaken) {
		util.CallUserError(c, util.APIErrorParams{Msg: "User already exists", Err: err})
		return
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Registration failed", Err: err})
		return
	}

	util.LogActivity(util.ActivityEvent{
		Type:      util.EventRegister,
		UserID:    user.ID,
		Role:      user.Role,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Message:   "User registered",
	})
	h.issueToken(c, user, psych, true)
}

// Login godoc
// @Summary      User login
// @Description  Authenticate with email and password and receive a bearer token
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} util.APIResponse{data=AuthResponse} "Login successful"
// @Failure      400 {object} util.APIResponse "Invalid request payload"
// @Failure      401 {object} util.APIResponse "Invalid credentials"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}

	email := normalizeEmail(req.Email)
	invalid := func(reason string) {
		util.LogLoginFailure(email, c.ClientIP(), c.Request.UserAgent(), reason)
		util.CallUserNotAuthorized(c, util.APIErrorParams{
			Msg: "Invalid credentials",
			Err: errors.New(reason),
		})
	}

	var user model.User
	err := db.Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		invalid("unknown email")
		return
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Login failed", Err: err})
		return
	}
	if !util.VerifyPassword(user.PasswordHash, req.Password) {
		invalid("wrong password")
		return
	}

	var psych *model.Psychologist
	if user.Role == model.RolePsychologist {
		p, err := psychologistOf(db, user.ID)
		if err == nil {
			psych = &p
		}
	}

	util.LogLoginSuccess(user.ID, user.Role, c.ClientIP(), c.Request.UserAgent())
	h.issueToken(c, user, psych, false)
}

// Logout godoc
// @Summary      User logout
// @Description  Revoke the bearer token for the rest of its lifetime
// @Tags         Authentication
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse "Logout successful"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      500 {object} util.APIResponse "Server error"
// @Router       /auth/logout [post]
func Logout(c *gin.Context) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		util.CallUserNotAuthorized(c, util.APIErrorParams{
			Msg: "Unauthorized",
			Err: errors.New("no token claims in context"),
		})
		return
	}

	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if err := util.RevokeToken(c.Request.Context(), claims.ID, ttl); err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to logout", Err: err})
		return
	}

	logEvent(c, util.EventLogout, "User logged out", nil)
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Logout successful"})
}
