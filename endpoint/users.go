package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/util"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type UpdateProfileRequest struct {
	Name  *string `json:"name" example:"Jane Doe"`
	Phone *string `json:"phone" example:"+62812345678"`
}

func loadCurrentUser(c *gin.Context, db *gorm.DB) (model.User, bool) {
	userID, _ := middleware.GetUserID(c)
	var user model.User
	err := db.Take(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		util.CallErrorNotFound(c, util.APIErrorParams{Msg: "User not found", Err: err})
		return user, false
	}
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to get profile", Err: err})
		return user, false
	}
	return user, true
}

// GetProfile godoc
// @Summary      Get own profile
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} util.APIResponse{data=userView}
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Failure      404 {object} util.APIResponse "User not found"
// @Router       /users/profile [get]
func GetProfile(c *gin.Context) {
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	user, ok := loadCurrentUser(c, db)
	if !ok {
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Profile retrieved", Data: viewOfUser(user)})
}

// UpdateProfile godoc
// @Summary      Update own profile
// @Description  Change name and phone. Email and role are fixed.
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body UpdateProfileRequest true "Profile fields"
// @Success      200 {object} util.APIResponse{data=userView}
// @Failure      400 {object} util.APIResponse "Invalid request"
// @Failure      401 {object} util.APIResponse "Unauthorized"
// @Router       /users/profile [put]
func UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	db, ok := getDBOrRespond(c)
	if !ok {
		return
	}
	user, ok := loadCurrentUser(c, db)
	if !ok {
		return
	}

	if req.Name != nil {
		name := util.NormalizeName(*req.Name)
		if name == "" {
			util.CallUserError(c, util.APIErrorParams{Msg: "Name cannot be empty", Err: errors.New("empty name")})
			return
		}
		user.Name = name
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Select("name", "phone").Updates(&user).Error; err != nil {
			return err
		}
		if user.Role != model.RolePsychologist {
			return nil
		}
		// The profile keeps a copy of the name for listings.
		return tx.Model(&model.Psychologist{}).Where("user_id = ?", user.ID).Update("name", user.Name).Error
	})
	if err != nil {
		util.CallServerError(c, util.APIErrorParams{Msg: "Failed to update profile", Err: fmt.Errorf("update user %d: %w", user.ID, err)})
		return
	}
	util.CallSuccessOK(c, util.APISuccessParams{Msg: "Profile updated successfully", Data: viewOfUser(user)})
}
