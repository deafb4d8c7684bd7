package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/util"
	"github.com/ariebrainware/educe-api/workflow"
	"github.com/gin-gonic/gin"
)

const (
	UserIDKey = "user_id"
	RoleKey   = "role"
	ClaimsKey = "claims"
)

var errMissingToken = errors.New("access token required")

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// authenticate resolves the bearer token into claims checked against the
// stored account.
func authenticate(c *gin.Context) (*util.Claims, error) {
	raw := bearerToken(c)
	if raw == "" {
		return nil, errMissingToken
	}
	claims, err := util.ParseToken(raw)
	if err != nil {
		return nil, err
	}
	revoked, err := util.IsTokenRevoked(c.Request.Context(), claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, util.ErrInvalidToken
	}
	account, found, err := util.LookupAccount(GetDB(c), claims.UserID)
	if err != nil {
		return nil, err
	}
	if !found || account.Role != claims.Role {
		return nil, util.ErrInvalidToken
	}
	return claims, nil
}

func setIdentity(c *gin.Context, claims *util.Claims) {
	c.Set(UserIDKey, claims.UserID)
	c.Set(RoleKey, claims.Role)
	c.Set(ClaimsKey, claims)
}

// ValidateLoginToken rejects requests without a valid bearer token and
// stores the caller identity in the context.
func ValidateLoginToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(c)
		if err != nil {
			util.LogUnauthorizedAccess(0, c.ClientIP(), c.Request.URL.Path, err.Error())
			util.CallUserNotAuthorized(c, util.APIErrorParams{
				Msg: "Invalid or missing access token",
				Err: err,
			})
			c.Abort()
			return
		}
		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is sent and lets
// anonymous requests through.
func OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, err := authenticate(c); err == nil {
			setIdentity(c, claims)
		}
		c.Next()
	}
}

// RequireRole allows only callers holding one of roles. It must run after
// ValidateLoginToken.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetRole(c)
		for _, r := range roles {
			if ok && role == r {
				c.Next()
				return
			}
		}
		userID, _ := GetUserID(c)
		util.LogUnauthorizedAccess(userID, c.ClientIP(), c.Request.URL.Path, fmt.Sprintf("role %q", role))
		util.CallForbidden(c, util.APIErrorParams{
			Msg: fmt.Sprintf("%s access required", roles[0]),
			Err: workflow.ErrAuthorization,
		})
		c.Abort()
	}
}

// GetUserID returns the authenticated user id.
func GetUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// GetRole returns the authenticated user role.
func GetRole(c *gin.Context) (model.Role, bool) {
	v, ok := c.Get(RoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(model.Role)
	return role, ok
}

// GetClaims returns the verified token claims.
func GetClaims(c *gin.Context) (*util.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*util.Claims)
	return claims, ok
}

// GetActor returns the caller as a workflow actor.
func GetActor(c *gin.Context) workflow.Actor {
	id, _ := GetUserID(c)
	role, _ := GetRole(c)
	return workflow.Actor{UserID: id, Role: role}
}
