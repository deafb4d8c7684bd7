package router

import (
	"fmt"
	"net/http"

	"github.com/ariebrainware/educe-api/config"
	"github.com/ariebrainware/educe-api/endpoint"
	"github.com/ariebrainware/educe-api/middleware"
	"github.com/ariebrainware/educe-api/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// New builds the HTTP API. Every route lives under /api behind the rate limiter.
func New(db *gorm.DB, h *endpoint.Handler, cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middleware.DatabaseMiddleware(db))
	r.Use(middleware.EndpointCallLogger())

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": fmt.Sprintf("Welcome to %s!", cfg.AppName),
		})
	})

	api := r.Group("/api")
	api.Use(middleware.RateLimiter(middleware.RateLimitConfig{
		Limit:  cfg.RateLimit,
		Window: cfg.RateWindow,
	}))

	api.GET("/health", endpoint.Health)
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	public := api.Group("")
	public.Use(middleware.OptionalAuth())
	{
		public.GET("/psychologists", endpoint.ListPsychologists)
		public.GET("/psychologists/:id", endpoint.GetPsychologist)
	}

	auth := api.Group("")
	auth.Use(middleware.ValidateLoginToken())
	{
		auth.POST("/auth/logout", endpoint.Logout)
		auth.GET("/users/profile", endpoint.GetProfile)
		auth.PUT("/users/profile", endpoint.UpdateProfile)

		auth.GET("/children/:id", endpoint.GetChild)
		auth.GET("/assessment-requests", endpoint.ListAssessmentRequests)
		auth.GET("/games", h.ListGames)
		auth.GET("/game-results", endpoint.ListGameResults)
		auth.GET("/ai-analysis/:childId", endpoint.GetAnalysis)
		auth.GET("/ai-analysis/:childId/download", endpoint.DownloadReport)
	}

	customer := auth.Group("")
	customer.Use(middleware.RequireRole(model.RoleCustomer))
	{
		customer.GET("/children", endpoint.ListChildren)
		customer.POST("/children", endpoint.CreateChild)
		customer.PUT("/children/:id", endpoint.UpdateChild)
		customer.DELETE("/children/:id", endpoint.DeleteChild)

		customer.POST("/assessment-requests", endpoint.CreateAssessmentRequestHandler)
		customer.PUT("/assessment-requests/:id/cancel", endpoint.CancelAssessmentRequest)

		customer.POST("/game-sessions", h.StartGameSession)
		customer.GET("/game-sessions/:id", h.GetGameSession)
		customer.PUT("/game-sessions/:id/answer", h.AnswerGameSession)
		customer.POST("/game-sessions/:id/next", h.NextGameQuestion)
		customer.POST("/game-sessions/:id/previous", h.PreviousGameQuestion)
		customer.POST("/game-sessions/:id/finish", h.FinishGameSession)

		customer.POST("/game-results", endpoint.SubmitGameResult)
	}

	psychologist := auth.Group("")
	psychologist.Use(middleware.RequireRole(model.RolePsychologist))
	{
		psychologist.GET("/psychologists/me", endpoint.GetMyPsychologistProfile)
		psychologist.PUT("/psychologists/me", endpoint.UpdateMyPsychologistProfile)
		psychologist.PUT("/assessment-requests/:id/respond", endpoint.RespondToAssessmentRequest)
		psychologist.POST("/ai-analysis", h.SubmitAnalysis)
	}

	admin := auth.Group("/admin")
	admin.Use(middleware.RequireRole(model.RoleAdmin))
	{
		admin.GET("/psychologists", endpoint.ListAllPsychologists)
		admin.PUT("/psychologists/:id/approval", endpoint.ReviewPsychologist)
		admin.GET("/stats", endpoint.GetStats)
		admin.DELETE("/users/:id", endpoint.DeleteUser)
		admin.GET("/activity", endpoint.ListActivity)
		admin.DELETE("/rate-limits/:ip", endpoint.ResetRateLimit)
	}

	return r
}
