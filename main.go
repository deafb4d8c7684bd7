// main.go
package main

import (
	"context"
	"fmt"

	"github.com/ariebrainware/educe-api/archive"
	"github.com/ariebrainware/educe-api/config"
	"github.com/ariebrainware/educe-api/endpoint"
	"github.com/ariebrainware/educe-api/games"
	"github.com/ariebrainware/educe-api/logger"
	"github.com/ariebrainware/educe-api/model"
	"github.com/ariebrainware/educe-api/router"
	"github.com/ariebrainware/educe-api/util"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load the configuration
	cfg := config.LoadConfig()
	logger.Init(cfg.LogLevel, cfg.AppEnv)

	if cfg.JWTSecret == "" {
		logger.Log.Fatal("JWTSECRET must be set")
	}
	util.SetJWTSecret(cfg.JWTSecret)

	db, err := config.ConnectDatabase()
	if err != nil {
		logger.Log.Fatalf("Error connecting to database: %v", err)
	}
	if err := model.Migrate(db); err != nil {
		logger.Log.Fatalf("Error migrating database: %v", err)
	}
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		hash, err := util.HashPassword(cfg.AdminPassword)
		if err != nil {
			logger.Log.Fatalf("Error hashing admin password: %v", err)
		}
		if err := model.SeedAdmin(db, "Administrator", cfg.AdminEmail, hash); err != nil {
			logger.Log.Fatalf("Error seeding admin: %v", err)
		}
	}

	rdb, err := config.ConnectRedis()
	if err != nil {
		logger.Log.WithError(err).Warn("Redis unavailable, rate limiting and token revocation are disabled")
	}

	if err := util.InitGeoIP(cfg.GeoIPDBPath); err != nil {
		logger.Log.WithError(err).Warn("GeoIP disabled")
	}
	defer util.CloseGeoIP()
	util.SetActivityLoggerDB(db)
	util.InitAccountCacheFromEnv()

	catalog, err := games.DefaultCatalog()
	if err != nil {
		logger.Log.Fatalf("Error loading game catalog: %v", err)
	}
	var sessions games.SessionStore = games.NewMemoryStore(games.DefaultSessionTTL)
	if rdb != nil {
		sessions = games.NewRedisStore(rdb, games.DefaultSessionTTL)
	}

	var archiver archive.Archiver = archive.Nop{}
	if cfg.ReportBucket != "" {
		s3Archiver, err := archive.NewS3Archiver(context.Background(), cfg.ReportBucket)
		if err != nil {
			logger.Log.WithError(err).Warn("Report archiving disabled")
		} else {
			archiver = s3Archiver
		}
	}

	gin.SetMode(cfg.GinMode)
	handler := endpoint.NewHandler(games.NewManager(catalog, sessions), archiver, cfg.JWTTTL)
	r := router.New(db, handler, cfg)

	// Start server on specified port
	address := fmt.Sprintf(":%d", cfg.AppPort)
	logger.Log.Infof("%s listening on %s", cfg.AppName, address)
	if err := r.Run(address); err != nil {
		logger.Log.Fatalf("error starting server: %v", err)
	}
}
