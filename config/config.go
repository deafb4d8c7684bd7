package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Config holds the application's configuration values.
type Config struct {
	AppName string `json:"appname"`
	AppEnv  string `json:"appenv"`
	AppPort uint16 `json:"appport"`
	GinMode string `json:"ginmode"`

	DBDriver string `json:"dbdriver"`
	DBHost   string `json:"dbhost"`
	DBPort   uint16 `json:"dbport"`
	DBName   string `json:"dbname"`
	DBUser   string `json:"dbuser"`
	DBPass   string `json:"dbpass"`

	JWTSecret string        `json:"-"`
	JWTTTL    time.Duration `json:"jwt_ttl"`

	CORSOrigins []string      `json:"cors_origins"`
	RateLimit   int           `json:"rate_limit"`
	RateWindow  time.Duration `json:"rate_window"`

	LogLevel     string `json:"log_level"`
	GeoIPDBPath  string `json:"geoip_db_path"`
	ReportBucket string `json:"report_bucket"`

	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"-"`
}

// IsTest reports whether the application runs with APPENV=test.
func (c *Config) IsTest() bool {
	return c.AppEnv == "test"
}

var config *Config
var once sync.Once

// LoadConfig loads the environment variables from a .env file (when present)
// and returns a singleton Config instance.
func LoadConfig() *Config {
	once.Do(func() {
		config = ReadConfig()
	})
	return config
}

// ReadConfig builds a fresh Config from the environment without touching the singleton.
func ReadConfig() *Config {
	// A missing .env is fine, the process environment still applies.
	_ = godotenv.Load()

	appPort, _ := strconv.ParseUint(getEnv("APPPORT", "3000"), 10, 16)
	dbPort, _ := strconv.ParseUint(os.Getenv("DBPORT"), 10, 16)
	ttlHours, err := strconv.Atoi(getEnv("JWT_TTL_HOURS", "24"))
	if err != nil || ttlHours <= 0 {
		ttlHours = 24
	}
	rateLimit, err := strconv.Atoi(getEnv("RATE_LIMIT", "100"))
	if err != nil || rateLimit <= 0 {
		rateLimit = 100
	}
	rateWindow, err := strconv.Atoi(getEnv("RATE_WINDOW_MINUTES", "15"))
	if err != nil || rateWindow <= 0 {
		rateWindow = 15
	}

	return &Config{
		AppName:       getEnv("APPNAME", "EDUCE API"),
		AppEnv:        os.Getenv("APPENV"),
		AppPort:       uint16(appPort),
		GinMode:       getEnv("GINMODE", "debug"),
		DBDriver:      strings.ToLower(getEnv("DBDRIVER", "mysql")),
		DBHost:        os.Getenv("DBHOST"),
		DBPort:        uint16(dbPort),
		DBName:        os.Getenv("DBNAME"),
		DBUser:        os.Getenv("DBUSER"),
		DBPass:        os.Getenv("DBPASS"),
		JWTSecret:     os.Getenv("JWTSECRET"),
		JWTTTL:        time.Duration(ttlHours) * time.Hour,
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "http://localhost:8080,http://127.0.0.1:8080")),
		RateLimit:     rateLimit,
		RateWindow:    time.Duration(rateWindow) * time.Minute,
		LogLevel:      strings.ToLower(getEnv("LOG_LEVEL", "info")),
		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),
		ReportBucket:  os.Getenv("REPORT_BUCKET"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConnectDatabase opens the database selected by DBDRIVER. With APPENV=test it
// always opens a private in-memory SQLite database.
func ConnectDatabase() (*gorm.DB, error) {
	cfg := LoadConfig()
	if cfg.IsTest() || os.Getenv("APPENV") == "test" {
		return OpenSQLite("file::memory:")
	}

	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormLogLevel(cfg))}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.DBName)
	default:
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4", cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		dialector = mysql.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	return db, nil
}

// OpenSQLite opens a SQLite database restricted to a single connection, which
// keeps in-memory databases consistent across queries and transactions.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func gormLogLevel(cfg *Config) gormlogger.LogLevel {
	if cfg.LogLevel == "debug" {
		return gormlogger.Info
	}
	return gormlogger.Warn
}
