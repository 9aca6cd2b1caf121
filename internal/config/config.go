package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
	PathStyle bool
}

type Config struct {
	AppEnv  string
	AppPort string

	DBDSN     string
	RedisAddr string
	RedisPass string
	RedisDB   int
	MongoURI  string
	MongoDB   string

	JWTAccessSecret  string
	JWTRefreshSecret string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	CookieSecure     bool

	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	FrontendBaseURL string
	CORSOrigins     string

	SMTP SMTPConfig
	S3   S3Config

	APIRatePerMin   int
	SensitiveMax    int
	SensitiveWindow time.Duration
	ShutdownTimeout time.Duration
}

func (c Config) Development() bool { return c.AppEnv != "production" }

var required = []string{"DB_DSN", "JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET"}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MONGO_DB", "marketplace")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("FRONTEND_BASE_URL", "http://localhost:3000")
	v.SetDefault("CORS_ORIGINS", "http://127.0.0.1:3000, http://localhost:3000")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "no-reply@localhost")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("API_RATE_PER_MIN", 300)
	v.SetDefault("SENSITIVE_MAX_ATTEMPTS", 5)
	v.SetDefault("SENSITIVE_WINDOW", "15m")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")

	var missing []string
	for _, k := range required {
		if strings.TrimSpace(v.GetString(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing env: %s", strings.Join(missing, ", "))
	}

	cfg := Config{
		AppEnv:  v.GetString("APP_ENV"),
		AppPort: v.GetString("APP_PORT"),

		DBDSN:     v.GetString("DB_DSN"),
		RedisAddr: v.GetString("REDIS_ADDR"),
		RedisPass: v.GetString("REDIS_PASSWORD"),
		RedisDB:   v.GetInt("REDIS_DB"),
		MongoURI:  v.GetString("MONGO_URI"),
		MongoDB:   v.GetString("MONGO_DB"),

		JWTAccessSecret:  v.GetString("JWT_ACCESS_SECRET"),
		JWTRefreshSecret: v.GetString("JWT_REFRESH_SECRET"),
		AccessTTL:        v.GetDuration("JWT_ACCESS_TTL"),
		RefreshTTL:       v.GetDuration("JWT_REFRESH_TTL"),
		CookieSecure:     v.GetBool("COOKIE_SECURE"),

		GoogleClientID:  v.GetString("GOOGLE_CLIENT_ID"),
		GoogleSecret:    v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirect:  v.GetString("GOOGLE_REDIRECT_URL"),
		FrontendBaseURL: v.GetString("FRONTEND_BASE_URL"),
		CORSOrigins:     v.GetString("CORS_ORIGINS"),

		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
		},
		S3: S3Config{
			Region:    v.GetString("S3_REGION"),
			Bucket:    v.GetString("S3_BUCKET"),
			Endpoint:  v.GetString("S3_ENDPOINT"),
			AccessKey: v.GetString("S3_ACCESS_KEY"),
			SecretKey: v.GetString("S3_SECRET_KEY"),
			PublicURL: v.GetString("S3_PUBLIC_URL"),
			PathStyle: v.GetBool("S3_PATH_STYLE"),
		},

		APIRatePerMin:   v.GetInt("API_RATE_PER_MIN"),
		SensitiveMax:    v.GetInt("SENSITIVE_MAX_ATTEMPTS"),
		SensitiveWindow: v.GetDuration("SENSITIVE_WINDOW"),
		ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
	}
	return cfg, nil
}
