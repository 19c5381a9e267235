package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const dateLayout = "2006-01-02"

type (
	StoreConfig struct {
		URL          string
		APIKey       string
		BaseID       string
		PageSize     int
		RateLimit    float64 // requests per second
		Timeout      time.Duration
		MaxRetries   int
		RetryBackoff time.Duration

		StudentsTable   string
		AttendanceTable string
		CoursesTable    string
	}

	ServerConfig struct {
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
		TokenExpiration time.Duration
		CORSOrigins     []string
		RateLimit       float64 // requests per second per IP
		LoginRateLimit  float64
	}

	Config struct {
		Debug    bool
		TestMode bool
		Env      string
		AppName  string
		Build    string

		// SecretKey is the key material every derived credential depends on.
		SecretKey      string
		MasterPassword string
		RollbarToken   string

		Timezone                 string
		Location                 *time.Location
		CourseStartDate          time.Time
		DirectoryRefreshInterval time.Duration

		Store  StoreConfig
		Server ServerConfig

		courseStartDate string // raw COURSE_START_DATE
	}
)

// NewConfig reads the configuration from the environment (and an optional `config/.env.<env>` file).
// The returned Config is not validated, call Config.Validate before using it.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("app_name", "Rollbook")
	v.SetDefault("build", "dev")
	v.SetDefault("secret_key", "")
	v.SetDefault("master_password", "")
	v.SetDefault("rollbar_token", "")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("course_start_date", "")
	v.SetDefault("directory_refresh_interval", 5*time.Minute)

	v.SetDefault("store_url", "https://api.airtable.com/v0")
	v.SetDefault("store_api_key", "")
	v.SetDefault("store_base_id", "")
	v.SetDefault("store_page_size", 100)
	v.SetDefault("store_rate_limit", 5.0)
	v.SetDefault("fetch_timeout", 15*time.Second)
	v.SetDefault("fetch_max_retries", 3)
	v.SetDefault("fetch_retry_backoff", 250*time.Millisecond)
	v.SetDefault("students_table", "Students")
	v.SetDefault("attendance_table", "Attendance")
	v.SetDefault("courses_table", "Courses")

	v.SetDefault("server_address", ":8000")
	v.SetDefault("server_debug_host", ":4000")
	v.SetDefault("server_shutdown_timeout", 5*time.Second)
	v.SetDefault("server_token_expiration", 12*time.Hour)
	v.SetDefault("server_cors_origins", "*")
	v.SetDefault("server_rate_limit", 20.0)
	v.SetDefault("server_login_rate_limit", 1.0)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("test_mode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Debug:                    v.GetBool("debug"),
		TestMode:                 v.GetBool("test_mode"),
		Env:                      env,
		AppName:                  v.GetString("app_name"),
		Build:                    v.GetString("build"),
		SecretKey:                v.GetString("secret_key"),
		MasterPassword:           v.GetString("master_password"),
		RollbarToken:             v.GetString("rollbar_token"),
		Timezone:                 v.GetString("timezone"),
		DirectoryRefreshInterval: v.GetDuration("directory_refresh_interval"),
		Store: StoreConfig{
			URL:             v.GetString("store_url"),
			APIKey:          v.GetString("store_api_key"),
			BaseID:          v.GetString("store_base_id"),
			PageSize:        v.GetInt("store_page_size"),
			RateLimit:       v.GetFloat64("store_rate_limit"),
			Timeout:         v.GetDuration("fetch_timeout"),
			MaxRetries:      v.GetInt("fetch_max_retries"),
			RetryBackoff:    v.GetDuration("fetch_retry_backoff"),
			StudentsTable:   v.GetString("students_table"),
			AttendanceTable: v.GetString("attendance_table"),
			CoursesTable:    v.GetString("courses_table"),
		},
		Server: ServerConfig{
			Address:         v.GetString("server_address"),
			DebugHost:       v.GetString("server_debug_host"),
			ShutdownTimeout: v.GetDuration("server_shutdown_timeout"),
			TokenExpiration: v.GetDuration("server_token_expiration"),
			CORSOrigins:     splitList(v.GetString("server_cors_origins")),
			RateLimit:       v.GetFloat64("server_rate_limit"),
			LoginRateLimit:  v.GetFloat64("server_login_rate_limit"),
		},
		courseStartDate: v.GetString("course_start_date"),
	}
}

// Validate checks the settings the process cannot start without and resolves the derived fields
// (Location, CourseStartDate).
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return NewConfigError("SECRET_KEY", "secret key material is required")
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return NewConfigError("TIMEZONE", err.Error())
	}
	c.Location = loc

	if c.courseStartDate != "" {
		start, err := time.ParseInLocation(dateLayout, c.courseStartDate, loc)
		if err != nil {
			return NewConfigError("COURSE_START_DATE", "expected YYYY-MM-DD")
		}
		c.CourseStartDate = start
	}
	if c.DirectoryRefreshInterval <= 0 {
		return NewConfigError("DIRECTORY_REFRESH_INTERVAL", "must be positive")
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = CleanString(p); p != "" {
			list = append(list, p)
		}
	}
	return list
}
