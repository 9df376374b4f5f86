package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                string
	AppEnv                 string
	AppPort                string
	DatabaseURL            string
	RedisURL               string
	NATSURL                string
	EventsChannel          string
	JWTSecret              string
	KioskKeys              []string
	KioskRateLimit         int
	KioskRateWindow        time.Duration
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	PhotoMaxSizeMB         int
	Location               *time.Location
	Attendance             AttendanceConfig
	Loan                   LoanConfig
	Penalty                PenaltyConfig
}

// AttendanceConfig configures the sign-in window around each class session.
type AttendanceConfig struct {
	SignInLead           time.Duration
	SignInGrace          time.Duration
	DefaultSessionLength time.Duration
}

// LoanConfig configures how due dates are derived at checkout.
type LoanConfig struct {
	DueDays           int
	ExtendForWeekends bool
	DueTime           string
}

// PenaltyConfig configures the late return rate.
type PenaltyConfig struct {
	RatePerDayCents int64
	Grace           time.Duration
	MaxCents        int64
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CAMPUSDESK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "CampusDesk API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "campusdesk")
	v.SetDefault("kiosk.rate_limit", 30)
	v.SetDefault("kiosk.rate_window", "1m")
	v.SetDefault("cloudinary.folder", "campusdesk/students")
	v.SetDefault("photo.max_size_mb", 5)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("attendance.signin_lead", "0s")
	v.SetDefault("attendance.signin_grace", "0s")
	v.SetDefault("attendance.default_session_length", "1h")
	v.SetDefault("loan.due_days", 1)
	v.SetDefault("loan.extend_for_weekends", true)
	v.SetDefault("loan.due_time", "")
	v.SetDefault("penalty.rate_per_day_cents", 0)
	v.SetDefault("penalty.grace", "0s")
	v.SetDefault("penalty.max_cents", 0)

	location, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid timezone: %w", err)
	}

	durations := map[string]time.Duration{}
	for _, key := range []string{"kiosk.rate_window", "attendance.signin_lead", "attendance.signin_grace", "attendance.default_session_length", "penalty.grace"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", key)
		}
		durations[key] = parsed
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		NATSURL:                v.GetString("nats.url"),
		EventsChannel:          v.GetString("events.channel"),
		JWTSecret:              v.GetString("jwt.secret"),
		KioskKeys:              splitList(v.GetString("kiosk.keys")),
		KioskRateLimit:         v.GetInt("kiosk.rate_limit"),
		KioskRateWindow:        durations["kiosk.rate_window"],
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		PhotoMaxSizeMB:         v.GetInt("photo.max_size_mb"),
		Location:               location,
		Attendance: AttendanceConfig{
			SignInLead:           durations["attendance.signin_lead"],
			SignInGrace:          durations["attendance.signin_grace"],
			DefaultSessionLength: durations["attendance.default_session_length"],
		},
		Loan: LoanConfig{
			DueDays:           v.GetInt("loan.due_days"),
			ExtendForWeekends: v.GetBool("loan.extend_for_weekends"),
			DueTime:           strings.TrimSpace(v.GetString("loan.due_time")),
		},
		Penalty: PenaltyConfig{
			RatePerDayCents: v.GetInt64("penalty.rate_per_day_cents"),
			Grace:           durations["penalty.grace"],
			MaxCents:        v.GetInt64("penalty.max_cents"),
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("database url must be provided")
	}

	if cfg.Loan.DueDays < 0 {
		return Config{}, fmt.Errorf("loan due days must not be negative")
	}

	if cfg.Penalty.RatePerDayCents < 0 || cfg.Penalty.MaxCents < 0 {
		return Config{}, fmt.Errorf("penalty amounts must not be negative")
	}

	if cfg.Attendance.DefaultSessionLength <= 0 {
		cfg.Attendance.DefaultSessionLength = time.Hour
	}

	if cfg.PhotoMaxSizeMB <= 0 {
		cfg.PhotoMaxSizeMB = 5
	}

	return cfg, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
