package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort  string `mapstructure:"APP_PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Store selection and connection.
	StoreBackend            string `mapstructure:"STORE_BACKEND"`
	FirebaseProjectID       string `mapstructure:"FIREBASE_PROJECT_ID"`
	FirebaseCredentialsFile string `mapstructure:"FIREBASE_CREDENTIALS_FILE"`
	DatabaseURL             string `mapstructure:"DATABASE_URL"`
	DatabaseName            string `mapstructure:"DATABASE_NAME"`

	// Redis configuration.
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisReportDB int           `mapstructure:"REDIS_REPORT_DB"`
	RedisQueueDB  int           `mapstructure:"REDIS_QUEUE_DB"`
	ReportTTL     time.Duration `mapstructure:"REPORT_TTL"`

	// Trigger.
	TriggerMode       string `mapstructure:"TRIGGER_MODE"`
	FinalizeSchedule  string `mapstructure:"FINALIZE_SCHEDULE"`
	RecomputeSchedule string `mapstructure:"RECOMPUTE_SCHEDULE"`

	// Operating hours and pass policy.
	Timezone             string        `mapstructure:"TIMEZONE"`
	OperatingHoursStart  string        `mapstructure:"OPERATING_HOURS_START"`
	OperatingHoursEnd    string        `mapstructure:"OPERATING_HOURS_END"`
	DefaultEndTime       string        `mapstructure:"DEFAULT_END_TIME"`
	FinalizeWindowStart  string        `mapstructure:"FINALIZE_WINDOW_START"`
	FinalizeWindowEnd    string        `mapstructure:"FINALIZE_WINDOW_END"`
	FinalizeLookbackDays int           `mapstructure:"FINALIZE_LOOKBACK_DAYS"`
	RecomputeWindowStart string        `mapstructure:"RECOMPUTE_WINDOW_START"`
	RecomputeWindowEnd   string        `mapstructure:"RECOMPUTE_WINDOW_END"`
	RecomputeOnFinalized bool          `mapstructure:"RECOMPUTE_ON_FINALIZED"`
	RecomputeWritePolicy string        `mapstructure:"RECOMPUTE_WRITE_POLICY"`
	RecomputeConcurrency int           `mapstructure:"RECOMPUTE_CONCURRENCY"`
	QueryLimit           int           `mapstructure:"QUERY_LIMIT"`
	PassTimeout          time.Duration `mapstructure:"PASS_TIMEOUT"`

	// Collection, field and state names.
	ReservationsCollection string `mapstructure:"RESERVATIONS_COLLECTION"`
	SpacesCollection       string `mapstructure:"SPACES_COLLECTION"`
	FieldState             string `mapstructure:"FIELD_STATE"`
	FieldStart             string `mapstructure:"FIELD_START"`
	FieldEnd               string `mapstructure:"FIELD_END"`
	FieldEndTimeOfDay      string `mapstructure:"FIELD_END_TIME_OF_DAY"`
	FieldResource          string `mapstructure:"FIELD_RESOURCE"`
	FieldResourceLegacy    string `mapstructure:"FIELD_RESOURCE_LEGACY"`
	FieldAvailable         string `mapstructure:"FIELD_AVAILABLE"`
	StatePending           string `mapstructure:"STATE_PENDING"`
	StateConfirmed         string `mapstructure:"STATE_CONFIRMED"`
	StateFinalized         string `mapstructure:"STATE_FINALIZED"`
	StateCancelled         string `mapstructure:"STATE_CANCELLED"`

	// Ops API.
	AdminTokenHash     string `mapstructure:"ADMIN_TOKEN_HASH"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RunRatePerMin      int    `mapstructure:"RUN_RATE_PER_MIN"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("STORE_BACKEND", "firestore")
	v.SetDefault("FIREBASE_PROJECT_ID", "")
	v.SetDefault("FIREBASE_CREDENTIALS_FILE", "")
	v.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	v.SetDefault("DATABASE_NAME", "parqueadero")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_REPORT_DB", 0)
	v.SetDefault("REDIS_QUEUE_DB", 1)
	v.SetDefault("REPORT_TTL", 7*24*time.Hour)

	v.SetDefault("TRIGGER_MODE", "cron")
	v.SetDefault("FINALIZE_SCHEDULE", "@every 1m")
	v.SetDefault("RECOMPUTE_SCHEDULE", "@every 5m")

	v.SetDefault("TIMEZONE", "America/Guayaquil")
	v.SetDefault("OPERATING_HOURS_START", "07:00")
	v.SetDefault("OPERATING_HOURS_END", "18:00")
	v.SetDefault("DEFAULT_END_TIME", "18:00")
	v.SetDefault("FINALIZE_WINDOW_START", "")
	v.SetDefault("FINALIZE_WINDOW_END", "24:00")
	v.SetDefault("FINALIZE_LOOKBACK_DAYS", 0)
	v.SetDefault("RECOMPUTE_WINDOW_START", "18:10")
	v.SetDefault("RECOMPUTE_WINDOW_END", "24:00")
	v.SetDefault("RECOMPUTE_ON_FINALIZED", false)
	v.SetDefault("RECOMPUTE_WRITE_POLICY", "on_change")
	v.SetDefault("RECOMPUTE_CONCURRENCY", 8)
	v.SetDefault("QUERY_LIMIT", 500)
	v.SetDefault("PASS_TIMEOUT", 50*time.Second)

	v.SetDefault("RESERVATIONS_COLLECTION", "reservaciones")
	v.SetDefault("SPACES_COLLECTION", "espacios")
	v.SetDefault("FIELD_STATE", "estado")
	v.SetDefault("FIELD_START", "fechaInicio")
	v.SetDefault("FIELD_END", "fechaFin")
	v.SetDefault("FIELD_END_TIME_OF_DAY", "horaFin")
	v.SetDefault("FIELD_RESOURCE", "espacio")
	v.SetDefault("FIELD_RESOURCE_LEGACY", "espacioId")
	v.SetDefault("FIELD_AVAILABLE", "disponible")
	v.SetDefault("STATE_PENDING", "pendiente")
	v.SetDefault("STATE_CONFIRMED", "confirmado")
	v.SetDefault("STATE_FINALIZED", "finalizado")
	v.SetDefault("STATE_CANCELLED", "cancelado")

	v.SetDefault("ADMIN_TOKEN_HASH", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("RUN_RATE_PER_MIN", 6)
}

// Load reads configuration from config.yaml (current or ./config directory)
// and the environment. A missing config file is not an error.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadConfig populates AppConfig or exits.
func LoadConfig() {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	AppConfig = cfg
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
