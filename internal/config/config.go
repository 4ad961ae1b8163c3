package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config: вся конфигурация процессов планировщика. Значения берутся из env
// (при наличии .env файл подгружается заранее).
type Config struct {
	App        AppConfig
	DB         DBConfig
	HTTP       HTTPConfig
	GRPC       GRPCConfig
	Scheduling SchedulingConfig
	Intake     IntakeConfig
	Outbox     OutboxConfig
	Auth       AuthConfig
	Redis      RedisConfig
	AWS        AWSConfig
	Twilio     TwilioConfig
}

type AppConfig struct {
	Env           string `envconfig:"APP_ENV" default:"local"`
	LogFormat     string `envconfig:"APP_LOG_FORMAT" default:"json"`
	PublicBaseURL string `envconfig:"APP_PUBLIC_BASE_URL" default:"http://localhost:8080"`
}

type HTTPConfig struct {
	Addr         string        `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	CORSOrigins  []string      `envconfig:"HTTP_CORS_ORIGINS" default:"http://localhost:3000"`
}

type GRPCConfig struct {
	Addr string `envconfig:"GRPC_ADDR" default:":50051"`
}

type SchedulingConfig struct {
	Timezone          string        `envconfig:"SCHEDULING_TIMEZONE" default:"Europe/Vilnius"`
	CandidateHours    []int         `envconfig:"SCHEDULING_CANDIDATE_HOURS" default:"10,13,16"`
	OpenHour          int           `envconfig:"SCHEDULING_OPEN_HOUR" default:"9"`
	CloseHour         int           `envconfig:"SCHEDULING_CLOSE_HOUR" default:"18"`
	LeadTime          time.Duration `envconfig:"SCHEDULING_LEAD_TIME" default:"30m"`
	HorizonDays       int           `envconfig:"SCHEDULING_HORIZON_DAYS" default:"14"`
	VisitDuration     time.Duration `envconfig:"SCHEDULING_VISIT_DURATION" default:"60m"`
	HoldMinutes       int           `envconfig:"SCHEDULING_HOLD_MINUTES" default:"5"`
	EmailHoldMinutes  int           `envconfig:"SCHEDULING_EMAIL_HOLD_MINUTES" default:"60"`
	DefaultResourceID string        `envconfig:"SCHEDULING_DEFAULT_RESOURCE_ID"`
	PreviewTTLMinutes int           `envconfig:"SCHEDULING_PREVIEW_TTL_MIN" default:"15"`
	PreviewSecret     string        `envconfig:"SCHEDULING_PREVIEW_SECRET" default:"dev-preview-secret"`
	DayNamespace      string        `envconfig:"SCHEDULING_DAY_NAMESPACE" default:"cd487f5c-baca-4d84-b0e8-97f7bfef7248"`
	SweeperEnabled    bool          `envconfig:"SCHEDULING_SWEEPER_ENABLED" default:"true"`
	SweepInterval     time.Duration `envconfig:"SCHEDULING_SWEEP_INTERVAL" default:"60s"`
}

type IntakeConfig struct {
	AutoOfferEnabled   bool          `envconfig:"INTAKE_AUTO_OFFER_ENABLED" default:"true"`
	AutoReplyEnabled   bool          `envconfig:"INTAKE_AUTO_REPLY_ENABLED" default:"true"`
	OfferMaxAttempts   int           `envconfig:"INTAKE_OFFER_MAX_ATTEMPTS" default:"5"`
	MissingDataMax     int           `envconfig:"INTAKE_MISSING_DATA_MAX" default:"2"`
	MissingDataMinWait time.Duration `envconfig:"INTAKE_MISSING_DATA_MIN_INTERVAL" default:"1h"`
	WhatsAppPing       bool          `envconfig:"INTAKE_WHATSAPP_PING" default:"false"`
	ReplyToEmail       string        `envconfig:"INTAKE_REPLY_TO_EMAIL" default:"info@example.lt"`
}

type OutboxConfig struct {
	BatchSize   int           `envconfig:"OUTBOX_BATCH_SIZE" default:"50"`
	MaxAttempts int           `envconfig:"OUTBOX_MAX_ATTEMPTS" default:"5"`
	Interval    time.Duration `envconfig:"OUTBOX_INTERVAL" default:"30s"`
	RatePerSec  float64       `envconfig:"OUTBOX_RATE_PER_SEC" default:"5"`
	Burst       int           `envconfig:"OUTBOX_BURST" default:"10"`
	SQSQueueURL string        `envconfig:"OUTBOX_SQS_QUEUE_URL"`
	OpsAddr     string        `envconfig:"OUTBOX_OPS_ADDR" default:":9090"`
}

type AuthConfig struct {
	JWTSecret string        `envconfig:"AUTH_JWT_SECRET"`
	Issuer    string        `envconfig:"AUTH_ISSUER" default:"visit-scheduler"`
	Leeway    time.Duration `envconfig:"AUTH_LEEWAY" default:"30s"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type AWSConfig struct {
	Region             string `envconfig:"AWS_REGION" default:"eu-central-1"`
	LocalstackEndpoint string `envconfig:"AWS_LOCALSTACK_ENDPOINT"`
}

type TwilioConfig struct {
	AuthToken        string `envconfig:"TWILIO_AUTH_TOKEN"`
	PublicWebhookURL string `envconfig:"TWILIO_PUBLIC_WEBHOOK_URL"`
	CallerPerMinute  int    `envconfig:"TWILIO_CALLER_PER_MIN" default:"10"`
}

// Load читает .env (отсутствие файла не ошибка) и переменные окружения, затем валидирует результат.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	c, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// FromEnv заполняет секции по переменным окружения без валидации.
// Секции обрабатываются по отдельности: теги содержат полные имена переменных.
func FromEnv() (Config, error) {
	var c Config
	sections := []any{
		&c.App, &c.DB, &c.HTTP, &c.GRPC, &c.Scheduling, &c.Intake,
		&c.Outbox, &c.Auth, &c.Redis, &c.AWS, &c.Twilio,
	}
	for _, sec := range sections {
		if err := envconfig.Process("", sec); err != nil {
			return Config{}, fmt.Errorf("process env: %w", err)
		}
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.LogFormat != "json" && c.App.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("APP_LOG_FORMAT must be json or text, got %q", c.App.LogFormat))
	}
	if u, err := url.Parse(c.App.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("APP_PUBLIC_BASE_URL must be an absolute URL, got %q", c.App.PublicBaseURL))
	}

	errs = append(errs, c.DB.validate()...)

	s := c.Scheduling
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULING_TIMEZONE: %w", err))
	}
	if len(s.CandidateHours) == 0 {
		errs = append(errs, errors.New("SCHEDULING_CANDIDATE_HOURS must not be empty"))
	}
	for _, h := range s.CandidateHours {
		if h < 0 || h > 23 {
			errs = append(errs, fmt.Errorf("SCHEDULING_CANDIDATE_HOURS contains invalid hour %d", h))
		}
	}
	if s.OpenHour < 0 || s.CloseHour > 24 || s.OpenHour >= s.CloseHour {
		errs = append(errs, fmt.Errorf("SCHEDULING_OPEN_HOUR/CLOSE_HOUR invalid: %d-%d", s.OpenHour, s.CloseHour))
	}
	if s.HorizonDays <= 0 {
		errs = append(errs, fmt.Errorf("SCHEDULING_HORIZON_DAYS must be positive, got %d", s.HorizonDays))
	}
	if s.DefaultResourceID != "" {
		if _, err := uuid.Parse(s.DefaultResourceID); err != nil {
			errs = append(errs, fmt.Errorf("SCHEDULING_DEFAULT_RESOURCE_ID must be a UUID: %w", err))
		}
	}
	if _, err := uuid.Parse(s.DayNamespace); err != nil {
		errs = append(errs, fmt.Errorf("SCHEDULING_DAY_NAMESPACE must be a UUID: %w", err))
	}
	if c.IsProduction() && (s.PreviewSecret == "" || s.PreviewSecret == "dev-preview-secret") {
		errs = append(errs, errors.New("SCHEDULING_PREVIEW_SECRET must be set in production"))
	}

	if c.Intake.OfferMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("INTAKE_OFFER_MAX_ATTEMPTS must be positive, got %d", c.Intake.OfferMaxAttempts))
	}
	if c.Intake.MissingDataMax < 0 {
		errs = append(errs, fmt.Errorf("INTAKE_MISSING_DATA_MAX must not be negative, got %d", c.Intake.MissingDataMax))
	}

	if c.Outbox.RatePerSec <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_RATE_PER_SEC must be positive, got %v", c.Outbox.RatePerSec))
	}

	if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be at least 32 bytes in production"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool { return c.App.Env == "production" }

// Location возвращает часовой пояс планировщика; Validate гарантирует, что он загружается.
func (s SchedulingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
