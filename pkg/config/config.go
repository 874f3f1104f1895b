package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/routepilothq/routepilot-backend/pkg/policy"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Policy       PolicyConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Policy.Policy(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ROUTEPILOT_APP_ENV" required:"true"`
	Port         string `envconfig:"ROUTEPILOT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ROUTEPILOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ROUTEPILOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ROUTEPILOT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ROUTEPILOT_DB_DSN"`
	Driver string `envconfig:"ROUTEPILOT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ROUTEPILOT_DB_HOST"`
	LegacyPort     int    `envconfig:"ROUTEPILOT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ROUTEPILOT_DB_USER"`
	LegacyPassword string `envconfig:"ROUTEPILOT_DB_PASSWORD"`
	LegacyName     string `envconfig:"ROUTEPILOT_DB_NAME"`
	LegacySSLMode  string `envconfig:"ROUTEPILOT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ROUTEPILOT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ROUTEPILOT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ROUTEPILOT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ROUTEPILOT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ROUTEPILOT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ROUTEPILOT_REDIS_ADDR"`
	Password     string        `envconfig:"ROUTEPILOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"ROUTEPILOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ROUTEPILOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ROUTEPILOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ROUTEPILOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ROUTEPILOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ROUTEPILOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ROUTEPILOT_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ROUTEPILOT_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ROUTEPILOT_JWT_EXPIRATION_MINUTES" default:"60"`
}

// PolicyConfig holds every operator-tunable dispatch policy value. It is kept
// as plain env fields here and converted once into a policy.Policy so the
// domain packages never read the environment themselves.
type PolicyConfig struct {
	BusinessTimezone string `envconfig:"ROUTEPILOT_POLICY_BUSINESS_TZ" default:"America/Chicago"`

	ConfirmationOpenDays      int `envconfig:"ROUTEPILOT_POLICY_CONFIRMATION_OPEN_DAYS" default:"7"`
	ConfirmationDeadlineHours int `envconfig:"ROUTEPILOT_POLICY_CONFIRMATION_DEADLINE_HOURS" default:"48"`
	InstantCutoffHours        int `envconfig:"ROUTEPILOT_POLICY_INSTANT_CUTOFF_HOURS" default:"24"`

	DefaultShiftStartHour int `envconfig:"ROUTEPILOT_POLICY_DEFAULT_SHIFT_START_HOUR" default:"7"`
	ArrivalHardCutoffHour int `envconfig:"ROUTEPILOT_POLICY_ARRIVAL_HARD_CUTOFF_HOUR" default:"9"`
	ShiftEditableHours    int `envconfig:"ROUTEPILOT_POLICY_SHIFT_EDITABLE_HOURS" default:"24"`

	EmergencyPayBonusPercent int `envconfig:"ROUTEPILOT_POLICY_EMERGENCY_PAY_BONUS_PERCENT" default:"20"`

	ScoreWeightHealth      float64 `envconfig:"ROUTEPILOT_POLICY_SCORE_WEIGHT_HEALTH" default:"0.45"`
	ScoreWeightFamiliarity float64 `envconfig:"ROUTEPILOT_POLICY_SCORE_WEIGHT_FAMILIARITY" default:"0.25"`
	ScoreWeightTenure      float64 `envconfig:"ROUTEPILOT_POLICY_SCORE_WEIGHT_TENURE" default:"0.15"`
	ScoreWeightPreference  float64 `envconfig:"ROUTEPILOT_POLICY_SCORE_WEIGHT_PREFERENCE" default:"0.15"`
	HealthScoreCap         float64 `envconfig:"ROUTEPILOT_POLICY_HEALTH_SCORE_CAP" default:"100"`
	FamiliarityCap         int     `envconfig:"ROUTEPILOT_POLICY_FAMILIARITY_CAP" default:"50"`
	TenureMonthsCap        int     `envconfig:"ROUTEPILOT_POLICY_TENURE_MONTHS_CAP" default:"24"`
	PreferenceTopN         int     `envconfig:"ROUTEPILOT_POLICY_PREFERENCE_TOP_N" default:"3"`

	WeeklyAssignmentCap int `envconfig:"ROUTEPILOT_POLICY_WEEKLY_ASSIGNMENT_CAP" default:"6"`
}

// Policy validates the section and materializes the immutable policy value.
func (p PolicyConfig) Policy() (policy.Policy, error) {
	loc, err := time.LoadLocation(p.BusinessTimezone)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("invalid business timezone %q: %w", p.BusinessTimezone, err)
	}
	pol := policy.Policy{
		BusinessLocation:          loc,
		ConfirmationOpenDays:      p.ConfirmationOpenDays,
		ConfirmationDeadlineHours: p.ConfirmationDeadlineHours,
		InstantCutoffHours:        p.InstantCutoffHours,
		DefaultShiftStartHour:     p.DefaultShiftStartHour,
		ArrivalHardCutoffHour:     p.ArrivalHardCutoffHour,
		ShiftEditableHours:        p.ShiftEditableHours,
		EmergencyPayBonusPercent:  p.EmergencyPayBonusPercent,
		ScoreWeightHealth:         p.ScoreWeightHealth,
		ScoreWeightFamiliarity:    p.ScoreWeightFamiliarity,
		ScoreWeightTenure:         p.ScoreWeightTenure,
		ScoreWeightPreference:     p.ScoreWeightPreference,
		HealthScoreCap:            p.HealthScoreCap,
		FamiliarityCap:            p.FamiliarityCap,
		TenureMonthsCap:           p.TenureMonthsCap,
		PreferenceTopN:            p.PreferenceTopN,
		WeeklyAssignmentCap:       p.WeeklyAssignmentCap,
	}
	if err := pol.Validate(); err != nil {
		return policy.Policy{}, err
	}
	return pol, nil
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ROUTEPILOT_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"ROUTEPILOT_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ROUTEPILOT_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ROUTEPILOT_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ROUTEPILOT_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DispatchTopic        string `envconfig:"ROUTEPILOT_PUBSUB_DISPATCH_TOPIC" default:"rp-dispatch-events"`
	DispatchSubscription string `envconfig:"ROUTEPILOT_PUBSUB_DISPATCH_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ROUTEPILOT_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ROUTEPILOT_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"ROUTEPILOT_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
