package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Twilio  TwilioConfig
	Voice   VoiceConfig
	AI      AIConfig
	Events  EventsConfig
	Sweeper SweeperConfig
}

type AppConfig struct {
	Env  string
	Port int

	// BaseURL is the public origin Twilio uses for REST-registered callbacks
	// (status callbacks, recording callbacks, outbound call webhooks).
	BaseURL string

	// Timezone is the clock business hours are evaluated against.
	Timezone string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int

	SessionTTL           time.Duration
	OnboardingSessionTTL time.Duration
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	FromNumber        string
	ValidateSignature bool
}

type VoiceConfig struct {
	Name     string
	Language string
	MaxTurns int
}

type AIConfig struct {
	Provider string

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey string
	OpenAIModel  string

	TextTimeout  time.Duration
	TurnTimeout  time.Duration
	AudioTimeout time.Duration
}

type EventsConfig struct {
	AMQPURL  string
	Exchange string
}

type SweeperConfig struct {
	Schedule   string
	StaleAfter time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_BASE_URL")), "/")
	c.App.Timezone = strings.TrimSpace(os.Getenv("APP_TIMEZONE"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.SessionTTL = mustDuration("SESSION_TTL")
	c.Redis.OnboardingSessionTTL = mustDuration("ONBOARDING_SESSION_TTL")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.ValidateSignature = optionalBool("TWILIO_VALIDATE_SIGNATURE", c.App.Env == "production")

	c.Voice.Name = strings.TrimSpace(os.Getenv("VOICE_NAME"))
	c.Voice.Language = strings.TrimSpace(os.Getenv("VOICE_LANGUAGE"))
	{
		n, err := optionalInt("MAX_TURNS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Voice.MaxTurns = n
	}

	c.AI.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER")))
	c.AI.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.AI.GeminiModel = strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
	c.AI.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.AI.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	c.AI.TextTimeout = mustDuration("AI_TEXT_TIMEOUT")
	c.AI.TurnTimeout = mustDuration("AI_TURN_TIMEOUT")
	c.AI.AudioTimeout = mustDuration("AI_AUDIO_TIMEOUT")

	c.Events.AMQPURL = strings.TrimSpace(os.Getenv("AMQP_URL"))
	c.Events.Exchange = strings.TrimSpace(os.Getenv("AMQP_EXCHANGE"))

	c.Sweeper.Schedule = strings.TrimSpace(os.Getenv("SWEEP_SCHEDULE"))
	c.Sweeper.StaleAfter = mustDuration("SWEEP_STALE_AFTER")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// applyDefaults fills optional values. Validate never mutates the receiver, so
// defaults have to land before it runs.
func (c *Config) applyDefaults() {
	if c.App.Timezone == "" {
		c.App.Timezone = "UTC"
	}
	if c.DB.SSLMode == "" && !c.IsProduction() {
		c.DB.SSLMode = "disable"
	}
	if c.Redis.SessionTTL <= 0 {
		c.Redis.SessionTTL = 30 * time.Minute
	}
	if c.Redis.OnboardingSessionTTL <= 0 {
		c.Redis.OnboardingSessionTTL = time.Hour
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Voice.Name == "" {
		c.Voice.Name = "Polly.Amy"
	}
	if c.Voice.Language == "" {
		c.Voice.Language = "en-GB"
	}
	if c.Voice.MaxTurns <= 0 {
		c.Voice.MaxTurns = 15
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "gemini"
	}
	if c.AI.GeminiModel == "" {
		c.AI.GeminiModel = "gemini-2.0-flash"
	}
	if c.AI.OpenAIModel == "" {
		c.AI.OpenAIModel = "gpt-4o-mini"
	}
	if c.AI.TextTimeout <= 0 {
		c.AI.TextTimeout = 30 * time.Second
	}
	if c.AI.TurnTimeout <= 0 {
		// The caller is on hold while this runs.
		c.AI.TurnTimeout = 8 * time.Second
	}
	if c.AI.AudioTimeout <= 0 {
		c.AI.AudioTimeout = 120 * time.Second
	}
	if c.Events.Exchange == "" {
		c.Events.Exchange = "voicebot.events"
	}
	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = "@every 10m"
	}
	if c.Sweeper.StaleAfter <= 0 {
		c.Sweeper.StaleAfter = 4 * time.Hour
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.BaseURL == "" {
		errs = append(errs, errors.New("APP_BASE_URL is required"))
	} else if !strings.HasPrefix(c.App.BaseURL, "http://") && !strings.HasPrefix(c.App.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("APP_BASE_URL must be an http(s) URL, got %q", c.App.BaseURL))
	}
	if c.App.Timezone != "" {
		if _, err := time.LoadLocation(c.App.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("APP_TIMEZONE is not a known location: %q", c.App.Timezone))
		}
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" && c.IsProduction() {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Twilio.FromNumber == "" {
		errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required"))
	}

	switch c.AI.Provider {
	case "gemini":
		if c.AI.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when AI_PROVIDER=gemini"))
		}
	case "openai":
		if c.AI.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when AI_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("AI_PROVIDER must be one of gemini, openai, got %q", c.AI.Provider))
	}
	if c.AI.TurnTimeout > 0 && c.AI.AudioTimeout > 0 && c.AI.AudioTimeout < c.AI.TurnTimeout {
		errs = append(errs, errors.New("AI_AUDIO_TIMEOUT must not be shorter than AI_TURN_TIMEOUT"))
	}

	if c.Voice.MaxTurns < 0 {
		errs = append(errs, fmt.Errorf("MAX_TURNS must be positive, got %d", c.Voice.MaxTurns))
	}

	if c.Events.AMQPURL != "" && !strings.HasPrefix(c.Events.AMQPURL, "amqp") {
		errs = append(errs, fmt.Errorf("AMQP_URL must use the amqp or amqps scheme"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Location resolves App.Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	if c.App.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func optionalBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
