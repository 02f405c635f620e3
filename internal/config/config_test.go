package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	c := Config{
		App:    AppConfig{Env: "local", Port: 8080, BaseURL: "https://voice.example.com"},
		DB:     DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voicebot"},
		Redis:  RedisConfig{Host: "localhost", Port: 6379},
		Auth:   AuthConfig{JWTSecret: "secret"},
		Twilio: TwilioConfig{AccountSID: "AC1", AuthToken: "tok", FromNumber: "+441234"},
		AI:     AIConfig{GeminiAPIKey: "key"},
	}
	c.applyDefaults()
	return c
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB.SSLMode = ""
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestApplyDefaults_LocalDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Voice.Name != "Polly.Amy" || c.Voice.Language != "en-GB" || c.Voice.MaxTurns != 15 {
		t.Fatalf("unexpected voice defaults: %+v", c.Voice)
	}
	if c.Redis.SessionTTL != 30*time.Minute {
		t.Fatalf("expected 30m session ttl, got %s", c.Redis.SessionTTL)
	}
	if c.AI.AudioTimeout <= c.AI.TurnTimeout {
		t.Fatalf("audio timeout should exceed turn timeout: %+v", c.AI)
	}
}

func TestValidate_UnknownAIProvider(t *testing.T) {
	c := validConfig()
	c.AI.Provider = "llama"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "AI_PROVIDER") {
		t.Fatalf("expected AI_PROVIDER error, got %v", err)
	}
}

func TestValidate_OpenAIRequiresKey(t *testing.T) {
	c := validConfig()
	c.AI.Provider = "openai"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected missing OPENAI_API_KEY error")
	}
	c.AI.OpenAIAPIKey = "sk"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	c := validConfig()
	c.App.BaseURL = "voice.example.com"
	c.Twilio.FromNumber = ""
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected errors")
	}
	if !strings.HasPrefix(err.Error(), "config errors:") {
		t.Fatalf("expected joined errors, got %q", err.Error())
	}
}

func TestLoad_FromEnv(t *testing.T) {
	env := map[string]string{
		"APP_ENV":            "dev",
		"APP_PORT":           "9000",
		"APP_BASE_URL":       "https://voice.example.com/",
		"APP_TIMEZONE":       "Europe/London",
		"DB_HOST":            "db",
		"DB_PORT":            "5432",
		"DB_USER":            "u",
		"DB_NAME":            "n",
		"REDIS_HOST":         "r",
		"REDIS_PORT":         "6379",
		"JWT_SECRET":         "s",
		"TWILIO_ACCOUNT_SID": "AC1",
		"TWILIO_AUTH_TOKEN":  "t",
		"TWILIO_FROM_NUMBER": "+44",
		"GEMINI_API_KEY":     "g",
		"MAX_TURNS":          "10",
		"AI_TURN_TIMEOUT":    "5s",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.App.BaseURL != "https://voice.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.App.BaseURL)
	}
	if c.Voice.MaxTurns != 10 {
		t.Fatalf("expected max turns 10, got %d", c.Voice.MaxTurns)
	}
	if c.AI.TurnTimeout != 5*time.Second {
		t.Fatalf("expected 5s turn timeout, got %s", c.AI.TurnTimeout)
	}
	if c.Location().String() != "Europe/London" {
		t.Fatalf("unexpected location %s", c.Location())
	}
	if c.Twilio.ValidateSignature {
		t.Fatalf("signature validation should default off outside production")
	}
}
