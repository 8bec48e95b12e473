package config

import "testing"

func validBase() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "gateway"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		SMTP:  SMTPConfig{Host: "localhost", Port: 25, From: "alerts@example.com"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLModeAndAdminEmail(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE and ADMIN_EMAIL")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Geo.BaseURL == "" || c.Geo.Timeout <= 0 {
		t.Fatalf("expected geo defaults, got %q %v", c.Geo.BaseURL, c.Geo.Timeout)
	}
}

func TestValidate_TwilioPartialCredentialsRejected(t *testing.T) {
	c := validBase()
	c.Twilio.AccountSID = "AC123"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for SID without token")
	}
	c.Twilio.AuthToken = "tok"
	c.Twilio.FromNumber = "+15550001111"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !c.SMSConfigured() {
		t.Fatalf("expected SMSConfigured true")
	}
}
