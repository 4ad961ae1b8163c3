package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	c.App.Env = "local"
	c.DB.Driver = DBDriverSQLite
	c.DB.SqlitePath = ":memory:"
	return c
}

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("SCHEDULING_CANDIDATE_HOURS", "9,12")
	t.Setenv("SCHEDULING_SWEEP_INTERVAL", "90s")

	c, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if len(c.Scheduling.CandidateHours) != 2 || c.Scheduling.CandidateHours[1] != 12 {
		t.Fatalf("candidate hours = %v", c.Scheduling.CandidateHours)
	}
	if c.Scheduling.SweepInterval != 90*time.Second {
		t.Fatalf("sweep interval = %v", c.Scheduling.SweepInterval)
	}
	if c.Scheduling.Timezone != "Europe/Vilnius" {
		t.Fatalf("timezone = %q", c.Scheduling.Timezone)
	}
	if c.Outbox.BatchSize != 50 || c.Outbox.MaxAttempts != 5 {
		t.Fatalf("outbox defaults = %+v", c.Outbox)
	}
}

func TestValidate_OK(t *testing.T) {
	c := validConfig(t)
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	c := validConfig(t)
	c.App.Env = "moon"
	c.DB.Driver = "mysql"
	c.Scheduling.Timezone = "Mars/Base"
	c.Scheduling.DefaultResourceID = "not-a-uuid"

	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"APP_ENV", "DB_DRIVER", "SCHEDULING_TIMEZONE", "SCHEDULING_DEFAULT_RESOURCE_ID"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q does not mention %s", msg, want)
		}
	}
}

func TestValidate_ProductionRequiresSecrets(t *testing.T) {
	c := validConfig(t)
	c.App.Env = "production"
	c.Auth.JWTSecret = "short"

	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error in production")
	}
	if !strings.Contains(err.Error(), "AUTH_JWT_SECRET") || !strings.Contains(err.Error(), "SCHEDULING_PREVIEW_SECRET") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{Host: "db", User: "u", Password: "p", Name: "n", Port: 5433, SSLMode: "disable", TimeZone: "UTC"}
	dsn := c.DSN()
	if !strings.Contains(dsn, "host=db") || !strings.Contains(dsn, "port=5433") {
		t.Fatalf("dsn = %q", dsn)
	}
}
