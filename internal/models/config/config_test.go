package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SCHEDULE_BOT_TOKEN", "token")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.Timeout != 20*time.Second {
		t.Errorf("timeout = %s", cfg.Source.Timeout)
	}
	if cfg.Sync.Time != "05:00" || cfg.Sync.Timezone != "Europe/Moscow" {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Storage.Driver != "postgres" {
		t.Errorf("driver = %s", cfg.Storage.Driver)
	}
	if cfg.Bot.Token != "token" {
		t.Errorf("bot token not read from env: %q", cfg.Bot.Token)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
environment: staging
bot:
  enabled: false
storage:
  driver: memory
source:
  schedule_url: https://example.org/schedule/
  timeout: 5s
sync:
  time: "06:30"
  timezone: UTC
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCHEDULE_SOURCE_TIMEOUT", "7s")
	t.Setenv("SCHEDULE_BOT_ADMIN_IDS", "1, 2,x,3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Environment != "staging" || cfg.Storage.Driver != "memory" {
		t.Errorf("unexpected cfg %+v", cfg)
	}
	if cfg.Source.Timeout != 7*time.Second {
		t.Errorf("env should override file, timeout = %s", cfg.Source.Timeout)
	}
	if cfg.Sync.Time != "06:30" {
		t.Errorf("sync time = %s", cfg.Sync.Time)
	}
	if got := cfg.Bot.AdminIDs; len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("admin ids = %v", got)
	}
}

func TestLoad_AdminIDsFromEnv(t *testing.T) {
	tests := map[string][]int64{
		"1,2,3":    {1, 2, 3},
		"1, 2,3":   {1, 2, 3},
		"1,x":      {1},
		" 42 ":     {42},
		"100,,200": {100, 200},
	}
	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("SCHEDULE_BOT_TOKEN", "token")
			t.Setenv("SCHEDULE_BOT_ADMIN_IDS", raw)

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			got := cfg.Bot.AdminIDs
			if len(got) != len(want) {
				t.Fatalf("admin ids = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("admin ids = %v, want %v", got, want)
				}
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment: "development",
			Bot:         BotConfig{Enabled: true, Token: "t"},
			Database:    DatabaseConfig{Username: "u"},
			Storage:     StorageConfig{Driver: "postgres"},
			HTTP:        HTTPConfig{Port: 8080},
			Source: SourceConfig{
				ScheduleURL:     "https://guu.ru/student/schedule/",
				SheetExportBase: "https://docs.google.com",
				Timeout:         20 * time.Second,
				MaxFileSize:     1 << 20,
			},
			Sync: SyncConfig{Time: "05:00", Timezone: "Europe/Moscow"},
			Log:  LogConfig{Level: "info", Format: "json"},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	for name, mutate := range map[string]func(*Config){
		"bad sync time":     func(c *Config) { c.Sync.Time = "25:00" },
		"bad timezone":      func(c *Config) { c.Sync.Timezone = "Mars/Olympus" },
		"missing token":     func(c *Config) { c.Bot.Token = "" },
		"bad driver":        func(c *Config) { c.Storage.Driver = "mysql" },
		"missing db user":   func(c *Config) { c.Database.Username = "" },
		"zero timeout":      func(c *Config) { c.Source.Timeout = 0 },
		"bad schedule url":  func(c *Config) { c.Source.ScheduleURL = "not a url" },
		"prod w/o password": func(c *Config) { c.Environment = "production" },
	} {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDSN(t *testing.T) {
	dsn := DatabaseConfig{Host: "db", Port: 5432, Username: "u", Password: "p", Name: "n"}.DSN()
	if !strings.Contains(dsn, "host=db") || !strings.Contains(dsn, "sslmode=disable") {
		t.Errorf("unexpected dsn %s", dsn)
	}
}
