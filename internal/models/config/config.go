package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config основной конфиг
type Config struct {
	Environment string         `mapstructure:"environment" validate:"required"`
	Bot         BotConfig      `mapstructure:"bot"`
	Database    DatabaseConfig `mapstructure:"db"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Redis       RedisConfig    `mapstructure:"redis"`
	HTTP        HTTPConfig     `mapstructure:"http"`
	Source      SourceConfig   `mapstructure:"source"`
	Sync        SyncConfig     `mapstructure:"sync"`
	Log         LogConfig      `mapstructure:"log"`
}

type BotConfig struct {
	Enabled  bool    `mapstructure:"enabled"`
	Token    string  `mapstructure:"token" validate:"required_if=Enabled true"`
	Debug    bool    `mapstructure:"debug"`
	AdminIDs []int64 `mapstructure:"admin_ids"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=postgres memory"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type HTTPConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Port       int    `mapstructure:"port" validate:"min=1,max=65535"`
	AdminToken string `mapstructure:"admin_token"`
}

// SourceConfig: всё, что нужно фетчерам.
type SourceConfig struct {
	ScheduleURL     string        `mapstructure:"schedule_url" validate:"required,url"`
	SheetExportBase string        `mapstructure:"sheet_export_base" validate:"required,url"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"min=1s,max=5m"`
	MaxFileSize     int64         `mapstructure:"max_file_size" validate:"min=1"`
	UserAgent       string        `mapstructure:"user_agent"`
}

// SyncConfig: ежедневная синхронизация с сайтом.
type SyncConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Time     string `mapstructure:"time" validate:"required,datetime=15:04"`
	Timezone string `mapstructure:"timezone" validate:"required"`
}

// Location возвращает часовой пояс синхронизации.
func (c SyncConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// Load загружает конфигурацию: переменные окружения > файл > значения по умолчанию.
func Load(path string) (*Config, error) {
	if getEnv("SCHEDULE_ENVIRONMENT", "development") != "production" {
		// .env нужен только локально; отсутствие файла не ошибка
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SCHEDULE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		adminIDsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// adminIDsHook разбирает список из переменной окружения ("1, 2,3") в []int64,
// пропуская нечисловые элементы.
func adminIDsHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]int64(nil)) {
		return data, nil
	}
	return parseAdminIDs(reflect.ValueOf(data).String()), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("bot.enabled", true)
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.debug", false)
	v.SetDefault("bot.admin_ids", []int64{})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "schedule")
	v.SetDefault("db.user", "schedule")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "15m")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.admin_token", "")

	v.SetDefault("source.schedule_url", "https://guu.ru/student/schedule/")
	v.SetDefault("source.sheet_export_base", "https://docs.google.com")
	v.SetDefault("source.timeout", "20s")
	v.SetDefault("source.max_file_size", 20<<20)
	v.SetDefault("source.user_agent", "guu-schedule-bot/1.0")

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.time", "05:00")
	v.SetDefault("sync.timezone", "Europe/Moscow")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

var validate = validator.New()

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	var errs []string
	if _, err := c.Sync.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("sync.timezone: %v", err))
	}
	if c.Storage.Driver == "postgres" && c.Database.Username == "" {
		errs = append(errs, "db.user is required")
	}
	if c.Database.Password == "" && c.Environment == "production" && c.Storage.Driver == "postgres" {
		errs = append(errs, "db.password is required in production")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, ", "))
	}
	return nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}
