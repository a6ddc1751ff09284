package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"

	TriggerStoreMemory      = "memory"
	TriggerStoreEventBridge = "eventbridge"

	LogFormatJSON = "json"
	LogFormatText = "text"
)

// EventBridge holds the target every external schedule invokes.
type EventBridge struct {
	TargetARN string
	RoleARN   string
	GroupName string
}

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	HTTPPort              int
	StorageDriver         string
	SQLitePath            string
	TriggerStore          string
	TriggerTimeout        time.Duration
	DefaultLanguage       string
	LogLevel              slog.Level
	LogFormat             string
	DeleteMissingNotFound bool
	EventBridge           EventBridge
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		HTTPPort:        8080,
		StorageDriver:   StorageSQLite,
		SQLitePath:      "scheduler.db",
		TriggerStore:    TriggerStoreMemory,
		TriggerTimeout:  10 * time.Second,
		DefaultLanguage: "en",
		LogLevel:        slog.LevelInfo,
		LogFormat:       LogFormatJSON,
	}
}

// fileConfig mirrors the optional YAML file. Empty values leave the
// defaults in place.
type fileConfig struct {
	HTTPPort int `yaml:"http_port"`
	Storage  struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Triggers struct {
		Store       string `yaml:"store"`
		Timeout     string `yaml:"timeout"`
		EventBridge struct {
			TargetARN string `yaml:"target_arn"`
			RoleARN   string `yaml:"role_arn"`
			Group     string `yaml:"group"`
		} `yaml:"eventbridge"`
	} `yaml:"triggers"`
	Messages struct {
		DefaultLanguage string `yaml:"default_language"`
	} `yaml:"messages"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	DeleteMissingNotFound *bool `yaml:"delete_missing_not_found"`
}

// Load reads the process environment and, when SCHEDULER_CONFIG_FILE is
// set, the YAML file it names.
func Load() (Config, error) {
	return LoadFrom(afero.NewOsFs(), os.Getenv)
}

// LoadFrom resolves configuration from fs and getenv. Environment values
// override the file, which overrides the defaults.
func LoadFrom(fs afero.Fs, getenv func(string) string) (Config, error) {
	cfg := Default()
	p := &parser{cfg: &cfg}

	if path := strings.TrimSpace(getenv("SCHEDULER_CONFIG_FILE")); path != "" {
		if err := p.applyFile(fs, path); err != nil {
			return Config{}, err
		}
	}
	p.applyEnv(getenv)

	if cfg.TriggerStore == TriggerStoreEventBridge {
		if cfg.EventBridge.TargetARN == "" {
			p.missing = append(p.missing, "SCHEDULER_EVENTBRIDGE_TARGET_ARN")
		}
		if cfg.EventBridge.RoleARN == "" {
			p.missing = append(p.missing, "SCHEDULER_EVENTBRIDGE_ROLE_ARN")
		}
	}

	if len(p.missing) > 0 {
		return Config{}, fmt.Errorf("必須の設定値がありません: %s", strings.Join(p.missing, ", "))
	}
	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("設定値が不正です: %s", strings.Join(p.invalid, ", "))
	}
	return cfg, nil
}

type parser struct {
	cfg     *Config
	missing []string
	invalid []string
}

func (p *parser) applyFile(fs afero.Fs, path string) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("設定ファイルが見つかりません: %s", path)
		}
		return fmt.Errorf("設定ファイルを読み込めません: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("設定ファイルの形式が不正です: %w", err)
	}

	if fc.HTTPPort != 0 {
		p.port("http_port", strconv.Itoa(fc.HTTPPort))
	}
	p.storage("storage.driver", fc.Storage.Driver)
	p.str(&p.cfg.SQLitePath, fc.Storage.SQLitePath)
	p.triggerStore("triggers.store", fc.Triggers.Store)
	p.timeout("triggers.timeout", fc.Triggers.Timeout)
	p.str(&p.cfg.EventBridge.TargetARN, fc.Triggers.EventBridge.TargetARN)
	p.str(&p.cfg.EventBridge.RoleARN, fc.Triggers.EventBridge.RoleARN)
	p.str(&p.cfg.EventBridge.GroupName, fc.Triggers.EventBridge.Group)
	p.language("messages.default_language", fc.Messages.DefaultLanguage)
	p.logLevel("log.level", fc.Log.Level)
	p.logFormat("log.format", fc.Log.Format)
	if fc.DeleteMissingNotFound != nil {
		p.cfg.DeleteMissingNotFound = *fc.DeleteMissingNotFound
	}
	return nil
}

func (p *parser) applyEnv(getenv func(string) string) {
	env := func(key string) string { return strings.TrimSpace(getenv(key)) }

	p.port("SCHEDULER_HTTP_PORT", env("SCHEDULER_HTTP_PORT"))
	p.storage("SCHEDULER_STORAGE", env("SCHEDULER_STORAGE"))
	p.str(&p.cfg.SQLitePath, env("SCHEDULER_SQLITE_PATH"))
	p.triggerStore("SCHEDULER_TRIGGER_STORE", env("SCHEDULER_TRIGGER_STORE"))
	p.timeout("SCHEDULER_TRIGGER_TIMEOUT", env("SCHEDULER_TRIGGER_TIMEOUT"))
	p.str(&p.cfg.EventBridge.TargetARN, env("SCHEDULER_EVENTBRIDGE_TARGET_ARN"))
	p.str(&p.cfg.EventBridge.RoleARN, env("SCHEDULER_EVENTBRIDGE_ROLE_ARN"))
	p.str(&p.cfg.EventBridge.GroupName, env("SCHEDULER_EVENTBRIDGE_GROUP"))
	p.language("SCHEDULER_DEFAULT_LANGUAGE", env("SCHEDULER_DEFAULT_LANGUAGE"))
	p.logLevel("SCHEDULER_LOG_LEVEL", env("SCHEDULER_LOG_LEVEL"))
	p.logFormat("SCHEDULER_LOG_FORMAT", env("SCHEDULER_LOG_FORMAT"))

	if value := env("SCHEDULER_DELETE_MISSING_NOT_FOUND"); value != "" {
		flag, err := strconv.ParseBool(value)
		if err != nil {
			p.invalid = append(p.invalid, "SCHEDULER_DELETE_MISSING_NOT_FOUND")
		} else {
			p.cfg.DeleteMissingNotFound = flag
		}
	}
}

func (p *parser) str(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func (p *parser) port(name, value string) {
	if value == "" {
		return
	}
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		p.invalid = append(p.invalid, name)
		return
	}
	p.cfg.HTTPPort = port
}

func (p *parser) storage(name, value string) {
	switch value = strings.ToLower(strings.TrimSpace(value)); value {
	case "":
	case StorageSQLite, StorageMemory:
		p.cfg.StorageDriver = value
	default:
		p.invalid = append(p.invalid, name)
	}
}

func (p *parser) triggerStore(name, value string) {
	switch value = strings.ToLower(strings.TrimSpace(value)); value {
	case "":
	case TriggerStoreMemory, TriggerStoreEventBridge:
		p.cfg.TriggerStore = value
	default:
		p.invalid = append(p.invalid, name)
	}
}

func (p *parser) timeout(name, value string) {
	if value = strings.TrimSpace(value); value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		p.invalid = append(p.invalid, name)
		return
	}
	p.cfg.TriggerTimeout = d
}

func (p *parser) language(name, value string) {
	if value = strings.TrimSpace(value); value == "" {
		return
	}
	tag, err := language.Parse(value)
	if err != nil {
		p.invalid = append(p.invalid, name)
		return
	}
	p.cfg.DefaultLanguage = tag.String()
}

func (p *parser) logLevel(name, value string) {
	if value = strings.TrimSpace(value); value == "" {
		return
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		p.invalid = append(p.invalid, name)
		return
	}
	p.cfg.LogLevel = level
}

func (p *parser) logFormat(name, value string) {
	switch value = strings.ToLower(strings.TrimSpace(value)); value {
	case "":
	case LogFormatJSON, LogFormatText:
		p.cfg.LogFormat = value
	default:
		p.invalid = append(p.invalid, name)
	}
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.HTTPPort)
}
