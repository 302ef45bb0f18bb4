// Package conf loads the judge configuration from judge.toml with
// environment variable overrides. Components receive their settings
// at construction; nothing reads the environment afterwards.
package conf

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	Address        string   `toml:"address"`
	ApiToken       string   `toml:"api_token"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type StoreConfig struct {
	Root string `toml:"root"`
}

type QueueConfig struct {
	// Backend selects the transport: "memory", "sqs" or "nats".
	Backend  string `toml:"backend"`
	Capacity int    `toml:"capacity"`

	SqsUrl string `toml:"sqs_url"`

	NatsUrl     string `toml:"nats_url"`
	NatsSubject string `toml:"nats_subject"`
	NatsGroup   string `toml:"nats_group"`
}

type WorkerConfig struct {
	Count       int    `toml:"count"`
	WrapperPath string `toml:"wrapper_path"`
	WorkRoot    string `toml:"work_root"`
}

type CallbackConfig struct {
	Url string `toml:"url"`
}

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Store    StoreConfig    `toml:"store"`
	Queue    QueueConfig    `toml:"queue"`
	Worker   WorkerConfig   `toml:"worker"`
	Callback CallbackConfig `toml:"callback"`
	LogLevel string         `toml:"log_level"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Address: ":8080"},
		Store:  StoreConfig{Root: "var/judge/store"},
		Queue:  QueueConfig{Backend: "memory", Capacity: 1024},
		Worker: WorkerConfig{
			Count:       2,
			WrapperPath: "/usr/local/bin/limitrace",
			WorkRoot:    "var/judge/work",
		},
		LogLevel: "info",
	}
}

// Load reads path (skipped when empty or missing), then applies .env
// and environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	// .env is optional; real environment variables win over it
	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Address, "JUDGE_ADDRESS")
	setString(&cfg.Server.ApiToken, "JUDGE_API_TOKEN")
	setString(&cfg.Store.Root, "JUDGE_STORE_ROOT")
	setString(&cfg.Queue.Backend, "JUDGE_QUEUE_BACKEND")
	setString(&cfg.Queue.SqsUrl, "JUDGE_SQS_URL")
	setString(&cfg.Queue.NatsUrl, "JUDGE_NATS_URL")
	setString(&cfg.Queue.NatsSubject, "JUDGE_NATS_SUBJECT")
	setString(&cfg.Queue.NatsGroup, "JUDGE_NATS_GROUP")
	setInt(&cfg.Worker.Count, "JUDGE_WORKER_COUNT")
	setString(&cfg.Worker.WrapperPath, "JUDGE_WRAPPER_PATH")
	setString(&cfg.Worker.WorkRoot, "JUDGE_WORK_ROOT")
	setString(&cfg.Callback.Url, "JUDGE_CALLBACK_URL")
	setString(&cfg.LogLevel, "JUDGE_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (cfg Config) validate() error {
	switch cfg.Queue.Backend {
	case "memory":
	case "sqs":
		if cfg.Queue.SqsUrl == "" {
			return fmt.Errorf("queue backend sqs requires sqs_url")
		}
	case "nats":
		if cfg.Queue.NatsUrl == "" || cfg.Queue.NatsSubject == "" {
			return fmt.Errorf("queue backend nats requires nats_url and nats_subject")
		}
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
	if cfg.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	return nil
}

// Level parses the configured log level, defaulting to info.
func (cfg Config) Level() slog.Level {
	switch cfg.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
