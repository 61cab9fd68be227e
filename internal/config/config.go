package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL        = "http://127.0.0.1:8000"
	DefaultRedisURL      = "redis://127.0.0.1:6379/0"
	DefaultQueueKey      = "eviforge:jobs"
	DefaultDBFileName    = "eviforge.db"
	DefaultExecutionMode = "auto"
	DefaultLogLevel      = "info"
	DefaultActor         = "system"

	DefaultJobTimeout          = time.Hour
	DefaultQueueAttemptTimeout = 2 * time.Second
	DefaultInlineWorkers       = 4

	configFileName  = ".eviforge.toml"
	configDirEnvKey = "EVIFORGE_CONFIG_DIR"

	dataDirEnvKey       = "EVIFORGE_DATA_DIR"
	vaultDirEnvKey      = "EVIFORGE_VAULT_DIR"
	dbPathEnvKey        = "EVIFORGE_DB_PATH"
	apiURLEnvKey        = "EVIFORGE_API_URL"
	redisURLEnvKey      = "EVIFORGE_REDIS_URL"
	executionModeEnvKey = "EVIFORGE_JOB_EXECUTION"
	jobTimeoutEnvKey    = "EVIFORGE_JOB_TIMEOUT"
	inlineWorkersEnvKey = "EVIFORGE_INLINE_WORKERS"
	actorEnvKey         = "EVIFORGE_ACTOR"
)

// Config defines runtime configuration for the eviforge core. It is
// loaded once at process start and passed explicitly into the startup
// reconciliation step; nothing reads it through ambient globals.
type Config struct {
	DataDir             string        `toml:"data_dir"`
	VaultDir            string        `toml:"vault_dir"`
	DBPath              string        `toml:"db_path"`
	APIURL              string        `toml:"api_url"`
	RedisURL            string        `toml:"redis_url"`
	QueueKey            string        `toml:"queue_key"`
	ExecutionMode       string        `toml:"execution_mode"`
	JobTimeout          time.Duration `toml:"-"`
	QueueAttemptTimeout time.Duration `toml:"-"`
	InlineWorkers       int           `toml:"inline_workers"`
	LogLevel            string        `toml:"log_level"`
	Actor               string        `toml:"actor"`

	// TOML cannot decode time.Duration directly; these carry the raw
	// strings and are resolved in finalize.
	JobTimeoutRaw          string `toml:"job_timeout"`
	QueueAttemptTimeoutRaw string `toml:"queue_attempt_timeout"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		DataDir:             ".eviforge",
		APIURL:              DefaultAPIURL,
		RedisURL:            DefaultRedisURL,
		QueueKey:            DefaultQueueKey,
		ExecutionMode:       DefaultExecutionMode,
		JobTimeout:          DefaultJobTimeout,
		QueueAttemptTimeout: DefaultQueueAttemptTimeout,
		InlineWorkers:       DefaultInlineWorkers,
		LogLevel:            DefaultLogLevel,
		Actor:               DefaultActor,
	}
}

// Load reads the config file (if any) and applies env overrides.
func Load() (Config, error) {
	cfg := Default()

	path, err := configPath()
	if err != nil {
		return cfg, err
	}
	if err := loadFileIfExists(path, &cfg); err != nil {
		return cfg, err
	}

	applyEnv(&cfg)

	if err := finalize(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func configPath() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(configDirEnvKey)); dir != "" {
		return filepath.Join(dir, configFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

func loadFileIfExists(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(dataDirEnvKey, &cfg.DataDir)
	setString(vaultDirEnvKey, &cfg.VaultDir)
	setString(dbPathEnvKey, &cfg.DBPath)
	setString(apiURLEnvKey, &cfg.APIURL)
	setString(redisURLEnvKey, &cfg.RedisURL)
	setString(executionModeEnvKey, &cfg.ExecutionMode)
	setString(jobTimeoutEnvKey, &cfg.JobTimeoutRaw)
	setString(actorEnvKey, &cfg.Actor)

	if v := strings.TrimSpace(os.Getenv(inlineWorkersEnvKey)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.InlineWorkers = n
		}
	}
}

func finalize(cfg *Config) error {
	abs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return err
	}
	cfg.DataDir = abs

	if strings.TrimSpace(cfg.VaultDir) == "" {
		cfg.VaultDir = filepath.Join(cfg.DataDir, "vault")
	} else if cfg.VaultDir, err = filepath.Abs(cfg.VaultDir); err != nil {
		return err
	}

	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, DefaultDBFileName)
	}

	if raw := strings.TrimSpace(cfg.JobTimeoutRaw); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid job_timeout %q: %w", raw, err)
		}
		cfg.JobTimeout = d
	}
	if raw := strings.TrimSpace(cfg.QueueAttemptTimeoutRaw); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid queue_attempt_timeout %q: %w", raw, err)
		}
		cfg.QueueAttemptTimeout = d
	}

	if cfg.InlineWorkers <= 0 {
		cfg.InlineWorkers = DefaultInlineWorkers
	}
	if strings.TrimSpace(cfg.QueueKey) == "" {
		cfg.QueueKey = DefaultQueueKey
	}
	if strings.TrimSpace(cfg.Actor) == "" {
		cfg.Actor = DefaultActor
	}
	return nil
}
