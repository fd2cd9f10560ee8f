package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sandbox drivers.
const (
	SandboxDriverJudge0 = "judge0"
	SandboxDriverDocker = "docker"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	LogLevel    string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	SandboxDriver    string
	SandboxURL       string
	SandboxAuthToken string
	SandboxTimeout   time.Duration
	DockerHost       string
	DockerMemoryMB   int64
	DockerCPUShares  int64

	SubmitTimeout  time.Duration
	GradingWorkers int
	RunRateLimit   int
	EventRateLimit int

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	SnapshotFolder      string

	EventChannelBase string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// CloudinaryEnabled reports whether snapshot uploads can be stored.
func (c Config) CloudinaryEnabled() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("JOBIFY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Jobify Assessment API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("sandbox.driver", SandboxDriverJudge0)
	v.SetDefault("sandbox.timeout", "20s")
	v.SetDefault("docker.memory_mb", 256)
	v.SetDefault("docker.cpu_shares", 512)
	v.SetDefault("submit.timeout", "2m")
	v.SetDefault("grading.workers", 4)
	v.SetDefault("rate_limit.run", 20)
	v.SetDefault("rate_limit.events", 120)
	v.SetDefault("cloudinary.folder", "jobify/assessment-snapshots")
	v.SetDefault("events.channel_base", "jobify:assessment")

	sandboxTimeout, err := parseDuration(v, "sandbox.timeout")
	if err != nil {
		return Config{}, err
	}
	submitTimeout, err := parseDuration(v, "submit.timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		LogLevel:            strings.ToLower(v.GetString("log.level")),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		SandboxDriver:       strings.ToLower(strings.TrimSpace(v.GetString("sandbox.driver"))),
		SandboxURL:          v.GetString("sandbox.url"),
		SandboxAuthToken:    v.GetString("sandbox.auth_token"),
		SandboxTimeout:      sandboxTimeout,
		DockerHost:          v.GetString("docker.host"),
		DockerMemoryMB:      v.GetInt64("docker.memory_mb"),
		DockerCPUShares:     v.GetInt64("docker.cpu_shares"),
		SubmitTimeout:       submitTimeout,
		GradingWorkers:      v.GetInt("grading.workers"),
		RunRateLimit:        v.GetInt("rate_limit.run"),
		EventRateLimit:      v.GetInt("rate_limit.events"),
		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		SnapshotFolder:      v.GetString("cloudinary.folder"),
		EventChannelBase:    v.GetString("events.channel_base"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.SandboxDriver {
	case SandboxDriverJudge0:
		if cfg.SandboxURL == "" {
			return Config{}, fmt.Errorf("sandbox url must be provided for the judge0 driver")
		}
	case SandboxDriverDocker:
	default:
		return Config{}, fmt.Errorf("unsupported sandbox driver %q", cfg.SandboxDriver)
	}

	if cfg.GradingWorkers <= 0 {
		cfg.GradingWorkers = 4
	}
	if cfg.DockerMemoryMB <= 0 {
		cfg.DockerMemoryMB = 256
	}
	if cfg.DockerCPUShares <= 0 {
		cfg.DockerCPUShares = 512
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return duration, nil
}
