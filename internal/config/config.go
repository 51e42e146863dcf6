package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/TheNickoos/GilsTracker/internal/logging"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort         = 8787
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTickRate     = 16 * time.Millisecond
	DefaultFeedFileName = "inventory.jsonl"
	DefaultRedisChannel = "gilstracker:changes"
	DefaultAMQPExchange = "gilstracker"
	DefaultAMQPRouteKey = "gil.changed"
	appDirName          = "gilstracker"

	ModeFeed = "feed"
	ModeMock = "mock"
)

// ErrInvalid wraps every validation failure returned by Validate.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Source    SourceConfig    `yaml:"source"`
	Display   DisplayConfig   `yaml:"display"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       logging.Config  `yaml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
}

type TrackerConfig struct {
	// PollInterval is the minimum spacing between processed ticks.
	PollInterval time.Duration `yaml:"poll_interval"`
	// TickRate is how often the host framework fires update ticks.
	TickRate time.Duration `yaml:"tick_rate"`
}

type SourceConfig struct {
	Mode           string        `yaml:"mode"`
	FeedPath       string        `yaml:"feed_path"`
	FeedPoll       time.Duration `yaml:"feed_poll"`
	ProcessName    string        `yaml:"process_name"`
	ProcessRefresh time.Duration `yaml:"process_refresh"`
	MockSeed       int64         `yaml:"mock_seed"`
	MockStep       time.Duration `yaml:"mock_step"`
}

// DisplayConfig holds user-facing preferences that clients can change at
// runtime; they are written back to the config file.
type DisplayConfig struct {
	ShowStatusEntry bool `yaml:"show_status_entry" json:"showStatusEntry"`
}

type BroadcastConfig struct {
	Throttle         time.Duration `yaml:"throttle"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	HistorySize      int           `yaml:"history_size"`
}

type NotifyConfig struct {
	AMQPURL        string `yaml:"amqp_url"`
	AMQPExchange   string `yaml:"amqp_exchange"`
	AMQPRoutingKey string `yaml:"amqp_routing_key"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisChannel   string `yaml:"redis_channel"`
	QueueSize      int    `yaml:"queue_size"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           DefaultPort,
			Host:           "127.0.0.1",
			MaxConnections: 16,
		},
		Tracker: TrackerConfig{
			PollInterval: DefaultPollInterval,
			TickRate:     DefaultTickRate,
		},
		Source: SourceConfig{
			Mode:           ModeFeed,
			FeedPath:       filepath.Join(defaultStateDir(), DefaultFeedFileName),
			FeedPoll:       time.Second,
			ProcessRefresh: 2 * time.Second,
			MockSeed:       1,
			MockStep:       time.Second,
		},
		Display: DisplayConfig{
			ShowStatusEntry: true,
		},
		Broadcast: BroadcastConfig{
			Throttle:         100 * time.Millisecond,
			SnapshotInterval: 2 * time.Second,
			HistorySize:      50,
		},
		Notify: NotifyConfig{
			AMQPExchange:   DefaultAMQPExchange,
			AMQPRoutingKey: DefaultAMQPRouteKey,
			RedisChannel:   DefaultRedisChannel,
			QueueSize:      256,
		},
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = defaultConfig()
		cfg.applyEnv()
		return cfg, nil
	}
	return cfg, err
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; variables already set win.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, f := range files {
		_ = godotenv.Load(f)
	}
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return os.Rename(tmp, path)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return &cp
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GILSTRACKER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("GILSTRACKER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("GILSTRACKER_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("GILSTRACKER_FEED"); v != "" {
		c.Source.FeedPath = v
	}
	if v := os.Getenv("GILSTRACKER_AMQP_URL"); v != "" {
		c.Notify.AMQPURL = v
	}
	if v := os.Getenv("GILSTRACKER_REDIS_ADDR"); v != "" {
		c.Notify.RedisAddr = v
	}
	if v := os.Getenv(logging.EnvLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Server.Port))
	}
	if c.Server.MaxConnections < 0 {
		problems = append(problems, fmt.Sprintf("invalid max_connections %d: must not be negative", c.Server.MaxConnections))
	}

	if c.Tracker.PollInterval < 50*time.Millisecond {
		problems = append(problems, fmt.Sprintf("invalid poll_interval %v: must be at least 50ms", c.Tracker.PollInterval))
	}
	if c.Tracker.TickRate <= 0 {
		problems = append(problems, fmt.Sprintf("invalid tick_rate %v: must be positive", c.Tracker.TickRate))
	}

	switch c.Source.Mode {
	case ModeFeed:
		if c.Source.FeedPath == "" {
			problems = append(problems, "feed_path is required when source mode is feed")
		}
		if c.Source.FeedPoll <= 0 {
			problems = append(problems, fmt.Sprintf("invalid feed_poll %v: must be positive", c.Source.FeedPoll))
		}
	case ModeMock:
		if c.Source.MockStep <= 0 {
			problems = append(problems, fmt.Sprintf("invalid mock_step %v: must be positive", c.Source.MockStep))
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid source mode %q: must be one of [%s %s]", c.Source.Mode, ModeFeed, ModeMock))
	}
	if c.Source.ProcessName != "" && c.Source.ProcessRefresh <= 0 {
		problems = append(problems, fmt.Sprintf("invalid process_refresh %v: must be positive", c.Source.ProcessRefresh))
	}

	if c.Broadcast.Throttle < 0 {
		problems = append(problems, fmt.Sprintf("invalid broadcast throttle %v: must not be negative", c.Broadcast.Throttle))
	}
	if c.Broadcast.SnapshotInterval <= 0 {
		problems = append(problems, fmt.Sprintf("invalid snapshot_interval %v: must be positive", c.Broadcast.SnapshotInterval))
	}
	if c.Broadcast.HistorySize < 0 {
		problems = append(problems, fmt.Sprintf("invalid history_size %d: must not be negative", c.Broadcast.HistorySize))
	}

	if c.Notify.AMQPURL != "" {
		if u, err := url.Parse(c.Notify.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.Notify.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.Notify.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}
	if c.Notify.RedisAddr != "" && c.Notify.RedisChannel == "" {
		problems = append(problems, "redis channel cannot be empty when redis address is provided")
	}
	if (c.Notify.AMQPURL != "" || c.Notify.RedisAddr != "") && c.Notify.QueueSize < 1 {
		problems = append(problems, fmt.Sprintf("invalid notify queue_size %d: must be at least 1", c.Notify.QueueSize))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n- %s", ErrInvalid, strings.Join(problems, "\n- "))
	}
	return nil
}

// Diff describes the fields that differ between two configs, for reload logs.
func Diff(old, new *Config) []string {
	var changes []string
	add := func(name string, a, b any) {
		if fmt.Sprint(a) != fmt.Sprint(b) {
			changes = append(changes, fmt.Sprintf("%s: %v → %v", name, a, b))
		}
	}
	add("tracker.poll_interval", old.Tracker.PollInterval, new.Tracker.PollInterval)
	add("tracker.tick_rate", old.Tracker.TickRate, new.Tracker.TickRate)
	add("source.mode", old.Source.Mode, new.Source.Mode)
	add("source.feed_path", old.Source.FeedPath, new.Source.FeedPath)
	add("source.process_name", old.Source.ProcessName, new.Source.ProcessName)
	add("display.show_status_entry", old.Display.ShowStatusEntry, new.Display.ShowStatusEntry)
	add("broadcast.throttle", old.Broadcast.Throttle, new.Broadcast.Throttle)
	add("broadcast.snapshot_interval", old.Broadcast.SnapshotInterval, new.Broadcast.SnapshotInterval)
	add("server.port", old.Server.Port, new.Server.Port)
	add("server.host", old.Server.Host, new.Server.Host)
	add("log.level", old.Log.Level, new.Log.Level)
	return changes
}

// GenerateToken returns a random 32-character hex auth token.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DefaultPath returns the config file location, respecting XDG_CONFIG_HOME.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appDirName, "config.yaml")
}

func defaultStateDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, appDirName)
}
