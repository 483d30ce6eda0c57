package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mtzanidakis/fedpipe/internal/pipeline"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Initiator InitiatorConfig `yaml:"initiator"`
	Parties   Parties         `yaml:"parties"`
	Backend   string          `yaml:"backend"`
	WorkMode  string          `yaml:"work_mode"`
	NATS      NATSConfig      `yaml:"nats"`
	Store     StoreConfig     `yaml:"store"`
	Runner    RunnerConfig    `yaml:"runner"`
	Log       LogConfig       `yaml:"log"`
}

type InitiatorConfig struct {
	Role    string `yaml:"role"`
	PartyID int64  `yaml:"party_id"`
}

// Parties maps role names to party IDs. The YAML mapping order is kept.
type Parties []pipeline.RoleParties

func (p *Parties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: parties must be a mapping of role to party ids", node.Line)
	}
	out := make(Parties, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var ids []int64
		switch val.Kind {
		case yaml.ScalarNode:
			var id int64
			if err := val.Decode(&id); err != nil {
				return fmt.Errorf("line %d: role %s: %w", val.Line, key.Value, err)
			}
			ids = []int64{id}
		default:
			if err := val.Decode(&ids); err != nil {
				return fmt.Errorf("line %d: role %s: %w", val.Line, key.Value, err)
			}
		}
		out = append(out, pipeline.RoleParties{Role: key.Value, Parties: ids})
	}
	*p = out
	return nil
}

type NATSConfig struct {
	// URL of an external NATS server. Empty means an embedded server is
	// started on Port.
	URL  string `yaml:"url"`
	Port int    `yaml:"port"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type RunnerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Backend:  "local",
		WorkMode: "sync",
		NATS: NATSConfig{
			Port: 4222,
		},
		Store: StoreConfig{
			Path: "data/fedpipe.db",
		},
		Runner: RunnerConfig{
			PollInterval: time.Second,
			Timeout:      time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("FEDPIPE_CONFIG")
	if path == "" {
		path = "config/fedpipe.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FEDPIPE_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("FEDPIPE_WORK_MODE"); v != "" {
		cfg.WorkMode = v
	}
	if v := os.Getenv("FEDPIPE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FEDPIPE_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("FEDPIPE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("FEDPIPE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.Runner.PollInterval <= 0 {
		return fmt.Errorf("runner.poll_interval must be positive, got %s", c.Runner.PollInterval)
	}
	if c.Runner.Timeout <= 0 {
		return fmt.Errorf("runner.timeout must be positive, got %s", c.Runner.Timeout)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// RoleBinding validates the configured parties. Without an explicit
// initiator the first party of the first role initiates.
func (c *Config) RoleBinding() (*pipeline.RoleBinding, error) {
	role, party := c.Initiator.Role, c.Initiator.PartyID
	if role == "" && len(c.Parties) > 0 && len(c.Parties[0].Parties) > 0 {
		role, party = c.Parties[0].Role, c.Parties[0].Parties[0]
	}
	b, err := pipeline.NewRoleBinding(role, party, c.Parties...)
	if err != nil {
		return nil, fmt.Errorf("config parties: %w", err)
	}
	return b, nil
}

// Party returns the first party ID bound to role, or 0.
func (c *Config) Party(role string) int64 {
	for _, rp := range c.Parties {
		if rp.Role == role && len(rp.Parties) > 0 {
			return rp.Parties[0]
		}
	}
	return 0
}

func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", c.Log.Level)
	}
}
