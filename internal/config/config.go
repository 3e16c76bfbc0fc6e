package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Logging struct {
		Env   string `yaml:"env"`   // dev|prod
		Level string `yaml:"level"` // debug|info|warn|error
	} `yaml:"logging"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Quiz struct {
		TTL string `yaml:"ttl"`
		// Source picks the quiz catalog: static|postgres|mongo.
		Source string `yaml:"source"`
	} `yaml:"quiz"`
	Room struct {
		AnswerWindow    string `yaml:"answerWindow"`
		MaxParticipants int    `yaml:"maxParticipants"`
		MaxRetries      int    `yaml:"maxRetries"`
		CodeAttempts    int    `yaml:"codeAttempts"`
		BroadcastTop    int    `yaml:"broadcastTop"`
		Retention       string `yaml:"retention"`
		SweepInterval   string `yaml:"sweepInterval"`
	} `yaml:"room"`
}

// Load reads YAML config from path and applies defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate fills defaults and rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "livequiz"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("config: store.driver redis requires redis.addr")
		}
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("config: store.driver postgres requires postgres.url")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("config: store.driver mongo requires mongo.uri")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	if c.Quiz.Source == "" {
		c.Quiz.Source = "static"
	}
	switch c.Quiz.Source {
	case "static":
	case DriverPostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("config: quiz.source postgres requires postgres.url")
		}
	case DriverMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("config: quiz.source mongo requires mongo.uri")
		}
	default:
		return fmt.Errorf("config: unknown quiz.source %q", c.Quiz.Source)
	}

	for name, raw := range map[string]string{
		"redis.ttl":          c.Redis.TTL,
		"quiz.ttl":           c.Quiz.TTL,
		"room.answerWindow":  c.Room.AnswerWindow,
		"room.retention":     c.Room.Retention,
		"room.sweepInterval": c.Room.SweepInterval,
	} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if c.Room.MaxParticipants < 0 || c.Room.MaxRetries < 0 || c.Room.CodeAttempts < 0 || c.Room.BroadcastTop < 0 {
		return fmt.Errorf("config: room limits must not be negative")
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
