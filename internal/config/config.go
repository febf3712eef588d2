package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		SnapshotTopic string   `yaml:"snapshot_topic"`
		ActionTopic   string   `yaml:"action_topic"`
		GroupID       string   `yaml:"group_id"`
	} `yaml:"kafka"`
	Rules struct {
		StrictValidation bool `yaml:"strict_validation"`
		Parallelism      int  `yaml:"parallelism"`
	} `yaml:"rules"`
	Pipeline struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queue_size"`
	} `yaml:"pipeline"`
	Retention struct {
		Cron      string `yaml:"cron"`
		Days      int    `yaml:"days"`
		StatsCron string `yaml:"stats_cron"`
	} `yaml:"retention"`
	Websocket struct {
		MaxClients     int      `yaml:"max_clients"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"websocket"`
	History struct {
		SnapshotsPerCampaign int `yaml:"snapshots_per_campaign"`
		ActionsPerAccount    int `yaml:"actions_per_account"`
	} `yaml:"history"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	// Environment variable overrides
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_SNAPSHOT_TOPIC"); v != "" {
		cfg.Kafka.SnapshotTopic = v
	}
	if v := os.Getenv("KAFKA_ACTION_TOPIC"); v != "" {
		cfg.Kafka.ActionTopic = v
	}
	if v := os.Getenv("KAFKA_GROUP_ID"); v != "" {
		cfg.Kafka.GroupID = v
	}
	if v := os.Getenv("RETENTION_CRON"); v != "" {
		cfg.Retention.Cron = v
	}
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("parse RETENTION_DAYS: %w", err)
		}
		cfg.Retention.Days = days
	}
	if v := os.Getenv("STRICT_RULES"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("parse STRICT_RULES: %w", err)
		}
		cfg.Rules.StrictValidation = strict
	}

	// Defaults
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Kafka.SnapshotTopic == "" {
		cfg.Kafka.SnapshotTopic = "campaign-snapshots"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "campaignrules"
	}
	if cfg.Rules.Parallelism == 0 {
		cfg.Rules.Parallelism = 1
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.QueueSize == 0 {
		cfg.Pipeline.QueueSize = 1000
	}
	if cfg.Retention.Cron == "" {
		cfg.Retention.Cron = "0 0 3 * * *"
	}
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = 30
	}
	if cfg.Retention.StatsCron == "" {
		cfg.Retention.StatsCron = "0 */5 * * * *"
	}
	if cfg.Websocket.MaxClients == 0 {
		cfg.Websocket.MaxClients = 100
	}
	if cfg.History.SnapshotsPerCampaign == 0 {
		cfg.History.SnapshotsPerCampaign = 500
	}
	if cfg.History.ActionsPerAccount == 0 {
		cfg.History.ActionsPerAccount = 1000
	}

	return cfg, nil
}

// Validate checks that all fields hold usable values.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("server.port must be numeric, got %q", c.Server.Port)
	}
	if c.Rules.Parallelism < 1 {
		return fmt.Errorf("rules.parallelism must be at least 1")
	}
	if c.Pipeline.Workers < 1 || c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("pipeline.workers and pipeline.queue_size must be positive")
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("retention.days must be positive")
	}
	if c.Websocket.MaxClients < 1 {
		return fmt.Errorf("websocket.max_clients must be positive")
	}
	if c.History.SnapshotsPerCampaign < 1 || c.History.ActionsPerAccount < 1 {
		return fmt.Errorf("history limits must be positive")
	}
	return nil
}

// KafkaEnabled reports whether snapshots should be consumed from Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
