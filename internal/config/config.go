package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fieldops/funnel/internal/funnel"
	"github.com/fieldops/funnel/internal/geo"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Events     EventsConfig     `yaml:"events"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Distance   DistanceConfig   `yaml:"distance"`
	Funnel     FunnelConfig     `yaml:"funnel"`
	Assignment AssignmentConfig `yaml:"assignment"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type EventsConfig struct {
	URL string `yaml:"url"`
}

type CatalogConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type DistanceConfig struct {
	Method    string `yaml:"method"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type FunnelConfig struct {
	Weights             funnel.Weights `yaml:"weights"`
	Bands               geo.Bands      `yaml:"distance_bands"`
	RiskPenaltyPerLevel float64        `yaml:"risk_penalty_per_level"`
	DistanceConcurrency int            `yaml:"distance_concurrency"`
}

type AssignmentConfig struct {
	BroadcastTopN int `yaml:"broadcast_top_n"`
	OfferTTLMs    int `yaml:"offer_ttl_ms"`
	ExpiryTickMs  int `yaml:"expiry_tick_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) DistanceTimeout() time.Duration {
	return time.Duration(c.Distance.TimeoutMs) * time.Millisecond
}

func (c *Config) OfferTTL() time.Duration {
	return time.Duration(c.Assignment.OfferTTLMs) * time.Millisecond
}

func (c *Config) ExpiryTick() time.Duration {
	return time.Duration(c.Assignment.ExpiryTickMs) * time.Millisecond
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
		},
		Events: EventsConfig{
			URL: "nats://localhost:4222",
		},
		Catalog: CatalogConfig{
			URL: "http://localhost:8710",
		},
		Distance: DistanceConfig{
			Method:    geo.MethodHaversine,
			TimeoutMs: 2000,
		},
		Funnel: FunnelConfig{
			Weights:             funnel.DefaultWeights(),
			Bands:               geo.DefaultBands(),
			RiskPenaltyPerLevel: 2,
			DistanceConcurrency: 4,
		},
		Assignment: AssignmentConfig{
			BroadcastTopN: 3,
			OfferTTLMs:    1800000,
			ExpiryTickMs:  30000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("FUNNEL_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("FUNNEL_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("FUNNEL_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("FUNNEL_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("FUNNEL_NATS_URL"); v != "" {
		cfg.Events.URL = v
	}
	if v := os.Getenv("FUNNEL_CATALOG_URL"); v != "" {
		cfg.Catalog.URL = v
	}
	if v := os.Getenv("FUNNEL_CATALOG_TOKEN"); v != "" {
		cfg.Catalog.Token = v
	}
	if v := os.Getenv("FUNNEL_DISTANCE_METHOD"); v != "" {
		cfg.Distance.Method = v
	}
	if v := os.Getenv("FUNNEL_DISTANCE_API_KEY"); v != "" {
		cfg.Distance.APIKey = v
	}
	if v := os.Getenv("FUNNEL_DISTANCE_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Distance.TimeoutMs = n
		}
	}
	if v := os.Getenv("FUNNEL_BROADCAST_TOP_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Assignment.BroadcastTopN = n
		}
	}
	if v := os.Getenv("FUNNEL_OFFER_TTL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Assignment.OfferTTLMs = n
		}
	}
	if v := os.Getenv("FUNNEL_EXPIRY_TICK_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Assignment.ExpiryTickMs = n
		}
	}
	if v := os.Getenv("FUNNEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FUNNEL_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
