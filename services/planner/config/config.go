// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the planner service configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianTwin/services/planner/casebase"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/record"
	"github.com/AleutianAI/AleutianTwin/services/planner/scoring"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
	"github.com/AleutianAI/AleutianTwin/services/planner/transport/kafkaio"
	"github.com/AleutianAI/AleutianTwin/services/planner/twin"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TWIN_"

// Casebase backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Loop snapshot sources.
const (
	SourceTwin  = "twin"
	SourceKafka = "kafka"
)

// Config is the top-level config struct that can be loaded from files/env.
type Config struct {
	// Planner shapes the simulation tree and the path choice.
	Planner PlannerConfig `json:"planner" yaml:"planner"`

	// Budget bounds each tree build.
	Budget BudgetConfig `json:"budget" yaml:"budget"`

	// CircuitBreaker protects the twin stepper.
	CircuitBreaker simtree.CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`

	// Casebase selects where simulated plans are memoized.
	Casebase CasebaseConfig `json:"casebase" yaml:"casebase"`

	// Knowledge locates the goals and actuation catalog.
	Knowledge KnowledgeConfig `json:"knowledge" yaml:"knowledge"`

	// Twin configures the in-process thermal zone.
	Twin TwinConfig `json:"twin" yaml:"twin"`

	// Kafka connects the loop to a remote zone.
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`

	// Influx records every round when a URL is set.
	Influx record.InfluxConfig `json:"influx" yaml:"influx"`

	// HTTP serves the API.
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Loop drives Monitor, Plan and Execute on an interval.
	Loop LoopConfig `json:"loop" yaml:"loop"`

	// Observability configures logging, tracing and metrics.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// PlannerConfig configures tree expansion and scoring.
type PlannerConfig struct {
	LookAheadCycles  int                      `json:"lookahead_cycles" yaml:"lookahead_cycles" validate:"gte=0"`
	TickDuration     time.Duration            `json:"tick_duration" yaml:"tick_duration" validate:"gt=0"`
	RangeGranularity int                      `json:"range_granularity" yaml:"range_granularity" validate:"gte=0"`
	Workers          int                      `json:"workers" yaml:"workers" validate:"gte=0"`
	Strategy         string                   `json:"strategy" yaml:"strategy" validate:"oneof=directional euclidean"`
	Changes          []scoring.PropertyChange `json:"changes" yaml:"changes"`
}

// BudgetConfig bounds a tree build. Zero disables a limit.
type BudgetConfig struct {
	MaxNodes  int           `json:"max_nodes" yaml:"max_nodes" validate:"gte=0"`
	MaxDepth  int           `json:"max_depth" yaml:"max_depth" validate:"gte=0"`
	TimeLimit time.Duration `json:"time_limit" yaml:"time_limit" validate:"gte=0"`
}

// CasebaseConfig selects the case store.
type CasebaseConfig struct {
	Backend     string  `json:"backend" yaml:"backend" validate:"oneof=none memory badger sqlite"`
	Path        string  `json:"path" yaml:"path"`
	DoubleWidth float64 `json:"double_width" yaml:"double_width" validate:"gte=0"`
	IntWidth    float64 `json:"int_width" yaml:"int_width" validate:"gte=0"`
}

// KnowledgeConfig locates the knowledge document.
type KnowledgeConfig struct {
	Path  string `json:"path" yaml:"path"`
	Watch bool   `json:"watch" yaml:"watch"`
}

// TwinConfig configures the in-process zone.
type TwinConfig struct {
	Thermal            twin.ThermalConfig `json:"thermal" yaml:"thermal"`
	InitialTemperature float64            `json:"initial_temperature" yaml:"initial_temperature"`
	Speed              float64            `json:"speed" yaml:"speed" validate:"gt=0"`
}

// KafkaConfig enables the Kafka monitor and executor.
type KafkaConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	kafkaio.Config `json:",inline" yaml:",inline" validate:"-"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Address string `json:"address" yaml:"address" validate:"required"`
}

// LoopConfig configures the control loop.
type LoopConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" yaml:"interval" validate:"gte=0"`
	Source   string        `json:"source" yaml:"source" validate:"oneof=twin kafka"`
}

// ObservabilityConfig configures logging, tracing and metrics.
type ObservabilityConfig struct {
	TracingEnabled bool    `json:"tracing_enabled" yaml:"tracing_enabled"`
	MetricsEnabled bool    `json:"metrics_enabled" yaml:"metrics_enabled"`
	Exporter       string  `json:"exporter" yaml:"exporter" validate:"oneof=none stdout otlp"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
	ServiceName    string  `json:"service_name" yaml:"service_name" validate:"required"`
	LogLevel       string  `json:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogDir         string  `json:"log_dir" yaml:"log_dir"`
	LogJSON        bool    `json:"log_json" yaml:"log_json"`
}

// Default returns a configuration that plans against the in-process twin
// with an in-memory case store.
func Default() Config {
	tree := simtree.DefaultConfig()
	budget := simtree.DefaultBudgetConfig()
	return Config{
		Planner: PlannerConfig{
			LookAheadCycles:  tree.LookAheadCycles,
			TickDuration:     tree.TickDuration,
			RangeGranularity: tree.RangeGranularity,
			Workers:          tree.Workers,
			Strategy:         scoring.NameEuclidean,
		},
		Budget: BudgetConfig{
			MaxNodes:  budget.MaxNodes,
			MaxDepth:  budget.MaxDepth,
			TimeLimit: budget.TimeLimit,
		},
		CircuitBreaker: simtree.DefaultCircuitBreakerConfig(),
		Casebase: CasebaseConfig{
			Backend:     BackendMemory,
			DoubleWidth: 0.5,
		},
		Knowledge: KnowledgeConfig{Path: "knowledge.yaml"},
		Twin: TwinConfig{
			Thermal:            twin.DefaultThermalConfig(),
			InitialTemperature: 18,
			Speed:              1,
		},
		Kafka: KafkaConfig{Config: kafkaio.DefaultConfig()},
		HTTP:  HTTPConfig{Address: ":8090"},
		Loop: LoopConfig{
			Interval: 30 * time.Second,
			Source:   SourceTwin,
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			Exporter:       "none",
			SampleRate:     1,
			ServiceName:    "twinplanner",
			LogLevel:       "info",
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - path: Path to YAML/JSON config file (optional, can be empty).
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file exists but is invalid, or validation fails.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&cfg, os.Getenv); err != nil {
		return cfg, fmt.Errorf("load config env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(name string, dst *string) {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v := getenv(EnvPrefix + name); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = i
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v := getenv(EnvPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(name string, dst *bool) {
		if v := getenv(EnvPrefix + name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	// Planner
	integer("LOOKAHEAD_CYCLES", &cfg.Planner.LookAheadCycles)
	duration("TICK_DURATION", &cfg.Planner.TickDuration)
	integer("WORKERS", &cfg.Planner.Workers)
	str("STRATEGY", &cfg.Planner.Strategy)

	// Budget
	integer("MAX_NODES", &cfg.Budget.MaxNodes)
	duration("TIME_LIMIT", &cfg.Budget.TimeLimit)

	// Casebase and knowledge
	str("CASEBASE_BACKEND", &cfg.Casebase.Backend)
	str("CASEBASE_PATH", &cfg.Casebase.Path)
	str("KNOWLEDGE_PATH", &cfg.Knowledge.Path)
	boolean("KNOWLEDGE_WATCH", &cfg.Knowledge.Watch)

	// Transport and recording
	boolean("KAFKA_ENABLED", &cfg.Kafka.Enabled)
	if v := getenv(EnvPrefix + "KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	str("INFLUX_URL", &cfg.Influx.URL)
	str("INFLUX_TOKEN", &cfg.Influx.Token)
	str("INFLUX_ORG", &cfg.Influx.Org)
	str("INFLUX_BUCKET", &cfg.Influx.Bucket)

	// Serving
	str("HTTP_ADDRESS", &cfg.HTTP.Address)
	boolean("LOOP_ENABLED", &cfg.Loop.Enabled)
	duration("LOOP_INTERVAL", &cfg.Loop.Interval)
	str("LOOP_SOURCE", &cfg.Loop.Source)

	// Observability
	str("LOG_LEVEL", &cfg.Observability.LogLevel)
	str("LOG_DIR", &cfg.Observability.LogDir)
	boolean("TRACING_ENABLED", &cfg.Observability.TracingEnabled)
	str("TRACE_EXPORTER", &cfg.Observability.Exporter)
	str("OTLP_ENDPOINT", &cfg.Observability.OTLPEndpoint)

	return errors.Join(errs...)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the rules that span sections.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Planner.Strategy == scoring.NameDirectional && len(c.Planner.Changes) == 0 {
		return fmt.Errorf("directional strategy needs at least one property change")
	}
	if (c.Casebase.Backend == BackendBadger || c.Casebase.Backend == BackendSQLite) && c.Casebase.Path == "" {
		return fmt.Errorf("casebase backend %s needs a path", c.Casebase.Backend)
	}
	if c.Loop.Enabled && c.Loop.Source == SourceKafka && !c.Kafka.Enabled {
		return fmt.Errorf("loop source kafka needs kafka.enabled")
	}
	if c.Kafka.Enabled {
		if err := validate.Struct(c.Kafka.Config); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	if c.Observability.TracingEnabled && c.Observability.Exporter == "otlp" && c.Observability.OTLPEndpoint == "" {
		return fmt.Errorf("otlp exporter needs otlp_endpoint")
	}
	return nil
}

// Tree converts the planner section for simtree.NewBuilder.
func (c PlannerConfig) Tree() simtree.Config {
	return simtree.Config{
		LookAheadCycles:  c.LookAheadCycles,
		TickDuration:     c.TickDuration,
		RangeGranularity: c.RangeGranularity,
		Workers:          c.Workers,
	}
}

// ToTreeBudgetConfig converts BudgetConfig for simtree.WithBudget.
func (c BudgetConfig) ToTreeBudgetConfig() simtree.BudgetConfig {
	return simtree.BudgetConfig{
		MaxNodes:  c.MaxNodes,
		MaxDepth:  c.MaxDepth,
		TimeLimit: c.TimeLimit,
	}
}

// Quantizer builds the case key quantizer from the configured widths.
func (c CasebaseConfig) Quantizer() casebase.Quantizer {
	q := casebase.Quantizer{Widths: map[model.Kind]float64{}}
	if c.DoubleWidth > 0 {
		q.Widths[model.KindDouble] = c.DoubleWidth
	}
	if c.IntWidth > 0 {
		q.Widths[model.KindInt] = c.IntWidth
	}
	return q
}
