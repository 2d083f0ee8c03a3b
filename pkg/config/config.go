// Copyright 2026 © The Craftmind Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the agent. Values are loaded
// once at startup and treated as immutable for the process lifetime.
type Config struct {
	Log       LogConfig       `koanf:"log" yaml:"log"`
	Game      GameConfig      `koanf:"game" yaml:"game"`
	LLM       LLMConfig       `koanf:"llm" yaml:"llm"`
	Agent     AgentConfig     `koanf:"agent" yaml:"agent"`
	Task      TaskConfig      `koanf:"task" yaml:"task"`
	Diary     DiaryConfig     `koanf:"diary" yaml:"diary"`
	Places    PlacesConfig    `koanf:"places" yaml:"places"`
	Memory    MemoryConfig    `koanf:"memory" yaml:"memory"`
	Telemetry TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"` // json, text
}

// GameConfig describes the game endpoint and the MCP server that fronts it.
type GameConfig struct {
	Host     string   `koanf:"host" yaml:"host"`
	Port     int      `koanf:"port" yaml:"port"`
	Username string   `koanf:"username" yaml:"username"`
	MCP      MCPSpawn `koanf:"mcp" yaml:"mcp"`
}

// MCPSpawn is the stdio command that launches the MCP server.
type MCPSpawn struct {
	Command string   `koanf:"command" yaml:"command"`
	Args    []string `koanf:"args" yaml:"args"`
}

type LLMConfig struct {
	BaseURL string `koanf:"base_url" yaml:"base_url"`
	Model   string `koanf:"model" yaml:"model"`
	// Retries is the number of transport-level retries for a chat call.
	Retries int `koanf:"retries" yaml:"retries"`
}

// AgentConfig tunes the polling loop and plan validation.
type AgentConfig struct {
	ChatPrefix    string        `koanf:"chat_prefix" yaml:"chat_prefix"`
	CmdPrefix     string        `koanf:"cmd_prefix" yaml:"cmd_prefix"`
	PollInterval  time.Duration `koanf:"poll_interval" yaml:"poll_interval"`
	ReadTimeLimit time.Duration `koanf:"read_time_limit" yaml:"read_time_limit"`
	MaxHistory    int           `koanf:"max_history" yaml:"max_history"`
	SeenLimit     int           `koanf:"seen_limit" yaml:"seen_limit"`
	// PlanRetries is the number of corrective re-prompts after the first
	// invalid plan.
	PlanRetries int           `koanf:"plan_retries" yaml:"plan_retries"`
	Heartbeat   time.Duration `koanf:"heartbeat" yaml:"heartbeat"`
	// AllowedTools is the operator allow-list; tools outside it are never
	// offered to the planner nor invoked.
	AllowedTools []string `koanf:"allowed_tools" yaml:"allowed_tools"`
}

// TaskConfig tunes the tool polling runner.
type TaskConfig struct {
	PollInterval time.Duration `koanf:"poll_interval" yaml:"poll_interval"`
	MaxAttempts  int           `koanf:"max_attempts" yaml:"max_attempts"`
	// MaxAttemptsGather is the higher ceiling for resource-gathering tools,
	// which are inherently multi-step.
	MaxAttemptsGather int `koanf:"max_attempts_gather" yaml:"max_attempts_gather"`
	StallMax          int `koanf:"stall_max" yaml:"stall_max"`
}

// DiaryConfig tunes the memory gatekeeper.
type DiaryConfig struct {
	Path         string        `koanf:"path" yaml:"path"`
	MinScore     int           `koanf:"min_score" yaml:"min_score"`
	MaxPerMinute int           `koanf:"max_per_minute" yaml:"max_per_minute"`
	MaxPer10s    int           `koanf:"max_per_10s" yaml:"max_per_10s"`
	DedupWindow  time.Duration `koanf:"dedup_window" yaml:"dedup_window"`
	RollupFlush  time.Duration `koanf:"rollup_flush" yaml:"rollup_flush"`
	RollupMin    int           `koanf:"rollup_min" yaml:"rollup_min"`
}

type PlacesConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// MemoryConfig enables semantic recall over gated diary entries.
type MemoryConfig struct {
	Enabled         bool   `koanf:"enabled" yaml:"enabled"`
	Provider        string `koanf:"provider" yaml:"provider"` // qdrant, inmemory
	QdrantAddr      string `koanf:"qdrant_addr" yaml:"qdrant_addr"`
	Collection      string `koanf:"collection" yaml:"collection"`
	EmbedderBaseURL string `koanf:"embedder_base_url" yaml:"embedder_base_url"`
	EmbedderModel   string `koanf:"embedder_model" yaml:"embedder_model"`
	VectorSize      uint64 `koanf:"vector_size" yaml:"vector_size"`
	TopK            int    `koanf:"top_k" yaml:"top_k"`
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled" yaml:"enabled"`
	Exporter     string `koanf:"exporter" yaml:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint" yaml:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure" yaml:"otlp_insecure"`
}

func setDefaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("game.host", "localhost")
	k.Set("game.port", 25565)
	k.Set("game.username", "Craftmind")
	k.Set("game.mcp.command", "npx")
	k.Set("game.mcp.args", []string{"-y", "--", "@fundamentallabs/minecraft-mcp"})

	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("llm.model", "qwen2.5:7b-instruct")
	k.Set("llm.retries", 2)

	k.Set("agent.chat_prefix", `\`)
	k.Set("agent.cmd_prefix", `\!`)
	k.Set("agent.poll_interval", "800ms")
	k.Set("agent.read_time_limit", "60s")
	k.Set("agent.max_history", 20)
	k.Set("agent.seen_limit", 800)
	k.Set("agent.plan_retries", 2)
	k.Set("agent.heartbeat", "30s")
	k.Set("agent.allowed_tools", []string{
		"goToKnownLocation",
		"goToSomeone",
		"mineResource",
		"eatFood",
		"runAway",
		"attackSomeone",
	})

	k.Set("task.poll_interval", "800ms")
	k.Set("task.max_attempts", 6)
	k.Set("task.max_attempts_gather", 30)
	k.Set("task.stall_max", 4)

	k.Set("diary.path", "data/diary.ndjson")
	k.Set("diary.min_score", 3)
	k.Set("diary.max_per_minute", 18)
	k.Set("diary.max_per_10s", 6)
	k.Set("diary.dedup_window", "20s")
	k.Set("diary.rollup_flush", "30s")
	k.Set("diary.rollup_min", 2)

	k.Set("places.path", "data/places.db")

	k.Set("memory.enabled", false)
	k.Set("memory.provider", "inmemory")
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.collection", "craftmind_diary")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")
	k.Set("memory.vector_size", 768)
	k.Set("memory.top_k", 5)

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")
	k.Set("telemetry.otlp_insecure", true)
}

// Load reads configuration from defaults, an optional YAML file, and
// CRAFTMIND_-prefixed environment variables, in ascending precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// CRAFTMIND_LLM_BASE__URL -> llm.base_url. A double underscore marks an
	// underscore inside a key; single underscores separate nesting levels.
	if err := k.Load(env.Provider("CRAFTMIND_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "CRAFTMIND_"))
		s = strings.ReplaceAll(s, "__", "-")
		s = strings.ReplaceAll(s, "_", ".")
		return strings.ReplaceAll(s, "-", "_")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the loop cannot run with.
func (c *Config) Validate() error {
	if c.Game.Username == "" {
		return fmt.Errorf("game.username is required")
	}
	if c.Agent.ChatPrefix == "" {
		return fmt.Errorf("agent.chat_prefix is required")
	}
	if c.Agent.CmdPrefix == "" {
		return fmt.Errorf("agent.cmd_prefix is required")
	}
	if c.Agent.PollInterval <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive")
	}
	if c.Task.StallMax < 1 {
		return fmt.Errorf("task.stall_max must be at least 1")
	}
	if len(c.Agent.AllowedTools) == 0 {
		return fmt.Errorf("agent.allowed_tools must not be empty")
	}
	return nil
}

// AllowedToolSet returns the allow-list as a set.
func (c *Config) AllowedToolSet() map[string]bool {
	out := make(map[string]bool, len(c.Agent.AllowedTools))
	for _, name := range c.Agent.AllowedTools {
		out[name] = true
	}
	return out
}

// WriteDefault writes a config file populated with defaults, creating
// parent directories as needed. It refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	k := koanf.New(".")
	setDefaults(k)
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}

	data, err := yamlv3.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
