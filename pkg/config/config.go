package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig                 `yaml:"app"`
	Providers    map[string]ProviderConfig `yaml:"providers"`
	Orchestrator OrchestratorConfig        `yaml:"orchestrator"`
	SCADA        SCADAConfig               `yaml:"scada"`
	Manual       ManualConfig              `yaml:"manual"`
	Gate         GateConfig                `yaml:"gate"`
	Gateways     map[string]GatewayConfig  `yaml:"gateways"`
	Memory       MemoryConfig              `yaml:"memory"`
	Policy       PolicyConfig              `yaml:"policy"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Prompts string `yaml:"prompts"`
	LogDir  string `yaml:"log_dir"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	// EmbeddingModel is used for vector manual search.
	EmbeddingModel string `yaml:"embedding_model,omitempty"`
	Enabled        bool   `yaml:"enabled"`
}

type OrchestratorConfig struct {
	MaxIterations  int           `yaml:"max_iterations"`
	MaxCorrections int           `yaml:"max_corrections"`
	MaxPlanSteps   int           `yaml:"max_plan_steps"`
	ToolTimeout    time.Duration `yaml:"tool_timeout"`
	LLMTimeout     time.Duration `yaml:"llm_timeout"`
	// Corrector is "rules" (deterministic fallback) or "llm".
	Corrector string `yaml:"corrector"`
}

type SCADAConfig struct {
	DBPath string `yaml:"db_path"`
	// Explain turns query results into prose with the LLM.
	Explain bool `yaml:"explain"`
}

type ManualConfig struct {
	// Backend is "keyword" (local bleve index) or "vector" (chroma).
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	IndexPath  string `yaml:"index_path"`
	ChromaURL  string `yaml:"chroma_url"`
	Collection string `yaml:"collection"`
	TopK       int    `yaml:"top_k"`
}

type GateConfig struct {
	// Mode is "console", "auto", "telegram" or "discord".
	Mode    string        `yaml:"mode"`
	Timeout time.Duration `yaml:"timeout"`
}

type GatewayConfig struct {
	Token     string `yaml:"token"`
	ChatID    int64  `yaml:"chat_id,omitempty"`
	ChannelID string `yaml:"channel_id,omitempty"`
	Enabled   bool   `yaml:"enabled"`
}

type MemoryConfig struct {
	Path string `yaml:"path"`
}

type PolicyConfig struct {
	// DisabledKinds switches off whole step kinds (SCADA, MANUAL).
	DisabledKinds []string     `yaml:"disabled_kinds"`
	Rules         []PolicyRule `yaml:"rules"`
}

// PolicyRule rejects steps of Kind (all kinds when empty) whose description
// matches Pattern, case-insensitively.
type PolicyRule struct {
	Kind    string `yaml:"kind"`
	Pattern string `yaml:"pattern"`
	Reason  string `yaml:"reason"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name:    "plantdoc",
			Prompts: "./prompts",
			LogDir:  "./logs",
		},
		Providers: map[string]ProviderConfig{},
		Orchestrator: OrchestratorConfig{
			MaxIterations:  5,
			MaxCorrections: 1,
			MaxPlanSteps:   8,
			ToolTimeout:    30 * time.Second,
			LLMTimeout:     60 * time.Second,
			Corrector:      "rules",
		},
		SCADA: SCADAConfig{
			DBPath:  "./data/scada.db",
			Explain: true,
		},
		Manual: ManualConfig{
			Backend:    "keyword",
			Dir:        "./manuals",
			IndexPath:  "./data/manuals.bleve",
			ChromaURL:  "http://localhost:8000",
			Collection: "technical_manuals",
			TopK:       3,
		},
		Gate: GateConfig{
			Mode:    "console",
			Timeout: 10 * time.Minute,
		},
		Gateways: map[string]GatewayConfig{},
		Memory:   MemoryConfig{Path: "./data/plantdoc.db"},
		Policy: PolicyConfig{
			// Diagnostics are read-only. Manual lookups may still mention these.
			Rules: []PolicyRule{
				{
					Kind:    "SCADA",
					Pattern: `\b(change|adjust|write|modify|raise|lower)\b.*\bset\s*points?\b`,
					Reason:  "setpoint changes are control actions, not diagnostics",
				},
				{
					Kind:    "SCADA",
					Pattern: `^\s*(shut\s*down|start\s*up|restart|stop|trip)\b`,
					Reason:  "start and stop commands are control actions, not diagnostics",
				},
			},
		},
	}
}

// Load reads path (YAML) over the defaults, then applies .env and
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var providerEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"groq":       "GROQ_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

var providerDefaults = map[string]ProviderConfig{
	"openai":     {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small"},
	"groq":       {Model: "llama-3.3-70b-versatile", BaseURL: "https://api.groq.com/openai/v1"},
	"openrouter": {Model: "openai/gpt-4o-mini", BaseURL: "https://openrouter.ai/api/v1"},
}

func applyEnv(cfg *Config) error {
	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if cfg.Gateways == nil {
		cfg.Gateways = map[string]GatewayConfig{}
	}
	for name, env := range providerEnv {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		p, ok := cfg.Providers[name]
		if !ok {
			p = providerDefaults[name]
			p.Enabled = true
		}
		p.APIKey = key
		cfg.Providers[name] = p
	}

	if tok := os.Getenv("TELEGRAM_BOT_TOKEN"); tok != "" {
		g := cfg.Gateways["telegram"]
		g.Token, g.Enabled = tok, true
		if id := os.Getenv("TELEGRAM_CHAT_ID"); id != "" {
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", id, err)
			}
			g.ChatID = n
		}
		cfg.Gateways["telegram"] = g
	}
	if tok := os.Getenv("DISCORD_BOT_TOKEN"); tok != "" {
		g := cfg.Gateways["discord"]
		g.Token, g.Enabled = tok, true
		if ch := os.Getenv("DISCORD_CHANNEL_ID"); ch != "" {
			g.ChannelID = ch
		}
		cfg.Gateways["discord"] = g
	}

	if db := os.Getenv("PLANTDOC_SCADA_DB"); db != "" {
		cfg.SCADA.DBPath = db
	}
	if mode := os.Getenv("PLANTDOC_GATE"); mode != "" {
		cfg.Gate.Mode = mode
	}
	return nil
}

// Validate rejects settings the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxIterations < 1 {
		return fmt.Errorf("orchestrator.max_iterations must be at least 1, got %d", c.Orchestrator.MaxIterations)
	}
	if c.Orchestrator.MaxCorrections < 0 {
		return fmt.Errorf("orchestrator.max_corrections must not be negative")
	}
	switch c.Orchestrator.Corrector {
	case "rules", "llm":
	default:
		return fmt.Errorf("unknown orchestrator.corrector %q (want rules or llm)", c.Orchestrator.Corrector)
	}
	switch c.Manual.Backend {
	case "keyword", "vector":
	default:
		return fmt.Errorf("unknown manual.backend %q (want keyword or vector)", c.Manual.Backend)
	}
	switch c.Gate.Mode {
	case "console", "auto", "telegram", "discord":
	default:
		return fmt.Errorf("unknown gate.mode %q", c.Gate.Mode)
	}
	if c.SCADA.DBPath == "" {
		return fmt.Errorf("scada.db_path is required")
	}
	return nil
}

// GetDefaultProvider returns the first enabled provider, in name order.
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if p := c.Providers[name]; p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetGatewayConfig returns a gateway's config if it is enabled.
func (c *Config) GetGatewayConfig(name string) (GatewayConfig, bool) {
	g, ok := c.Gateways[name]
	if ok && g.Enabled && g.Token != "" {
		return g, true
	}
	return GatewayConfig{}, false
}
