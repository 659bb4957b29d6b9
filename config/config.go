package config

import (
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the retrieval engine.
type Config struct {
	Corpus    CorpusConfig    `yaml:"corpus"`
	Index     IndexConfig     `yaml:"index"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Gate      GateConfig      `yaml:"gate"`
	Context   ContextConfig   `yaml:"context"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CorpusConfig holds corpus loading configuration.
type CorpusConfig struct {
	Dir       string   `yaml:"dir" env:"KBASE_CORPUS_DIR"`
	Includes  []string `yaml:"includes"`
	RulesPath string   `yaml:"rules_path" env:"KBASE_RULES_PATH"`
}

// IndexConfig holds BM25 constants.
type IndexConfig struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// SearchConfig holds hybrid scoring configuration.
type SearchConfig struct {
	TopK              int     `yaml:"top_k"`
	LexicalCandidates int     `yaml:"lexical_candidates"` // BM25 pool bounding vector lookups
	LexicalWeight     float64 `yaml:"lexical_weight"`     // vector weight is the complement
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Model           string `yaml:"model" env:"KBASE_EMBEDDING_MODEL"`
	APIKeyEnv       string `yaml:"api_key_env"`
	BaseURL         string `yaml:"base_url" env:"KBASE_EMBEDDING_BASE_URL"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheMaxEntries int    `yaml:"cache_max_entries"` // 0 = unbounded
	CachePath       string `yaml:"cache_path"`        // "" = memory only
}

// RerankConfig holds relevance-judge configuration.
type RerankConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Model          string `yaml:"model" env:"KBASE_RERANK_MODEL"`
	APIKeyEnv      string `yaml:"api_key_env"`
	BaseURL        string `yaml:"base_url" env:"KBASE_RERANK_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Window         int    `yaml:"window"`
	SnippetMax     int    `yaml:"snippet_max"`
}

// GateConfig holds confidence-gate thresholds.
type GateConfig struct {
	ScoreThreshold  float64 `yaml:"score_threshold"`
	MinOverlap      int     `yaml:"min_overlap"`
	LongQueryTokens int     `yaml:"long_query_tokens"`
	ShortRatio      float64 `yaml:"short_ratio"`
	LongRatio       float64 `yaml:"long_ratio"`
}

// ContextConfig holds context-assembly trimming bounds.
type ContextConfig struct {
	MaxBody      int `yaml:"max_body"`
	WindowBefore int `yaml:"window_before"`
	WindowAfter  int `yaml:"window_after"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"KBASE_LOG_LEVEL"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Dir:      ".",
			Includes: []string{"**/*.jsonl"},
		},
		Index: IndexConfig{
			K1: 1.6,
			B:  0.75,
		},
		Search: SearchConfig{
			TopK:              5,
			LexicalCandidates: 20,
			LexicalWeight:     0.65,
		},
		Embedding: EmbeddingConfig{
			Enabled:        false,
			Model:          "text-embedding-3-small",
			APIKeyEnv:      "OPENAI_API_KEY",
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 30,
		},
		Rerank: RerankConfig{
			Enabled:        false,
			Model:          "gpt-4.1-mini",
			APIKeyEnv:      "OPENAI_API_KEY",
			BaseURL:        "https://api.openai.com/v1",
			TimeoutSeconds: 15,
			Window:         6,
			SnippetMax:     350,
		},
		Gate: GateConfig{
			ScoreThreshold:  0.75,
			MinOverlap:      2,
			LongQueryTokens: 6,
			ShortRatio:      0.5,
			LongRatio:       0.25,
		},
		Context: ContextConfig{
			MaxBody:      700,
			WindowBefore: 200,
			WindowAfter:  500,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return applyEnv(cfg)
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return applyEnv(cfg)
}

// LoadFromDir loads configuration from a directory (looks for kbase.yaml,
// then .kbase/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "kbase.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".kbase", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return applyEnv(DefaultConfig())
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnv layers .env and environment-variable overrides on top of the
// loaded values.
func applyEnv(cfg *Config) (*Config, error) {
	_ = godotenv.Load()

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
