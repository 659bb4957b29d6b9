package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Index.K1 != 1.6 || cfg.Index.B != 0.75 {
		t.Errorf("unexpected BM25 defaults: k1=%v b=%v", cfg.Index.K1, cfg.Index.B)
	}
	if cfg.Search.TopK != 5 {
		t.Errorf("expected top_k 5, got %d", cfg.Search.TopK)
	}
	if cfg.Search.LexicalWeight != 0.65 {
		t.Errorf("expected lexical_weight 0.65, got %v", cfg.Search.LexicalWeight)
	}
	if cfg.Embedding.Enabled || cfg.Rerank.Enabled {
		t.Error("embedding and rerank must be opt-in")
	}
	if cfg.Gate.ScoreThreshold != 0.75 {
		t.Errorf("expected score_threshold 0.75, got %v", cfg.Gate.ScoreThreshold)
	}
	if cfg.Context.MaxBody != 700 {
		t.Errorf("expected max_body 700, got %d", cfg.Context.MaxBody)
	}
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.TopK != DefaultConfig().Search.TopK {
		t.Errorf("expected defaults, got top_k %d", cfg.Search.TopK)
	}
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbase.yaml")
	data := []byte("search:\n  top_k: 8\nrerank:\n  enabled: true\n  window: 4\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.TopK != 8 {
		t.Errorf("expected top_k 8, got %d", cfg.Search.TopK)
	}
	if !cfg.Rerank.Enabled || cfg.Rerank.Window != 4 {
		t.Errorf("rerank overrides not applied: %+v", cfg.Rerank)
	}
	if cfg.Index.K1 != 1.6 {
		t.Errorf("untouched defaults must survive, got k1=%v", cfg.Index.K1)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbase.yaml")
	data := []byte("logging:\n  level: debug\n")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("KBASE_LOG_LEVEL", "warn")
	t.Setenv("KBASE_EMBEDDING_MODEL", "text-embedding-3-large")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env override 'warn', got %q", cfg.Logging.Level)
	}
	if cfg.Embedding.Model != "text-embedding-3-large" {
		t.Errorf("expected env override for embedding model, got %q", cfg.Embedding.Model)
	}
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	data := []byte("search:\n  top_k: 7\n")
	if err := os.WriteFile(filepath.Join(dir, "kbase.yaml"), data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.TopK != 7 {
		t.Errorf("expected top_k 7, got %d", cfg.Search.TopK)
	}

	cfg, err = LoadFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Search.TopK != 5 {
		t.Errorf("expected defaults for empty dir, got top_k %d", cfg.Search.TopK)
	}
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.Search.TopK = 9

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Search.TopK != 9 {
		t.Errorf("expected top_k 9 after round trip, got %d", loaded.Search.TopK)
	}
}
