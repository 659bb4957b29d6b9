package cli

import (
	"fmt"
	"time"

	"kbase/config"
	"kbase/internal/adapter/analyzer"
	"kbase/internal/adapter/category"
	"kbase/internal/adapter/corpus"
	"kbase/internal/adapter/embedding"
	"kbase/internal/adapter/index"
	"kbase/internal/adapter/rerank"
	"kbase/internal/usecase"
)

// runtime bundles the pipeline pieces a command needs.
type runtime struct {
	store  *corpus.Store
	cache  *embedding.Cache
	engine *usecase.Engine
}

func (r *runtime) close() {
	if r.cache != nil {
		_ = r.cache.Close()
	}
}

// buildRuntime loads the corpus and wires the engine from the loaded
// config.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	loader := corpus.NewLoader(cfg.Corpus.Includes)
	chunks, err := loader.LoadDir(cfg.Corpus.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	store := corpus.NewStore(chunks)
	logger.Info("corpus loaded", "chunks", store.Len())

	tokenizer := analyzer.NewTokenizer()
	bm25 := index.Build(store, tokenizer, cfg.Index.K1, cfg.Index.B)

	rules := category.DefaultRuleset()
	if cfg.Corpus.RulesPath != "" {
		rules, err = category.LoadRuleset(cfg.Corpus.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load category rules: %w", err)
		}
	}

	var cache *embedding.Cache
	if cfg.Embedding.Enabled {
		embedder, err := embedding.NewOpenAICompatibleEmbedder(
			cfg.Embedding.APIKeyEnv,
			cfg.Embedding.Model,
			cfg.Embedding.BaseURL,
			time.Duration(cfg.Embedding.TimeoutSeconds)*time.Second,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		cache, err = embedding.NewCache(embedder,
			embedding.WithMaxEntries(cfg.Embedding.CacheMaxEntries),
			embedding.WithPersistence(cfg.Embedding.CachePath),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding cache: %w", err)
		}
	}

	var reranker *rerank.Reranker
	if cfg.Rerank.Enabled {
		judge, err := rerank.NewLLMJudge(
			cfg.Rerank.APIKeyEnv,
			cfg.Rerank.Model,
			cfg.Rerank.BaseURL,
			time.Duration(cfg.Rerank.TimeoutSeconds)*time.Second,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create judge: %w", err)
		}
		reranker = rerank.NewReranker(judge, cfg.Rerank.Window, cfg.Rerank.SnippetMax)
	}

	gate := usecase.NewGate(tokenizer, logger, usecase.GateParams{
		ScoreThreshold:  cfg.Gate.ScoreThreshold,
		MinOverlap:      cfg.Gate.MinOverlap,
		LongQueryTokens: cfg.Gate.LongQueryTokens,
		ShortRatio:      cfg.Gate.ShortRatio,
		LongRatio:       cfg.Gate.LongRatio,
	})
	assembler := usecase.NewAssembler(rules, usecase.AssemblerParams{
		MaxBody:      cfg.Context.MaxBody,
		WindowBefore: cfg.Context.WindowBefore,
		WindowAfter:  cfg.Context.WindowAfter,
	})

	engine := usecase.NewEngine(usecase.Params{
		Store:             store,
		Index:             bm25,
		Tokenizer:         tokenizer,
		Cache:             cache,
		Rules:             rules,
		Reranker:          reranker,
		Gate:              gate,
		Assembler:         assembler,
		Logger:            logger,
		LexicalCandidates: cfg.Search.LexicalCandidates,
		LexicalWeight:     cfg.Search.LexicalWeight,
		RerankWindow:      cfg.Rerank.Window,
	})

	return &runtime{store: store, cache: cache, engine: engine}, nil
}
