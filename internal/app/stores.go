package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"psadtagent/internal/artifact"
	"psadtagent/internal/config"
	"psadtagent/internal/knowledge"
	"psadtagent/internal/pkgstore"
)

func initPackages(ctx context.Context, cfg config.PackageStoreConfig, logger *zap.Logger) (pkgstore.Store, error) {
	if cfg.PostgresDSN == "" {
		logger.Info("package store: in-memory")
		return pkgstore.NewMemoryStore(), nil
	}
	s, err := pkgstore.OpenPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	logger.Info("package store: postgres")
	return s, nil
}

func initArtifacts(cfg config.ArtifactConfig, logger *zap.Logger) (artifact.Store, error) {
	var origin artifact.Store
	if cfg.S3Enabled() {
		s3, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize artifact s3 store: %w", err)
		}
		logger.Info("artifact store: s3", zap.String("bucket", cfg.Bucket), zap.String("endpoint", cfg.Endpoint))
		origin = s3
	} else {
		disk, err := artifact.NewDiskStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		logger.Info("artifact store: disk", zap.String("dir", cfg.Dir))
		origin = disk
	}
	return artifact.NewCachedStore(origin, artifact.DefaultCacheConfig()), nil
}

// InitEmbedder builds the configured embedder behind an LRU cache.
func InitEmbedder(ctx context.Context, cfg config.KnowledgeConfig) (knowledge.Embedder, error) {
	var e knowledge.Embedder
	switch cfg.Embedder {
	case "", "hash":
		e = knowledge.NewHashEmbedder(knowledge.DefaultHashDimensions)
	case "gemini":
		g, err := knowledge.NewGenAIEmbedder(ctx, cfg.EmbedAPIKey, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		e = g
	case "ollama":
		o, err := knowledge.NewOllamaEmbedder(cfg.OllamaHost, cfg.EmbedModel)
		if err != nil {
			return nil, err
		}
		e = o
	default:
		return nil, fmt.Errorf("app: unknown embedder %q (want hash, gemini or ollama)", cfg.Embedder)
	}
	if cfg.EmbedCacheSize <= 0 {
		return e, nil
	}
	cached, err := knowledge.NewCachedEmbedder(e, cfg.EmbedCacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// InitKnowledge opens the configured document store.
func InitKnowledge(ctx context.Context, cfg config.KnowledgeConfig, e knowledge.Embedder, logger *zap.Logger) (knowledge.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		logger.Info("knowledge store: in-memory", zap.String("embedder", e.Name()))
		return knowledge.NewMemoryStore(e), nil
	case "sqlite":
		logger.Info("knowledge store: sqlite", zap.String("path", cfg.SQLitePath), zap.String("embedder", e.Name()))
		s, err := knowledge.OpenSQLiteStore(ctx, cfg.SQLitePath, e)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "qdrant":
		logger.Info("knowledge store: qdrant", zap.String("addr", cfg.QdrantAddr), zap.String("collection", cfg.QdrantCollection))
		s, err := knowledge.OpenQdrantStore(ctx, knowledge.QdrantConfig{
			Addr:       cfg.QdrantAddr,
			Collection: cfg.QdrantCollection,
			APIKey:     cfg.QdrantAPIKey,
		}, e)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("app: unknown knowledge backend %q (want memory, sqlite or qdrant)", cfg.Backend)
	}
}
