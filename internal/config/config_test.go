package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"PORT", "LOG_LEVEL", "LOG_JSON", "API_KEY", "UPLOAD_DIR", "LINT_RULES_FILE", "JOBS_MAX_CONCURRENT",
	"LLM_PROVIDER", "LLM_MODEL", "OPENAI_API_KEY", "OPENAI_BASE_URL", "GROQ_API_KEY", "ANTHROPIC_API_KEY",
	"GEMINI_API_KEY", "GOOGLE_API_KEY", "LLM_RPS", "LLM_BURST", "LLM_RETRIES", "LLM_TIMEOUT",
	"KB_BACKEND", "KB_SQLITE_PATH", "QDRANT_HOST", "QDRANT_PORT", "QDRANT_API_KEY", "QDRANT_COLLECTION",
	"KB_DOCS_DIR", "KB_SWITCHES_FILE", "EMBEDDER", "EMBED_MODEL", "EMBED_CACHE_SIZE", "OLLAMA_HOST",
	"PACKAGE_STORE_PG_DSN", "ARTIFACT_DIR", "ARTIFACT_S3_ENDPOINT", "ARTIFACT_S3_ACCESS_KEY",
	"ARTIFACT_S3_SECRET_KEY", "ARTIFACT_S3_BUCKET", "ARTIFACT_S3_REGION", "ARTIFACT_S3_USE_SSL",
	"MINIO_ROOT_USER", "MINIO_ROOT_PASSWORD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogJSON)
	assert.Empty(t, cfg.APIKey)
	assert.Equal(t, 2, cfg.JobsMaxConcurrent)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.Retries)
	assert.Equal(t, 120*time.Second, cfg.LLM.Timeout)

	assert.Equal(t, "memory", cfg.Knowledge.Backend)
	assert.Equal(t, "localhost:6334", cfg.Knowledge.QdrantAddr)
	assert.Equal(t, "psadt_docs", cfg.Knowledge.QdrantCollection)
	assert.Equal(t, "docs/raw", cfg.Knowledge.DocsDir)
	assert.Equal(t, "hash", cfg.Knowledge.Embedder)
	assert.Equal(t, 1024, cfg.Knowledge.EmbedCacheSize)

	assert.False(t, cfg.Artifact.S3Enabled())
	assert.Equal(t, "psadt-scripts", cfg.Artifact.Bucket)
	assert.True(t, cfg.Artifact.UseSSL)
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_PROVIDER", "Anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("LLM_TIMEOUT", "45")
	t.Setenv("LLM_RPS", "0.5")
	t.Setenv("KB_BACKEND", "QDRANT")
	t.Setenv("QDRANT_HOST", "qdrant")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_ROOT_USER", "minio")
	t.Setenv("ARTIFACT_S3_USE_SSL", "false")
	t.Setenv("LOG_JSON", "true")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-ant", cfg.LLM.APIKey)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.5, cfg.LLM.RPS, 1e-9)
	assert.Equal(t, "qdrant", cfg.Knowledge.Backend)
	assert.Equal(t, "qdrant:7000", cfg.Knowledge.QdrantAddr)
	assert.True(t, cfg.Artifact.S3Enabled())
	assert.Equal(t, "minio", cfg.Artifact.AccessKey)
	assert.False(t, cfg.Artifact.UseSSL)
	assert.True(t, cfg.LogJSON)
}

func TestProviderKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g")
	t.Setenv("GROQ_API_KEY", "q")
	assert.Equal(t, "g", providerKey("gemini"))
	assert.Equal(t, "q", providerKey("groq"))
	assert.Empty(t, providerKey("fake"))
	assert.Empty(t, providerKey("openai"))
}

func TestUseProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "o")
	t.Setenv("ANTHROPIC_API_KEY", "a")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "o", cfg.LLM.APIKey)

	cfg.UseProvider(" Anthropic ")
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "a", cfg.LLM.APIKey)

	cfg.UseProvider("")
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("JOBS_MAX_CONCURRENT", "two")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOBS_MAX_CONCURRENT")

	clearEnv(t)
	t.Setenv("LLM_TIMEOUT", "soon")
	_, err = FromEnv()
	assert.Error(t, err)
}

func TestNormalizePort(t *testing.T) {
	assert.Equal(t, ":8000", normalizePort("8000"))
	assert.Equal(t, ":8000", normalizePort(":8000"))
	assert.Equal(t, "127.0.0.1:8000", normalizePort("127.0.0.1:8000"))
}
