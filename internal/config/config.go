// Package config reads runtime settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	LogLevel string
	LogJSON  bool
	// APIKey guards the HTTP API. Empty leaves it open.
	APIKey            string
	UploadDir         string
	LintRulesFile     string
	JobsMaxConcurrent int

	LLM       LLMConfig
	Knowledge KnowledgeConfig
	Packages  PackageStoreConfig
	Artifact  ArtifactConfig
}

type LLMConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	RPS      float64
	Burst    int
	Retries  int
	Timeout  time.Duration
}

type KnowledgeConfig struct {
	Backend          string
	SQLitePath       string
	QdrantAddr       string
	QdrantAPIKey     string
	QdrantCollection string
	DocsDir          string
	SwitchesFile     string
	Embedder         string
	EmbedModel       string
	EmbedAPIKey      string
	OllamaHost       string
	EmbedCacheSize   int
}

type PackageStoreConfig struct {
	PostgresDSN string
}

type ArtifactConfig struct {
	Dir       string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// S3Enabled reports whether artifacts go to an S3-compatible store.
func (a ArtifactConfig) S3Enabled() bool { return a.Endpoint != "" }

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	var p parser
	cfg := &Config{
		Port:              normalizePort(firstNonEmpty(env("PORT"), "8000")),
		LogLevel:          firstNonEmpty(env("LOG_LEVEL"), "info"),
		LogJSON:           p.boolean("LOG_JSON", false),
		APIKey:            env("API_KEY"),
		UploadDir:         firstNonEmpty(env("UPLOAD_DIR"), "uploads"),
		LintRulesFile:     env("LINT_RULES_FILE"),
		JobsMaxConcurrent: p.integer("JOBS_MAX_CONCURRENT", 2),
		LLM:               loadLLMConfig(&p),
		Knowledge:         loadKnowledgeConfig(&p),
		Packages:          PackageStoreConfig{PostgresDSN: env("PACKAGE_STORE_PG_DSN")},
		Artifact:          loadArtifactConfig(&p),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

func loadLLMConfig(p *parser) LLMConfig {
	provider := strings.ToLower(firstNonEmpty(env("LLM_PROVIDER"), "openai"))
	return LLMConfig{
		Provider: provider,
		Model:    env("LLM_MODEL"),
		APIKey:   providerKey(provider),
		BaseURL:  env("OPENAI_BASE_URL"),
		RPS:      p.float("LLM_RPS", 0),
		Burst:    p.integer("LLM_BURST", 1),
		Retries:  p.integer("LLM_RETRIES", 3),
		Timeout:  p.duration("LLM_TIMEOUT", 120*time.Second),
	}
}

// UseProvider switches the LLM provider and re-resolves its API key from
// the environment.
func (c *Config) UseProvider(provider string) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || provider == c.LLM.Provider {
		return
	}
	c.LLM.Provider = provider
	c.LLM.APIKey = providerKey(provider)
}

func providerKey(provider string) string {
	switch provider {
	case "groq":
		return env("GROQ_API_KEY")
	case "anthropic":
		return env("ANTHROPIC_API_KEY")
	case "gemini":
		return firstNonEmpty(env("GEMINI_API_KEY"), env("GOOGLE_API_KEY"))
	case "fake":
		return ""
	default:
		return env("OPENAI_API_KEY")
	}
}

func loadKnowledgeConfig(p *parser) KnowledgeConfig {
	host := firstNonEmpty(env("QDRANT_HOST"), "localhost")
	port := firstNonEmpty(env("QDRANT_PORT"), "6334")
	return KnowledgeConfig{
		Backend:          strings.ToLower(firstNonEmpty(env("KB_BACKEND"), "memory")),
		SQLitePath:       firstNonEmpty(env("KB_SQLITE_PATH"), "data/knowledge.db"),
		QdrantAddr:       net.JoinHostPort(host, port),
		QdrantAPIKey:     env("QDRANT_API_KEY"),
		QdrantCollection: firstNonEmpty(env("QDRANT_COLLECTION"), "psadt_docs"),
		DocsDir:          firstNonEmpty(env("KB_DOCS_DIR"), "docs/raw"),
		SwitchesFile:     env("KB_SWITCHES_FILE"),
		Embedder:         strings.ToLower(firstNonEmpty(env("EMBEDDER"), "hash")),
		EmbedModel:       env("EMBED_MODEL"),
		EmbedAPIKey:      firstNonEmpty(env("GEMINI_API_KEY"), env("GOOGLE_API_KEY")),
		OllamaHost:       env("OLLAMA_HOST"),
		EmbedCacheSize:   p.integer("EMBED_CACHE_SIZE", 1024),
	}
}

func loadArtifactConfig(p *parser) ArtifactConfig {
	return ArtifactConfig{
		Dir:       firstNonEmpty(env("ARTIFACT_DIR"), "data/artifacts"),
		Endpoint:  env("ARTIFACT_S3_ENDPOINT"),
		AccessKey: firstNonEmpty(env("ARTIFACT_S3_ACCESS_KEY"), env("MINIO_ROOT_USER")),
		SecretKey: firstNonEmpty(env("ARTIFACT_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD")),
		Bucket:    firstNonEmpty(env("ARTIFACT_S3_BUCKET"), "psadt-scripts"),
		Region:    firstNonEmpty(env("ARTIFACT_S3_REGION"), "us-east-1"),
		UseSSL:    p.boolean("ARTIFACT_S3_USE_SSL", true),
	}
}

func normalizePort(port string) string {
	if strings.HasPrefix(port, ":") {
		return port
	}
	if _, _, err := net.SplitHostPort(port); err == nil {
		return port
	}
	return ":" + port
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parser keeps the first conversion error so Load reports it once.
type parser struct{ err error }

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s=%q: %w", key, raw, err)
	}
}

func (p *parser) integer(key string, def int) int {
	raw := env(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) float(key string, def float64) float64 {
	raw := env(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *parser) boolean(key string, def bool) bool {
	raw := env(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

// duration accepts Go durations ("90s") or a plain number of seconds.
func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := env(key)
	if raw == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}
