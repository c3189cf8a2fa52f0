package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
	assert.Equal(t, DefaultRootPath, cfg.Indexer.RootPath)
	assert.Equal(t, DefaultChunkSize, cfg.Indexer.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Indexer.ChunkOverlap)
	assert.Equal(t, DefaultEmbeddingProvider, cfg.Embedding.Provider)
	assert.Equal(t, DefaultEmbeddingModel, cfg.Embedding.Model)
	assert.Equal(t, DefaultEmbeddingDimensions, cfg.Embedding.Dimensions)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, DefaultAuthEnabled, cfg.Auth.Enabled)
	assert.Equal(t, DefaultAuthTokenExpiry, cfg.Auth.TokenExpiry)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, DefaultRedisDB, cfg.Redis.DB)
	assert.Equal(t, DefaultCloneRootPath, cfg.Clone.RootPath)
	assert.Equal(t, DefaultLLMProvider, cfg.LLM.Provider)
	assert.Equal(t, DefaultLLMModel, cfg.LLM.Model)
	assert.Equal(t, DefaultQueueListKey, cfg.Queue.ListKey)
	assert.Equal(t, DefaultQueueProcessingKey, cfg.Queue.ProcessingKey)
	assert.Equal(t, DefaultQueueBlockTimeout, cfg.Queue.BlockTimeout)
}

func clearConexusEnv(t *testing.T) {
	t.Helper()
	for _, e := range os.Environ() {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				if len(e) > 8 && e[:8] == "CONEXUS_" {
					os.Unsetenv(e[:i])
				}
				break
			}
		}
	}
}

func TestLoadEnv_Server(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_HOST", "127.0.0.1")
	t.Setenv("CONEXUS_PORT", "9090")

	cfg := loadEnv(defaults())
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadEnv_InvalidPortIsIgnored(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_PORT", "not-a-number")

	cfg := loadEnv(defaults())
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestLoadEnv_Indexer(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_ROOT_PATH", "/custom/root")
	t.Setenv("CONEXUS_CHUNK_SIZE", "1024")
	t.Setenv("CONEXUS_CHUNK_OVERLAP", "100")

	cfg := loadEnv(defaults())
	assert.Equal(t, "/custom/root", cfg.Indexer.RootPath)
	assert.Equal(t, 1024, cfg.Indexer.ChunkSize)
	assert.Equal(t, 100, cfg.Indexer.ChunkOverlap)
}

func TestLoadEnv_Redis(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("CONEXUS_REDIS_PASSWORD", "secret")
	t.Setenv("CONEXUS_REDIS_DB", "3")

	cfg := loadEnv(defaults())
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoadEnv_Clone(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_CLONE_ROOT_PATH", "/var/repoforge/clones")

	cfg := loadEnv(defaults())
	assert.Equal(t, "/var/repoforge/clones", cfg.Clone.RootPath)
}

func TestLoadEnv_LLM(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_LLM_PROVIDER", "anthropic")
	t.Setenv("CONEXUS_LLM_MODEL", "claude-opus-4")
	t.Setenv("CONEXUS_LLM_API_KEY", "sk-test-key")

	cfg := loadEnv(defaults())
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-opus-4", cfg.LLM.Model)
	assert.Equal(t, "sk-test-key", cfg.LLM.APIKey)
}

func TestLoadEnv_Queue(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_QUEUE_LIST_KEY", "custom:jobs")
	t.Setenv("CONEXUS_QUEUE_PROCESSING_KEY", "custom:jobs:processing")
	t.Setenv("CONEXUS_QUEUE_BLOCK_TIMEOUT", "10s")

	cfg := loadEnv(defaults())
	assert.Equal(t, "custom:jobs", cfg.Queue.ListKey)
	assert.Equal(t, "custom:jobs:processing", cfg.Queue.ProcessingKey)
	assert.Equal(t, 10*time.Second, cfg.Queue.BlockTimeout)
}

func TestLoadEnv_QueueInvalidDurationIsIgnored(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_QUEUE_BLOCK_TIMEOUT", "not-a-duration")

	cfg := loadEnv(defaults())
	assert.Equal(t, DefaultQueueBlockTimeout, cfg.Queue.BlockTimeout)
}

func TestLoadEnv_CORSCommaSeparatedLists(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := loadEnv(defaults())
	require.Len(t, cfg.CORS.AllowedOrigins, 2)
	assert.Equal(t, "https://a.example", cfg.CORS.AllowedOrigins[0])
	assert.Equal(t, "https://b.example", cfg.CORS.AllowedOrigins[1])
}

func TestLoadEnv_AuthBooleanAndDuration(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_AUTH_ENABLED", "true")
	t.Setenv("CONEXUS_AUTH_ISSUER", "repoforge")
	t.Setenv("CONEXUS_AUTH_TOKEN_EXPIRY", "120")

	cfg := loadEnv(defaults())
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "repoforge", cfg.Auth.Issuer)
	assert.Equal(t, 120, cfg.Auth.TokenExpiry)
}

func TestLoadFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  host: 0.0.0.0\n  port: 8080\ndatabase:\n  path: /data/db.sqlite\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/data/db.sqlite", cfg.Database.Path)
}

func TestLoadFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"server": {"host": "0.0.0.0", "port": 8081}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := loadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8081, cfg.Server.Port)
}

func TestLoadFile_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("server = {}"), 0o644))

	_, err := loadFile(path)
	assert.Error(t, err)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := loadFile("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestMerge_OverridesNonZeroFields(t *testing.T) {
	base := defaults()
	override := &Config{
		Server: ServerConfig{Host: "override-host"},
		Redis:  RedisConfig{Addr: "override-redis:6379"},
		Clone:  CloneConfig{RootPath: "/override/clones"},
		LLM:    LLMConfig{Model: "override-model"},
		Queue:  QueueConfig{ListKey: "override:jobs"},
	}

	merged := merge(base, override)
	assert.Equal(t, "override-host", merged.Server.Host)
	assert.Equal(t, "override-redis:6379", merged.Redis.Addr)
	assert.Equal(t, "/override/clones", merged.Clone.RootPath)
	assert.Equal(t, "override-model", merged.LLM.Model)
	assert.Equal(t, "override:jobs", merged.Queue.ListKey)
	// Fields left zero in override keep the base's values.
	assert.Equal(t, base.Server.Port, merged.Server.Port)
	assert.Equal(t, base.LLM.Provider, merged.LLM.Provider)
	assert.Equal(t, base.Queue.ProcessingKey, merged.Queue.ProcessingKey)
}

func TestMerge_DoesNotMutateBase(t *testing.T) {
	base := defaults()
	originalHost := base.Server.Host
	_ = merge(base, &Config{Server: ServerConfig{Host: "changed"}})
	assert.Equal(t, originalHost, base.Server.Host)
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	cfg := defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := defaults()
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestValidate_EmptyDatabasePath(t *testing.T) {
	cfg := defaults()
	cfg.Database.Path = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_ChunkOverlapMustBeLessThanChunkSize(t *testing.T) {
	cfg := defaults()
	cfg.Indexer.ChunkSize = 100
	cfg.Indexer.ChunkOverlap = 100
	assert.Error(t, cfg.Validate())
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := defaults()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_AuthRequiresKeysWhenEnabled(t *testing.T) {
	cfg := defaults()
	cfg.Auth.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Auth.PublicKey = "pub"
	cfg.Auth.PrivateKey = "priv"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_TLSRequiresCertsWhenEnabledWithoutAutoCert(t *testing.T) {
	cfg := defaults()
	cfg.TLS.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.TLS.CertFile = "/cert.pem"
	cfg.TLS.KeyFile = "/key.pem"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_TLSAutoCertRequiresDomainsAndEmail(t *testing.T) {
	cfg := defaults()
	cfg.TLS.Enabled = true
	cfg.TLS.AutoCert = true
	assert.Error(t, cfg.Validate())

	cfg.TLS.AutoCertDomains = []string{"example.com"}
	cfg.TLS.AutoCertEmail = "ops@example.com"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_MetricsRequiresPortAndPathWhenEnabled(t *testing.T) {
	cfg := defaults()
	cfg.Observability.Metrics.Enabled = true
	cfg.Observability.Metrics.Port = 0
	assert.Error(t, cfg.Validate())
}

func TestValidate_TracingRequiresEndpointWhenEnabled(t *testing.T) {
	cfg := defaults()
	cfg.Observability.Tracing.Enabled = true
	cfg.Observability.Tracing.Endpoint = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_SentryRequiresDSNWhenEnabled(t *testing.T) {
	cfg := defaults()
	cfg.Observability.Sentry.Enabled = true
	cfg.Observability.Sentry.DSN = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RedisAddrRequired(t *testing.T) {
	cfg := defaults()
	cfg.Redis.Addr = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_RedisDBCannotBeNegative(t *testing.T) {
	cfg := defaults()
	cfg.Redis.DB = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_CloneRootPathRequired(t *testing.T) {
	cfg := defaults()
	cfg.Clone.RootPath = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_LLMProviderAndModelRequired(t *testing.T) {
	cfg := defaults()
	cfg.LLM.Provider = ""
	assert.Error(t, cfg.Validate())

	cfg = defaults()
	cfg.LLM.Model = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_QueueKeysAndTimeoutRequired(t *testing.T) {
	cfg := defaults()
	cfg.Queue.ListKey = ""
	assert.Error(t, cfg.Validate())

	cfg = defaults()
	cfg.Queue.ProcessingKey = ""
	assert.Error(t, cfg.Validate())

	cfg = defaults()
	cfg.Queue.BlockTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	clearConexusEnv(t)
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
}

func TestLoad_FromConfigFileAndEnvPrecedence(t *testing.T) {
	clearConexusEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  host: file-host\n  port: 7000\nredis:\n  addr: file-redis:6379\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CONEXUS_CONFIG_FILE", path)
	t.Setenv("CONEXUS_HOST", "env-host")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	// Env vars take precedence over the file.
	assert.Equal(t, "env-host", cfg.Server.Host)
	// File values apply where env didn't override.
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "file-redis:6379", cfg.Redis.Addr)
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	clearConexusEnv(t)
	t.Setenv("CONEXUS_CHUNK_SIZE", "10")
	t.Setenv("CONEXUS_CHUNK_OVERLAP", "10")

	_, err := Load(context.Background())
	assert.Error(t, err)
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "a"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
	assert.False(t, contains(nil, "a"))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultLLMProvider, cfg.LLM.Provider)
	assert.Equal(t, DefaultQueueListKey, cfg.Queue.ListKey)
}
