// Package config provides configuration loading for the reference-find application.
// It handles loading application settings from environment variables, the
// reference configuration from HashiCorp Vault or a local file, and the
// ClickHouse connection settings.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	ch "github.com/MyCarrier-DevOps/goLibMyCarrier/clickhouse"
	"github.com/MyCarrier-DevOps/goLibMyCarrier/vault"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/MyCarrier-DevOps/reference-find/internal/domain"
)

// Environment variable names.
const (
	// EnvReferenceConfig is the path to a local JSON or YAML reference configuration file.
	EnvReferenceConfig = "REFERENCE_FIND_CONFIG"

	// EnvDatabase is the ClickHouse database holding the build graph and stored references.
	EnvDatabase = "REFERENCE_FIND_DATABASE"

	// EnvStore selects the reference store backend (clickhouse, redis, none).
	EnvStore = "REFERENCE_FIND_STORE"

	// EnvGraph is the path to a build graph snapshot used instead of ClickHouse.
	EnvGraph = "REFERENCE_FIND_GRAPH"

	// EnvRedisURL is the Redis connection URL for the redis store.
	EnvRedisURL = "REDIS_URL"

	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"

	// EnvVaultReferenceConfigPath is the path in Vault KV where the reference
	// configuration is stored. An optional "#key" suffix selects the secret key.
	EnvVaultReferenceConfigPath = "VAULT_REFERENCE_CONFIG_PATH"

	// EnvVaultReferenceConfigMount is the Vault KV mount point (defaults to "secret").
	EnvVaultReferenceConfigMount = "VAULT_REFERENCE_CONFIG_MOUNT"
)

// Default values.
const (
	DefaultVaultReferenceMount = "secret"
	DefaultSecretKey           = "config"
)

// Store backends.
const (
	StoreNone       = "none"
	StoreClickHouse = "clickhouse"
	StoreRedis      = "redis"
)

// Configuration errors.
var (
	// ErrReferenceConfigNotFound indicates the reference config file does not exist.
	ErrReferenceConfigNotFound = errors.New("reference configuration file not found")

	// ErrReferenceConfigInvalid indicates the reference config cannot be decoded.
	ErrReferenceConfigInvalid = errors.New("reference configuration is invalid")

	// ErrVaultClientFailed indicates failure to create or authenticate with Vault.
	ErrVaultClientFailed = errors.New("failed to create Vault client")

	// ErrVaultSecretNotFound indicates the secret was not found in Vault.
	ErrVaultSecretNotFound = errors.New("reference configuration not found in Vault")

	// ErrUnknownStore indicates an unsupported reference store backend.
	ErrUnknownStore = errors.New("unknown reference store")

	// ErrClickHouseConfig indicates the ClickHouse settings could not be loaded.
	ErrClickHouseConfig = errors.New("failed to load ClickHouse config")
)

// VaultClient defines the interface for Vault operations.
// This interface allows for dependency injection and testing.
type VaultClient interface {
	// GetKVSecret retrieves a secret from Vault's KV v2 secrets engine.
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// VaultClientFactory creates a VaultClient using AppRole authentication.
// This is the default factory used in production.
type VaultClientFactory func(ctx context.Context) (VaultClient, error)

// DefaultVaultClientFactory creates a VaultClient using goLibMyCarrier/vault with AppRole auth.
func DefaultVaultClientFactory(ctx context.Context) (VaultClient, error) {
	// Uses: VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID
	vaultConfig, err := vault.VaultLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	client, err := vault.CreateVaultClient(ctx, vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	return client, nil
}

// environment is the process environment read by go-envconfig.
type environment struct {
	ConfigFile   string        `env:"REFERENCE_FIND_CONFIG"`
	Database     string        `env:"REFERENCE_FIND_DATABASE, default=ci"`
	Store        string        `env:"REFERENCE_FIND_STORE, default=none"`
	GraphFile    string        `env:"REFERENCE_FIND_GRAPH"`
	RepoPath     string        `env:"REFERENCE_FIND_REPO, default=."`
	Depth        int           `env:"REFERENCE_FIND_DEPTH, default=500"`
	ListenAddr   string        `env:"REFERENCE_FIND_ADDR, default=:8080"`
	ReferenceTTL time.Duration `env:"REFERENCE_FIND_REFERENCE_TTL, default=720h"`
	GraphTTL     time.Duration `env:"REFERENCE_FIND_GRAPH_TTL, default=15s"`
	Retry        retryEnv      `env:",prefix=REFERENCE_FIND_RETRY_"`
	RedisURL     string        `env:"REDIS_URL, default=redis://localhost:6379/0"`
	LogLevel     string        `env:"LOG_LEVEL, default=info"`
	LogAppName   string        `env:"LOG_APP_NAME, default=reference-find"`
	Vault        vaultEnv      `env:",prefix=VAULT_REFERENCE_CONFIG_"`
}

type retryEnv struct {
	Attempts uint          `env:"ATTEMPTS, default=3"`
	Delay    time.Duration `env:"DELAY, default=500ms"`
	MaxDelay time.Duration `env:"MAX_DELAY, default=5s"`
}

type vaultEnv struct {
	Path  string `env:"PATH"`
	Mount string `env:"MOUNT, default=secret"`
}

// Retry controls how loading the build graph is retried.
type Retry struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
}

// Config holds all application configuration.
type Config struct {
	// Reference holds the reference settings applied to every resolution.
	Reference domain.Configuration

	// Database is the ClickHouse database name for the build graph and stored references.
	Database string

	// Store is the reference store backend.
	Store string

	// GraphFile is a build graph snapshot used instead of ClickHouse when set.
	GraphFile string

	// RepoPath is the Git repository used to compare commits.
	RepoPath string

	// Depth is the maximum number of commits walked when comparing commits.
	Depth int

	// ListenAddr is the address of the HTTP server.
	ListenAddr string

	// RedisURL is the Redis connection URL.
	RedisURL string

	// ReferenceTTL is how long the redis store keeps a reference.
	ReferenceTTL time.Duration

	// GraphTTL is how long serve reuses a graph loaded from ClickHouse.
	// Zero loads the graph again for every request.
	GraphTTL time.Duration

	// Retry controls graph load retries.
	Retry Retry

	// LogLevel is the logging level (debug, info, error).
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string
}

// Load loads the application configuration from environment variables.
// The reference configuration is loaded from Vault (preferred), a local file
// (fallback), or defaults when neither is configured.
//
// For Vault loading, requires:
//   - VAULT_ADDRESS: Vault server address
//   - VAULT_ROLE_ID: AppRole role ID
//   - VAULT_SECRET_ID: AppRole secret ID
//   - VAULT_REFERENCE_CONFIG_PATH: Path to the secret in Vault, optionally suffixed with #key
//   - VAULT_REFERENCE_CONFIG_MOUNT: KV mount point (optional, defaults to "secret")
//
// For file loading (fallback):
//   - REFERENCE_FIND_CONFIG: Path to local JSON or YAML file
func Load() (*Config, error) {
	return LoadWithVaultClient(context.Background(), nil)
}

// LoadWithVaultClient loads configuration using the provided VaultClient factory.
// If vaultClientFactory is nil, DefaultVaultClientFactory is used.
// This function enables dependency injection for testing.
func LoadWithVaultClient(ctx context.Context, vaultClientFactory VaultClientFactory) (*Config, error) {
	var env environment
	if err := envconfig.Process(ctx, &env); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	store := strings.ToLower(strings.TrimSpace(env.Store))
	switch store {
	case StoreNone, StoreClickHouse, StoreRedis:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, env.Store)
	}

	reference, err := loadReferenceConfig(ctx, vaultClientFactory, env)
	if err != nil {
		return nil, err
	}

	return &Config{
		Reference:    reference,
		Database:     env.Database,
		Store:        store,
		GraphFile:    env.GraphFile,
		RepoPath:     env.RepoPath,
		Depth:        env.Depth,
		ListenAddr:   env.ListenAddr,
		RedisURL:     env.RedisURL,
		ReferenceTTL: env.ReferenceTTL,
		GraphTTL:     env.GraphTTL,
		Retry: Retry{
			Attempts: env.Retry.Attempts,
			Delay:    env.Retry.Delay,
			MaxDelay: env.Retry.MaxDelay,
		},
		LogLevel:   env.LogLevel,
		LogAppName: env.LogAppName,
	}, nil
}

// LoadClickHouse loads the ClickHouse connection settings.
// It is only needed when the build graph or the reference store live in ClickHouse.
func LoadClickHouse() (*ch.ClickhouseConfig, error) {
	chConfig, err := ch.ClickhouseLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrClickHouseConfig, err)
	}
	return chConfig, nil
}

// loadReferenceConfig attempts to load the reference configuration from Vault
// first, falling back to a local file and finally to the defaults.
func loadReferenceConfig(
	ctx context.Context,
	vaultClientFactory VaultClientFactory,
	env environment,
) (domain.Configuration, error) {
	if env.Vault.Path != "" {
		return loadReferenceConfigFromVault(ctx, vaultClientFactory, env.Vault.Path, env.Vault.Mount)
	}

	if env.ConfigFile != "" {
		return loadReferenceConfigFromFile(env.ConfigFile)
	}

	return domain.NewConfiguration(), nil
}

// parseVaultPath splits "path#key" into path and key.
// The last "#" separates the key; without one DefaultSecretKey is used.
func parseVaultPath(fullPath string) (string, string) {
	idx := strings.LastIndex(fullPath, "#")
	if idx < 0 {
		return fullPath, DefaultSecretKey
	}
	return fullPath[:idx], fullPath[idx+1:]
}

// loadReferenceConfigFromVault loads the reference configuration from Vault KV v2.
func loadReferenceConfigFromVault(
	ctx context.Context,
	vaultClientFactory VaultClientFactory,
	fullPath string,
	mount string,
) (domain.Configuration, error) {
	if vaultClientFactory == nil {
		vaultClientFactory = DefaultVaultClientFactory
	}

	client, err := vaultClientFactory(ctx)
	if err != nil {
		return domain.Configuration{}, err
	}

	if mount == "" {
		mount = DefaultVaultReferenceMount
	}

	path, key := parseVaultPath(fullPath)
	secretData, err := client.GetKVSecret(ctx, path, mount)
	if err != nil {
		return domain.Configuration{}, fmt.Errorf("%w at path %s: %w", ErrVaultSecretNotFound, path, err)
	}

	return parseReferenceConfigFromVault(secretData, key)
}

// parseReferenceConfigFromVault parses the reference configuration from Vault secret data.
// Supports two formats:
// 1. The selected key holding a JSON or YAML document
// 2. Direct mapping of configuration fields in the secret
func parseReferenceConfigFromVault(secretData map[string]interface{}, key string) (domain.Configuration, error) {
	if key != "" {
		if document, ok := secretData[key].(string); ok {
			return decodeReferenceConfig([]byte(document))
		}
	}

	jsonData, err := json.Marshal(secretData)
	if err != nil {
		return domain.Configuration{}, fmt.Errorf("%w: failed to marshal secret data: %w", ErrReferenceConfigInvalid, err)
	}
	return decodeReferenceConfig(jsonData)
}

// loadReferenceConfigFromFile loads the reference configuration from the specified file path.
func loadReferenceConfigFromFile(path string) (domain.Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Configuration{}, fmt.Errorf("%w: %s", ErrReferenceConfigNotFound, path)
		}
		return domain.Configuration{}, fmt.Errorf("failed to read reference config: %w", err)
	}
	return decodeReferenceConfig(data)
}

// decodeReferenceConfig decodes JSON or YAML on top of the defaults, so
// omitted settings keep their default values.
func decodeReferenceConfig(data []byte) (domain.Configuration, error) {
	cfg := domain.NewConfiguration()
	if strings.TrimSpace(string(data)) == "" {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return domain.Configuration{}, fmt.Errorf("%w: %w", ErrReferenceConfigInvalid, err)
	}
	return cfg, nil
}
