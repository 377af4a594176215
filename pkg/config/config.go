// Package config provides secure configuration management for the smartlists application.
//
// This package handles loading configuration from environment variables and .env files
// with built-in security measures to prevent path traversal attacks. It uses the
// github.com/caarlos0/env library for environment variable parsing and
// github.com/joho/godotenv for .env file loading.
//
// The configuration loading follows a priority order:
//  1. Environment variables (highest priority)
//  2. .env file in current working directory
//  3. Default values (if any)
//
// Security features:
//   - Path traversal protection for .env file loading
//   - Secure file path resolution using filepath.Abs and filepath.Rel
//   - Validation against directory traversal attempts
//
// Example usage:
//
//	import "github.com/toozej/smartlists/pkg/config"
//
//	func main() {
//		conf := config.GetEnvVars()
//		fmt.Printf("Database: %s\n", conf.Database.Path)
//	}
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config represents the main application configuration with nested service configurations.
type Config struct {
	Spotify  SpotifyConfig  `envPrefix:"SPOTIFY_"`
	Database DatabaseConfig `envPrefix:"DATABASE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Sync     SyncConfig     `envPrefix:"SYNC_"`
	Server   ServerConfig   `envPrefix:"SERVER_"`
	Seed     SeedConfig     `envPrefix:"SEED_"`
}

// SpotifyConfig represents the configuration for Spotify API integration.
//
// This struct contains all the necessary configuration parameters for
// authenticating and interacting with the Spotify API.
type SpotifyConfig struct {
	// ClientID is the Spotify application client ID.
	ClientID string `env:"CLIENT_ID"`

	// ClientSecret is the Spotify application client secret.
	ClientSecret string `env:"CLIENT_SECRET"` // #nosec G117 -- OAuth client secret, expected in config

	// RedirectURL is the callback URL for OAuth authentication.
	RedirectURL string `env:"REDIRECT_URI" envDefault:"http://127.0.0.1:8080/callback"`

	// TokenFilePath is the path where the Spotify authentication token is stored.
	// If not specified, defaults to ~/.config/smartlists/spotify_token.json
	TokenFilePath string `env:"TOKEN_FILE_PATH" envDefault:"~/.config/smartlists/spotify_token.json"`

	// Market is the country code used for artist top tracks.
	Market string `env:"MARKET" envDefault:"US"`

	// RequestsPerSecond paces every outbound API call.
	RequestsPerSecond float64 `env:"REQUESTS_PER_SECOND" envDefault:"5"`

	// PublicPlaylists controls the visibility of playlists created by sync.
	PublicPlaylists bool `env:"PUBLIC_PLAYLISTS" envDefault:"false"`
}

// DatabaseConfig locates the SQLite library database.
type DatabaseConfig struct {
	Path string `env:"PATH" envDefault:"~/.local/share/smartlists/library.db"`
}

// RedisConfig configures the shared job store. An empty URL keeps jobs in memory.
type RedisConfig struct {
	URL       string        `env:"URL"`
	KeyPrefix string        `env:"KEY_PREFIX" envDefault:"smartlists:"`
	JobTTL    time.Duration `env:"JOB_TTL" envDefault:"168h"`
}

// SyncConfig controls chunking, pacing and scheduling of sync work.
type SyncConfig struct {
	ChunkSize              int           `env:"CHUNK_SIZE" envDefault:"100"`
	ChunkDelay             time.Duration `env:"CHUNK_DELAY" envDefault:"100ms"`
	CallTimeout            time.Duration `env:"CALL_TIMEOUT" envDefault:"30s"`
	EnrichChunkSize        int           `env:"ENRICH_CHUNK_SIZE" envDefault:"40"`
	EnrichChunkDelay       time.Duration `env:"ENRICH_CHUNK_DELAY" envDefault:"100ms"`
	Schedule               string        `env:"SCHEDULE" envDefault:"@every 1h"`
	MirrorSources          []string      `env:"MIRROR_SOURCES" envSeparator:"," envDefault:"liked-songs"`
	ForceRefreshPlaylists  bool          `env:"FORCE_REFRESH_PLAYLISTS" envDefault:"false"`
	DetachMissing          bool          `env:"DETACH_MISSING" envDefault:"true"`
	MaterializeConcurrency int           `env:"MATERIALIZE_CONCURRENCY" envDefault:"4"`
	LockRetry              time.Duration `env:"LOCK_RETRY" envDefault:"2s"`
}

// ServerConfig represents the server configuration.
type ServerConfig struct {
	Host string `env:"HOST" envDefault:"127.0.0.1"`
	Port int    `env:"PORT" envDefault:"8080"`
}

// SeedConfig locates the default smart playlist definitions.
type SeedConfig struct {
	// File is a TOML file of smart playlists. Empty uses the built-in defaults.
	File string `env:"FILE"`

	// Watch re-seeds when File changes while serving.
	Watch bool `env:"WATCH" envDefault:"false"`
}

// GetEnvVars loads and returns the application configuration from environment
// variables and .env files with comprehensive security validation.
//
// This function performs the following operations:
//  1. Securely determines the current working directory
//  2. Constructs and validates the .env file path to prevent traversal attacks
//  3. Loads .env file if it exists in the current directory
//  4. Parses environment variables into the Config struct
//  5. Validates the configuration
//  6. Returns the populated configuration
//
// The function will terminate the program with os.Exit(1) if any critical
// errors occur during configuration loading. Use Load to handle the error
// yourself.
//
// Example:
//
//	conf := config.GetEnvVars()
//	fmt.Printf("Sync schedule: %s\n", conf.Sync.Schedule)
func GetEnvVars() Config {
	conf, err := Load()
	if err != nil {
		fmt.Printf("%s\n", err)
		fmt.Println("Please check your configuration and try again.")
		os.Exit(1)
	}
	return conf
}

// Load is GetEnvVars without the exit.
func Load() (Config, error) {
	// Get current working directory for secure file operations
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("error getting current working directory: %w", err)
	}

	// Construct secure path for .env file within current directory
	envPath := filepath.Join(cwd, ".env")

	// Ensure the path is within our expected directory (prevent traversal)
	cleanEnvPath, err := filepath.Abs(envPath)
	if err != nil {
		return Config{}, fmt.Errorf("error resolving .env file path: %w", err)
	}
	cleanCwd, err := filepath.Abs(cwd)
	if err != nil {
		return Config{}, fmt.Errorf("error resolving current directory: %w", err)
	}
	relPath, err := filepath.Rel(cleanCwd, cleanEnvPath)
	if err != nil || strings.Contains(relPath, "..") {
		return Config{}, ErrEnvFileTraversal
	}

	// Load .env file if it exists
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return Config{}, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	// Parse environment variables into config struct
	var conf Config
	if err := env.Parse(&conf); err != nil {
		return Config{}, fmt.Errorf("error parsing configuration from environment: %w", err)
	}

	if err := validateConfig(&conf); err != nil {
		return Config{}, fmt.Errorf("configuration validation error: %w", err)
	}

	return conf, nil
}

// Address returns the server address
func (s ServerConfig) Address() string {
	if s.Host == "" {
		s.Host = "127.0.0.1"
	}
	if s.Port == 0 {
		s.Port = 8080
	}
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GetTokenFilePath returns the resolved token file path, handling tilde expansion
// and ensuring the directory exists.
func (s SpotifyConfig) GetTokenFilePath() (string, error) {
	return resolvePath(s.TokenFilePath)
}

// ResolvedPath returns the absolute database path and creates its directory.
func (d DatabaseConfig) ResolvedPath() (string, error) {
	return resolvePath(d.Path)
}

func resolvePath(p string) (string, error) {
	// Handle tilde expansion
	if strings.HasPrefix(p, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		p = filepath.Join(homeDir, p[2:])
	}

	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	return absPath, nil
}

// validateConfig validates the configuration
func validateConfig(conf *Config) error {
	var errors []string

	// Validate server configuration
	if conf.Server.Port < 1 || conf.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	// Validate Spotify configuration (warn but don't fail)
	if conf.Spotify.ClientID == "" {
		fmt.Println("Warning: SPOTIFY_CLIENT_ID is not set. The application will not be able to connect to Spotify.")
		fmt.Println("Please set your Spotify credentials to use the application.")
	}
	if conf.Spotify.ClientSecret == "" {
		fmt.Println("Warning: SPOTIFY_CLIENT_SECRET is not set. The application will not be able to connect to Spotify.")
	}
	if conf.Spotify.RequestsPerSecond <= 0 {
		errors = append(errors, "spotify requests per second must be greater than 0")
	}

	if conf.Database.Path == "" {
		errors = append(errors, "database path is required")
	}

	// Spotify accepts at most 100 items per playlist mutation and 100 IDs per features lookup
	if conf.Sync.ChunkSize < 1 || conf.Sync.ChunkSize > 100 {
		errors = append(errors, "sync chunk size must be between 1 and 100")
	}
	if conf.Sync.EnrichChunkSize < 1 || conf.Sync.EnrichChunkSize > 100 {
		errors = append(errors, "sync enrichment chunk size must be between 1 and 100")
	}
	if conf.Sync.ChunkDelay < 0 || conf.Sync.EnrichChunkDelay < 0 {
		errors = append(errors, "sync chunk delays must not be negative")
	}
	if conf.Sync.CallTimeout <= 0 {
		errors = append(errors, "sync call timeout must be greater than 0")
	}
	if conf.Sync.MaterializeConcurrency < 1 {
		errors = append(errors, "sync materialize concurrency must be at least 1")
	}
	for _, src := range conf.Sync.MirrorSources {
		if _, _, err := ParseSource(src); err != nil {
			errors = append(errors, err.Error())
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
