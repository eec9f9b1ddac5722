package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	DBPath      string `yaml:"db_path"`
	UserID      string `yaml:"user_id"`
	RemoteURL   string `yaml:"remote_url"`
	RemoteDir   string `yaml:"remote_dir"`
	RemoteToken string `yaml:"remote_token"`

	BackupDir        string        `yaml:"backup_dir"`
	SnapshotDir      string        `yaml:"snapshot_dir"`
	SnapshotKeep     int           `yaml:"snapshot_keep"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`

	NotifyURLs []string `yaml:"notify_urls"`

	ListenAddr  string `yaml:"listen_addr"`
	Socket      string `yaml:"socket"`
	ServerToken string `yaml:"server_token"`
	// BundleDir holds the bundles foliod serves as a reference remote.
	BundleDir string `yaml:"bundle_dir"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
	Output   string `yaml:"output"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Environment variables
// 2. ./.env.local (dotenv) - walks up parent directories to find it
// 3. ~/.config/folio/config.yaml (YAML)
func Load() (*Config, error) {
	cfg := &Config{
		SnapshotKeep:     10,
		SnapshotInterval: time.Hour,
		ListenAddr:       "127.0.0.1:7464",
		LogLevel:         "info",
		Output:           "table",
	}

	// Load .env.local if it exists (walking up parent directories)
	if envPath := findEnvLocal(); envPath != "" {
		_ = godotenv.Load(envPath)
	}

	if err := loadYAMLConfig(cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	if dbPath := getEnvOrFile("FOLIO_DB_PATH", "FOLIO_DB_PATH_FILE"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	setString(&cfg.UserID, "FOLIO_USER_ID")
	setString(&cfg.RemoteURL, "FOLIO_REMOTE_URL")
	setString(&cfg.RemoteDir, "FOLIO_REMOTE_DIR")
	if token := getEnvOrFile("FOLIO_REMOTE_TOKEN", "FOLIO_REMOTE_TOKEN_FILE"); token != "" {
		cfg.RemoteToken = token
	}
	setString(&cfg.BackupDir, "FOLIO_BACKUP_DIR")
	setString(&cfg.SnapshotDir, "FOLIO_SNAPSHOT_DIR")
	if keep := os.Getenv("FOLIO_SNAPSHOT_KEEP"); keep != "" {
		n, err := strconv.Atoi(keep)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid FOLIO_SNAPSHOT_KEEP %q", keep)
		}
		cfg.SnapshotKeep = n
	}
	if interval := os.Getenv("FOLIO_SNAPSHOT_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid FOLIO_SNAPSHOT_INTERVAL %q: %w", interval, err)
		}
		cfg.SnapshotInterval = d
	}
	if urls := os.Getenv("FOLIO_NOTIFY_URLS"); urls != "" {
		cfg.NotifyURLs = splitList(urls)
	}
	setString(&cfg.ListenAddr, "FOLIO_LISTEN_ADDR")
	setString(&cfg.Socket, "FOLIO_SOCKET")
	if token := getEnvOrFile("FOLIO_SERVER_TOKEN", "FOLIO_SERVER_TOKEN_FILE"); token != "" {
		cfg.ServerToken = token
	}
	setString(&cfg.BundleDir, "FOLIO_BUNDLE_DIR")
	setString(&cfg.LogLevel, "FOLIO_LOG_LEVEL")
	setString(&cfg.LogFile, "FOLIO_LOG_FILE")
	setString(&cfg.Output, "FOLIO_OUTPUT")

	// Set defaults if not configured
	if cfg.DBPath == "" {
		// Check for project-local database first
		if _, err := os.Stat(".folio/folio.db"); err == nil {
			cfg.DBPath = ".folio/folio.db"
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			cfg.DBPath = filepath.Join(homeDir, ".local", "share", "folio", "folio.db")
		}
	}

	dataDir := filepath.Dir(cfg.DBPath)
	if cfg.BackupDir == "" {
		cfg.BackupDir = filepath.Join(dataDir, "backups")
	}
	if cfg.SnapshotDir == "" {
		cfg.SnapshotDir = filepath.Join(dataDir, "snapshots")
	}
	if cfg.BundleDir == "" {
		cfg.BundleDir = filepath.Join(dataDir, "bundles")
	}

	return cfg, nil
}

// loadYAMLConfig loads configuration from ~/.config/folio/config.yaml
func loadYAMLConfig(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(homeDir, ".config", "folio", "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setString(dst *string, envVar string) {
	if val := os.Getenv(envVar); val != "" {
		*dst = val
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvOrFile gets an environment variable value, or reads it from a file
// if the _FILE variant is set
func getEnvOrFile(envVar, fileVar string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}

	if filePath := os.Getenv(fileVar); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(data))
		}
	}

	return ""
}

// findEnvLocal searches for .env.local starting from cwd and walking up
// parent directories. Stops at the user's home directory.
// Returns the path to .env.local if found, empty string otherwise.
func findEnvLocal() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		if _, err := os.Stat(".env.local"); err == nil {
			return ".env.local"
		}
		return ""
	}

	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	homeDir = filepath.Clean(homeDir)
	dir := filepath.Clean(cwd)

	for {
		envPath := filepath.Join(dir, ".env.local")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		if dir == homeDir {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// HasRemote reports whether a sync backend is configured.
func (c *Config) HasRemote() bool {
	return c.RemoteURL != "" || c.RemoteDir != ""
}
