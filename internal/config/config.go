package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LocalConfigName is the project-local config file looked up from the
// working directory upwards
const LocalConfigName = ".task-orch.toml"

// Config holds all application configuration
type Config struct {
	General       GeneralConfig                 `toml:"general" yaml:"general"`
	Mail          MailConfig                    `toml:"mail" yaml:"mail"`
	Notifications NotificationsConfig           `toml:"notifications" yaml:"notifications"`
	Web           WebConfig                     `toml:"web" yaml:"web"`
	ObjectStore   ObjectStoreConfig             `toml:"object_store" yaml:"object_store"`
	TaskGeneral   map[string]Section            `toml:"task_general" yaml:"task_general"`
	Tasks         map[string]map[string]Section `toml:"tasks" yaml:"tasks"`
	Schedule      []ScheduleEntry               `toml:"schedule" yaml:"schedule"`
}

// Section holds the free-form fields of one task configuration section
type Section map[string]any

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabaseDriver string `toml:"database_driver" yaml:"database_driver"`
	DatabaseDSN    string `toml:"database_dsn" yaml:"database_dsn"`
	LockDir        string `toml:"lock_dir" yaml:"lock_dir"`
	LogDir         string `toml:"log_dir" yaml:"log_dir"`
	LogLevel       string `toml:"log_level" yaml:"log_level"`
	LogFormat      string `toml:"log_format" yaml:"log_format"`
	AdminStore     string `toml:"admin_store" yaml:"admin_store"`
	DefaultTitle   string `toml:"default_title" yaml:"default_title"`
}

// MailConfig holds SMTP settings and the sender identities
type MailConfig struct {
	Host       string              `toml:"host" yaml:"host"`
	Port       int                 `toml:"port" yaml:"port"`
	Username   string              `toml:"username" yaml:"username"`
	Password   string              `toml:"password" yaml:"password"`
	TLS        string              `toml:"tls" yaml:"tls"`
	Identities map[string]Identity `toml:"identities" yaml:"identities"`
}

// Identity is a named sender address
type Identity struct {
	Email string `toml:"email" yaml:"email"`
	Name  string `toml:"name" yaml:"name"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook" yaml:"slack_webhook"`
}

// WebConfig holds admin API settings
type WebConfig struct {
	Port int    `toml:"port" yaml:"port"`
	Host string `toml:"host" yaml:"host"`
}

// ObjectStoreConfig holds the S3-compatible store used for s3:// archive paths
type ObjectStoreConfig struct {
	Endpoint  string `toml:"endpoint" yaml:"endpoint"`
	AccessKey string `toml:"access_key" yaml:"access_key"`
	SecretKey string `toml:"secret_key" yaml:"secret_key"`
	Region    string `toml:"region" yaml:"region"`
	UseSSL    bool   `toml:"use_ssl" yaml:"use_ssl"`
}

// ScheduleEntry triggers a task on a cron expression
type ScheduleEntry struct {
	Task      string `toml:"task" yaml:"task"`
	Cron      string `toml:"cron" yaml:"cron"`
	StoreCode string `toml:"store_code" yaml:"store_code"`
	Test      bool   `toml:"test" yaml:"test"`
	LogLevel  string `toml:"log_level" yaml:"log_level"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabaseDriver: "sqlite",
			DatabaseDSN:    filepath.Join(home, ".task-orchestrator", "runs.db"),
			LockDir:        os.TempDir(),
			LogDir:         filepath.Join(home, ".task-orchestrator", "log"),
			LogLevel:       "info",
			LogFormat:      "text",
			AdminStore:     "admin",
		},
		Mail: MailConfig{
			Port: 587,
			TLS:  "mandatory",
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		ObjectStore: ObjectStoreConfig{
			UseSSL: true,
		},
	}
}

// Load reads configuration from a TOML or YAML file, falling back to
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, cfg)
		default:
			err = toml.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.LockDir = ExpandPath(cfg.General.LockDir)
	cfg.General.LogDir = ExpandPath(cfg.General.LogDir)
	if cfg.General.DatabaseDriver == "sqlite" {
		cfg.General.DatabaseDSN = ExpandPath(cfg.General.DatabaseDSN)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be defaulted
func (c *Config) Validate() error {
	switch c.General.DatabaseDriver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("general.database_driver must be sqlite or pgx, got %q", c.General.DatabaseDriver)
	}
	switch c.Mail.TLS {
	case "", "mandatory", "opportunistic", "none":
	default:
		return fmt.Errorf("mail.tls must be mandatory, opportunistic or none, got %q", c.Mail.TLS)
	}
	for i, e := range c.Schedule {
		if e.Task == "" || e.Cron == "" {
			return fmt.Errorf("schedule entry %d: task and cron are required", i+1)
		}
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "task-orchestrator", "config.toml")
}

// FindLocalConfig searches the working directory and its parents for
// LocalConfigName and returns its path, or "" if there is none
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ResolvePath returns path if given, else a local config if one is found,
// else the default config path
func ResolvePath(path string) string {
	if path != "" {
		return path
	}
	if local := FindLocalConfig(); local != "" {
		return local
	}
	return DefaultConfigPath()
}

// LoadWithLocalFallback loads the file ResolvePath picks
func LoadWithLocalFallback(path string) (*Config, error) {
	return Load(ResolvePath(path))
}

// TaskNames returns the names of all configured tasks, sorted
func (c *Config) TaskNames() []string {
	names := make([]string, 0, len(c.Tasks))
	for name := range c.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SenderIdentity returns the named sender identity. Both address and name
// must be set.
func (c *Config) SenderIdentity(name string) (Identity, bool) {
	id, ok := c.Mail.Identities[name]
	if !ok || id.Email == "" || id.Name == "" {
		return Identity{}, false
	}
	return id, true
}

// DefaultTitle returns the prefix used for summary subjects
func (c *Config) DefaultTitle() string {
	return c.General.DefaultTitle
}
