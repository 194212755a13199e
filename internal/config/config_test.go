package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Default()

	if cfg.General.DatabaseDriver != "sqlite" {
		t.Errorf("DatabaseDriver = %q, want sqlite", cfg.General.DatabaseDriver)
	}
	if cfg.General.AdminStore != "admin" {
		t.Errorf("AdminStore = %q, want admin", cfg.General.AdminStore)
	}
	if cfg.General.LockDir != os.TempDir() {
		t.Errorf("LockDir = %q, want %q", cfg.General.LockDir, os.TempDir())
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("Web.Port = %d, want 8080", cfg.Web.Port)
	}
	if cfg.Web.Host != "127.0.0.1" {
		t.Errorf("Web.Host = %q, want 127.0.0.1", cfg.Web.Host)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := writeTempConfig(t, "config.toml", `
[general]
lock_dir = "/var/lock/orch"
log_level = "debug"
default_title = "Shop"

[web]
port = 9000

[mail.identities.general]
email = "shop@example.com"
name = "Shop"

[task_general.summary_error]
send = true
recipients = "ops@example.com"

[tasks.import-orders.settings]
depends_on = "import-customers"
max_memory = 512

[[schedule]]
task = "import-orders"
cron = "*/5 * * * *"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.General.LockDir != "/var/lock/orch" {
		t.Errorf("LockDir = %q", cfg.General.LockDir)
	}
	if cfg.General.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.General.LogLevel)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
	if cfg.DefaultTitle() != "Shop" {
		t.Errorf("DefaultTitle = %q", cfg.DefaultTitle())
	}
	if id, ok := cfg.SenderIdentity("general"); !ok || id.Email != "shop@example.com" {
		t.Errorf("SenderIdentity = %+v, %v", id, ok)
	}
	if got := cfg.TaskString("import-orders", "settings", "depends_on", "", false); got != "import-customers" {
		t.Errorf("depends_on = %q", got)
	}
	if got := cfg.TaskInt("import-orders", "settings", "max_memory", 0, false); got != 512 {
		t.Errorf("max_memory = %d", got)
	}
	if !cfg.TaskBool("import-orders", "summary_error", "send", false, false) {
		t.Error("summary_error.send should come from task_general")
	}
	if len(cfg.Schedule) != 1 || cfg.Schedule[0].Cron != "*/5 * * * *" {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
	if names := cfg.TaskNames(); len(names) != 1 || names[0] != "import-orders" {
		t.Errorf("TaskNames = %v", names)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeTempConfig(t, "config.yaml", `
general:
  log_dir: /var/log/orch
tasks:
  import-orders:
    settings:
      wait_for_predecessor: "yes"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.LogDir != "/var/log/orch" {
		t.Errorf("LogDir = %q", cfg.General.LogDir)
	}
	if cfg.General.DatabaseDriver != "sqlite" {
		t.Error("unset values should keep their defaults")
	}
	if !cfg.TaskBool("import-orders", "settings", "wait_for_predecessor", false, false) {
		t.Error("wait_for_predecessor should be true")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.AdminStore != "admin" {
		t.Error("missing file should yield defaults")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad driver", "[general]\ndatabase_driver = \"mysql\"\n"},
		{"bad tls", "[mail]\ntls = \"sometimes\"\n"},
		{"schedule without cron", "[[schedule]]\ntask = \"x\"\n"},
		{"syntax", "[general\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeTempConfig(t, "config.toml", tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDatabaseDriver, "pgx")
	t.Setenv(EnvDatabaseDSN, "postgres://orch@localhost/orch")
	t.Setenv(EnvLockDir, "/run/orch")
	t.Setenv(EnvSMTPPassword, "secret")
	t.Setenv(EnvObjectUseSSL, "false")

	cfg, err := Load(writeTempConfig(t, "config.toml", "[general]\nlock_dir = \"/tmp/file\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.DatabaseDriver != "pgx" || cfg.General.DatabaseDSN != "postgres://orch@localhost/orch" {
		t.Errorf("database = %q %q", cfg.General.DatabaseDriver, cfg.General.DatabaseDSN)
	}
	if cfg.General.LockDir != "/run/orch" {
		t.Errorf("LockDir = %q, env should win over file", cfg.General.LockDir)
	}
	if cfg.Mail.Password != "secret" {
		t.Errorf("Mail.Password = %q", cfg.Mail.Password)
	}
	if cfg.ObjectStore.UseSSL {
		t.Error("UseSSL should be overridden to false")
	}
}

func TestLoad_EnvInvalidBool(t *testing.T) {
	t.Setenv(EnvObjectUseSSL, "maybe")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("invalid bool should fail")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}

	for _, tt := range tests {
		got := ExpandPath(tt.input)
		if got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFindLocalConfig(t *testing.T) {
	root := t.TempDir()
	subdir := filepath.Join(root, "sub", "dir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatal(err)
	}

	localConfig := filepath.Join(root, LocalConfigName)
	if err := os.WriteFile(localConfig, []byte("[general]\nadmin_store = \"local\""), 0644); err != nil {
		t.Fatal(err)
	}

	t.Chdir(subdir)

	found := FindLocalConfig()
	if found != localConfig {
		t.Errorf("FindLocalConfig() = %q, want %q", found, localConfig)
	}
}

func TestFindLocalConfig_NotFound(t *testing.T) {
	t.Chdir(t.TempDir())

	if found := FindLocalConfig(); found != "" {
		t.Errorf("FindLocalConfig() = %q, want empty string", found)
	}
}

func TestResolvePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	if got := ResolvePath("custom.toml"); got != "custom.toml" {
		t.Errorf("ResolvePath(custom.toml) = %q", got)
	}
	want := filepath.Join(home, ".config", "task-orchestrator", "config.toml")
	if got := ResolvePath(""); got != want {
		t.Errorf("ResolvePath(\"\") = %q, want %q", got, want)
	}
}

func TestLoadWithLocalFallback_ExplicitPath(t *testing.T) {
	path := writeTempConfig(t, "explicit.toml", "[general]\nadmin_store = \"explicit\"\n")

	cfg, err := LoadWithLocalFallback(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.AdminStore != "explicit" {
		t.Errorf("AdminStore = %q, want explicit", cfg.General.AdminStore)
	}
}

func TestLoadWithLocalFallback_LocalConfig(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, LocalConfigName), []byte("[general]\nadmin_store = \"from-local\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(root)

	cfg, err := LoadWithLocalFallback("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.AdminStore != "from-local" {
		t.Errorf("AdminStore = %q, want from-local", cfg.General.AdminStore)
	}
}

func writeTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
