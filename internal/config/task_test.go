package config

import "testing"

func taskConfig() *Config {
	cfg := Default()
	cfg.TaskGeneral = map[string]Section{
		"logging":       {"log_level": "info", "log_warn_as_error": true},
		"summary_error": {"send": true, "recipients": "ops@example.com"},
		"settings":      {"archive_path": "/srv/archive"},
	}
	cfg.Tasks = map[string]map[string]Section{
		"import-orders": {
			"logging":       {"log_level": "debug"},
			"summary_error": {"overwrite_task_general": "1", "recipients": "orders@example.com"},
			"settings":      {"path": "/srv/in/orders", "max_memory": int64(256)},
		},
	}
	return cfg
}

func TestTaskConfigValue_Precedence(t *testing.T) {
	cfg := taskConfig()

	tests := []struct {
		name    string
		task    string
		section string
		field   string
		def     any
		force   bool
		want    any
	}{
		{"general section ignores task value", "import-orders", "logging", "log_level", "notice", false, "info"},
		{"force uses task value", "import-orders", "logging", "log_level", "notice", true, "debug"},
		{"overwrite flag uses task value", "import-orders", "summary_error", "recipients", "", false, "orders@example.com"},
		{"overwrite falls back per field", "import-orders", "summary_error", "send", false, false, true},
		{"task section uses task value", "import-orders", "settings", "path", "", false, "/srv/in/orders"},
		{"task section falls back to general", "import-orders", "settings", "archive_path", "", false, "/srv/archive"},
		{"default", "import-orders", "settings", "error_path", "/srv/error", false, "/srv/error"},
		{"unknown task", "other", "summary_error", "recipients", "", false, "ops@example.com"},
		{"unknown section", "other", "data", "title", "x", false, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cfg.TaskConfigValue(tt.task, tt.section, tt.field, tt.def, false, tt.force)
			if got != tt.want {
				t.Errorf("TaskConfigValue = %v (%T), want %v", got, got, tt.want)
			}
		})
	}
}

func TestTaskConfigValue_Flag(t *testing.T) {
	cfg := taskConfig()

	if got := cfg.TaskConfigValue("import-orders", "logging", "log_warn_as_error", nil, true, false); got != true {
		t.Errorf("flag = %v, want true", got)
	}
	if got := cfg.TaskConfigValue("import-orders", "settings", "missing", nil, true, false); got != false {
		t.Errorf("missing flag = %v, want false", got)
	}
}

func TestTaskHelpers(t *testing.T) {
	cfg := taskConfig()

	if got := cfg.TaskInt("import-orders", "settings", "max_memory", 0, false); got != 256 {
		t.Errorf("TaskInt = %d", got)
	}
	if got := cfg.TaskInt("import-orders", "settings", "path", 7, false); got != 7 {
		t.Errorf("TaskInt of non-number = %d, want default 7", got)
	}
	if got := cfg.TaskString("import-orders", "settings", "max_memory", "", false); got != "256" {
		t.Errorf("TaskString of number = %q", got)
	}
	if !cfg.HasTask("import-orders") || cfg.HasTask("other") {
		t.Error("HasTask mismatch")
	}
}

func TestToBool(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{true, true},
		{"yes", true},
		{"On", true},
		{"1", true},
		{"0", false},
		{"no", false},
		{"", false},
		{int64(1), true},
		{int64(0), false},
		{1.0, true},
	}
	for _, tt := range tests {
		if got := ToBool(tt.in); got != tt.want {
			t.Errorf("ToBool(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSenderIdentity_Incomplete(t *testing.T) {
	cfg := Default()
	cfg.Mail.Identities = map[string]Identity{
		"general": {Email: "shop@example.com"},
	}
	if _, ok := cfg.SenderIdentity("general"); ok {
		t.Error("identity without name should be rejected")
	}
	if _, ok := cfg.SenderIdentity("missing"); ok {
		t.Error("unknown identity should be rejected")
	}
}
