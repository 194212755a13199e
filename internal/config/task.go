package config

import (
	"fmt"
	"strconv"
	"strings"
)

// generalSections are the sections whose task values only apply when the
// task sets overwrite_task_general
var generalSections = map[string]bool{
	"general":         true,
	"logging":         true,
	"summary_success": true,
	"summary_error":   true,
}

const overwriteFlag = "overwrite_task_general"

// TaskConfigValue resolves a task setting. The task's own value is used when
// the section is task specific, when the task section sets
// overwrite_task_general, or when force is set. Otherwise, or when the task
// has no value, the task_general value applies, then def. With isFlag the
// result is coerced to bool.
func (c *Config) TaskConfigValue(taskName, section, field string, def any, isFlag, force bool) any {
	var value any

	taskSection := c.taskSection(taskName, section)
	useTask := force || !generalSections[section] || ToBool(taskSection[overwriteFlag])
	if useTask {
		value = taskSection[field]
	}
	if value == nil {
		value = c.TaskGeneral[section][field]
	}
	if value == nil {
		value = def
	}

	if isFlag {
		return ToBool(value)
	}
	return value
}

func (c *Config) taskSection(taskName, section string) Section {
	if c.Tasks == nil {
		return nil
	}
	return c.Tasks[taskName][section]
}

// TaskString resolves a task setting as a string
func (c *Config) TaskString(taskName, section, field, def string, force bool) string {
	return ToString(c.TaskConfigValue(taskName, section, field, def, false, force))
}

// TaskBool resolves a task flag
func (c *Config) TaskBool(taskName, section, field string, def, force bool) bool {
	return c.TaskConfigValue(taskName, section, field, def, true, force).(bool)
}

// TaskInt resolves a task setting as an integer. Unparsable values yield def.
func (c *Config) TaskInt(taskName, section, field string, def int64, force bool) int64 {
	v := c.TaskConfigValue(taskName, section, field, def, false, force)
	if i, ok := ToInt(v); ok {
		return i
	}
	return def
}

// HasTask reports whether the task has any configuration
func (c *Config) HasTask(taskName string) bool {
	_, ok := c.Tasks[taskName]
	return ok
}

// ToBool coerces a configuration value to bool
func ToBool(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "on":
			return true
		}
		return false
	default:
		if i, ok := ToInt(v); ok {
			return i != 0
		}
		return false
	}
}

// ToString renders a configuration value as a string
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// ToInt coerces a numeric configuration value
func ToInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case uint64:
		return int64(x), true
	case float64:
		return int64(x), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return i, err == nil
	}
	return 0, false
}
