package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var taskNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateTaskName checks that name can be used as a task name. Task names end
// up in lock file and log file paths, so separators are rejected.
func ValidateTaskName(name string) error {
	if name == "" {
		return fmt.Errorf("task name is required")
	}
	if !taskNameRegex.MatchString(name) {
		return fmt.Errorf("invalid task name: %q", name)
	}
	return nil
}

// ParseTaskList splits a semicolon-delimited task name list.
// Entries are trimmed and empty entries dropped; order is preserved.
func ParseTaskList(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part != "" {
			names = append(names, part)
		}
	}
	return names
}

// ParseAddressList splits a semicolon-delimited e-mail address list
func ParseAddressList(s string) []string {
	return ParseTaskList(s)
}
