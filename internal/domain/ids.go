package domain

import "strings"

// Identifier hygiene helpers. Task records must hold plain 24-character hex
// identifiers (Mongo ObjectID form); anything else is treated as corrupted
// legacy data and repaired on the retry path.

// IsHexID reports whether s looks like a 24-character hex object id.
func IsHexID(s string) bool {
	if len(s) != 24 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// TaskIDPrefix prefixes every generated task identifier.
const TaskIDPrefix = "task_"

// NewTaskID derives a task identifier from the target application id plus a
// random suffix: task_<applicationID>_<suffix>.
func NewTaskID(applicationID, suffix string) string {
	return TaskIDPrefix + applicationID + "_" + suffix
}

// ApplicationIDFromTaskID recovers the application id embedded in a task
// identifier. Returns "" when the id does not follow the generated form.
func ApplicationIDFromTaskID(taskID string) string {
	rest, ok := strings.CutPrefix(taskID, TaskIDPrefix)
	if !ok {
		return ""
	}
	appID, _, ok := strings.Cut(rest, "_")
	if !ok {
		return ""
	}
	if !IsHexID(appID) {
		return ""
	}
	return appID
}
