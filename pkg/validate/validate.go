package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
)

// resource names follow the kubernetes naming grammar: lowercase alphanumeric
// characters or '-', starting and ending with an alphanumeric character
var resourceNameRegexp = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

const maxResourceNameLength = 253

// ExperimentName validates and trims an experiment name, rejecting anything
// that could not name a cluster resource
func ExperimentName(name string) (string, error) {
	return resourceName("experiment name", name)
}

// Namespace validates and trims a namespace name
func Namespace(namespace string) (string, error) {
	return resourceName("namespace", namespace)
}

func resourceName(kind, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInvalidArgument,
			Reason:    fmt.Sprintf("%s cannot be empty", kind),
		}
	}
	if len(value) > maxResourceNameLength {
		return "", cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInvalidArgument,
			Target:    value,
			Reason:    fmt.Sprintf("%s too long (max %d characters)", kind, maxResourceNameLength),
		}
	}
	if !resourceNameRegexp.MatchString(value) {
		return "", cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInvalidArgument,
			Target:    value,
			Reason:    fmt.Sprintf("%s must be lowercase alphanumeric characters or '-', and must start and end with an alphanumeric character", kind),
		}
	}
	return value, nil
}

// CronSchedule checks the shape of a 5-field cron expression. This is a
// syntax-level check only, semantic range validation is left to the cluster.
func CronSchedule(schedule string) error {
	fields := strings.Fields(schedule)
	if len(fields) != 5 {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInvalidArgument,
			Target:    schedule,
			Reason:    "cron schedule must have exactly 5 fields (minute hour day month weekday)",
		}
	}
	for _, field := range fields {
		if field == "*" || isDigits(field) ||
			strings.ContainsAny(field, "/-,") {
			continue
		}
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInvalidArgument,
			Target:    schedule,
			Reason:    fmt.Sprintf("invalid cron field %q", field),
		}
	}
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
