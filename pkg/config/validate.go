package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "providers.anthropic.requests_per_minute").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a
// configuration. It implements the error interface and provides access to
// all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(cfg.Providers) == 0 {
		errs = append(errs, FieldError{
			Field:   "providers",
			Message: "at least one provider must be configured",
		})
	}
	for id, limits := range cfg.Providers {
		if id == "" {
			errs = append(errs, FieldError{
				Field:   "providers",
				Message: "provider id cannot be empty",
			})
			continue
		}
		errs = append(errs, validateLimits("providers."+id, limits)...)
	}
	if cfg.Global != nil {
		errs = append(errs, validateLimits("global", *cfg.Global)...)
	}

	errs = append(errs, validateQueue(&cfg.Queue)...)
	errs = append(errs, validateCircuit(&cfg.Circuit)...)
	errs = append(errs, validateHistory(&cfg.History)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateLogging(logging *LoggingConfig) []FieldError {
	var errs []FieldError

	switch logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q (must be debug, info, warn, or error)", logging.Level),
		})
	}

	switch logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q (must be json or text)", logging.Format),
		})
	}

	return errs
}

func validateLimits(field string, limits ProviderLimits) []FieldError {
	var errs []FieldError

	if limits.RequestsPerMinute <= 0 {
		errs = append(errs, FieldError{
			Field:   field + ".requests_per_minute",
			Message: "must be positive",
		})
	}
	if limits.TokensPerMinute <= 0 {
		errs = append(errs, FieldError{
			Field:   field + ".tokens_per_minute",
			Message: "must be positive",
		})
	}
	if limits.BurstLimit < 0 {
		errs = append(errs, FieldError{
			Field:   field + ".burst_limit",
			Message: "cannot be negative",
		})
	}
	if limits.WindowSize < 0 {
		errs = append(errs, FieldError{
			Field:   field + ".window_size",
			Message: "cannot be negative",
		})
	}

	return errs
}

func validateQueue(q *QueueConfig) []FieldError {
	var errs []FieldError

	if q.MaxSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "queue.max_size",
			Message: "must be positive",
		})
	}
	if q.Concurrency <= 0 {
		errs = append(errs, FieldError{
			Field:   "queue.concurrency",
			Message: "must be positive",
		})
	}
	if q.PriorityLevels <= 0 {
		errs = append(errs, FieldError{
			Field:   "queue.priority_levels",
			Message: "must be positive",
		})
	}
	if q.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "queue.timeout",
			Message: "must be positive",
		})
	}

	return errs
}

func validateCircuit(c *CircuitConfig) []FieldError {
	var errs []FieldError

	if c.Threshold <= 0 {
		errs = append(errs, FieldError{
			Field:   "circuit.threshold",
			Message: "must be positive",
		})
	}
	if c.Timeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "circuit.timeout",
			Message: "must be positive",
		})
	}

	return errs
}

func validateHistory(h *HistoryConfig) []FieldError {
	var errs []FieldError

	switch h.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "history.backend",
			Message: fmt.Sprintf("invalid backend %q (must be memory or sqlite)", h.Backend),
		})
	}
	if h.Backend == "sqlite" && h.SQLitePath == "" {
		errs = append(errs, FieldError{
			Field:   "history.sqlite_path",
			Message: "required for the sqlite backend",
		})
	}
	if h.Schedule != "" {
		if _, err := cron.ParseStandard(h.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "history.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}
