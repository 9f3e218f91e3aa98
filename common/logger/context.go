package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// The pipeline enriches the context once per stage, so every log line emitted by
// allocators, strategies and forge adapters carries the submission it belongs to.
type LogFields struct {
	SubmissionID *string // Request-scoped submission id
	ContentID    *string // Content bucket the comment targets
	Token        *string // Allocated sequence token
	Strategy     *string // Publish strategy name ("direct_commit", "review_request")
	Branch       *string // Comment branch awaiting its review request
	MessageID    *string // Redis stream message ID
	Component    string  // Component name (OTel semantic convention style, e.g., "gitmentario.pipeline")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.SubmissionID != nil {
		result.SubmissionID = new.SubmissionID
	}
	if new.ContentID != nil {
		result.ContentID = new.ContentID
	}
	if new.Token != nil {
		result.Token = new.Token
	}
	if new.Strategy != nil {
		result.Strategy = new.Strategy
	}
	if new.Branch != nil {
		result.Branch = new.Branch
	}
	if new.MessageID != nil {
		result.MessageID = new.MessageID
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{Token: logger.Ptr(tok)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
