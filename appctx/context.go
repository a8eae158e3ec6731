package appctx

import "context"

// ContextKey is the shared type for all context keys in this codebase.
// Keeping it in a tiny package avoids import cycles (config <-> syncer).
type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyPlant         = ContextKey("Plant")
	ContextKeyFamily        = ContextKey("Family")
	ContextKeyRunId         = ContextKey("RunId")
	ContextKeyCorrelationId = ContextKey("CorrelationId")

	// ContextKeySkipPlantScope disables the plant guard for the statement.
	// Only lookups that intentionally span plants should set it.
	ContextKeySkipPlantScope = ContextKey("SkipPlantScope")
)

func GetString(ctx context.Context, key ContextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok
}

func GetBool(ctx context.Context, key ContextKey) (bool, bool) {
	v, ok := ctx.Value(key).(bool)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// WithRun tags ctx with the identifiers every sync stage logs and scopes by.
func WithRun(ctx context.Context, family, plant, runId string) context.Context {
	ctx = Set(ctx, ContextKeyFamily, family)
	ctx = Set(ctx, ContextKeyPlant, plant)
	ctx = Set(ctx, ContextKeyRunId, runId)
	if _, ok := GetString(ctx, ContextKeyCorrelationId); !ok {
		ctx = Set(ctx, ContextKeyCorrelationId, runId)
	}
	return ctx
}
