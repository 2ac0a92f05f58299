// Package kit carries request-scoped values through context.Context and
// adapts plain endpoints to MCP tools.
package kit

import "context"

type contextKey string

const (
	RunIDKey    contextKey = "kit_run_id"
	ScenarioKey contextKey = "kit_scenario"
	FeatureKey  contextKey = "kit_feature"
)

func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunIDKey, id)
}
func GetRunID(ctx context.Context) string {
	v, _ := ctx.Value(RunIDKey).(string)
	return v
}

func WithScenario(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ScenarioKey, name)
}
func GetScenario(ctx context.Context) string {
	v, _ := ctx.Value(ScenarioKey).(string)
	return v
}

func WithFeature(ctx context.Context, uri string) context.Context {
	return context.WithValue(ctx, FeatureKey, uri)
}
func GetFeature(ctx context.Context) string {
	v, _ := ctx.Value(FeatureKey).(string)
	return v
}
