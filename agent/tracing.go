package agent

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hupe1980/agentflow/agent")

// startRunSpan starts a span for a whole run.
func startRunSpan(ctx context.Context, agent, runID string, maxSteps int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "agent.run")
	span.SetAttributes(
		attribute.String("agent.name", agent),
		attribute.String("agent.run_id", runID),
		attribute.Int("agent.max_steps", maxSteps),
	)
	return ctx, span
}

// endRunSpan ends the run span with the outcome.
func endRunSpan(span trace.Span, res Result) {
	span.SetAttributes(
		attribute.String("agent.state", string(res.State)),
		attribute.String("agent.finish_reason", string(res.FinishReason)),
		attribute.Int("agent.steps", res.Steps),
		attribute.Bool("agent.failed", res.Failed),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	span.End()
}

func startStepSpan(ctx context.Context, agent string, step int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "agent.step")
	span.SetAttributes(
		attribute.String("agent.name", agent),
		attribute.Int("agent.step", step),
	)
	return ctx, span
}

func startThinkSpan(ctx context.Context, agent string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "agent.think")
	span.SetAttributes(attribute.String("agent.name", agent))
	return ctx, span
}

func endThinkSpan(span trace.Span, attempts, toolCalls int, err error) {
	span.SetAttributes(
		attribute.Int("think.attempts", attempts),
		attribute.Int("think.tool_calls", toolCalls),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
