package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strumhub/strumhub/agent-plane/internal/analytics"
	"github.com/strumhub/strumhub/agent-plane/internal/llm"
	"github.com/strumhub/strumhub/agent-plane/internal/validation"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// Execute is the caller-facing convenience: it fills request and session
// IDs and the timestamp, then runs the full pipeline.
func (r *Registry) Execute(ctx context.Context, agentID string, input map[string]any, partial models.AgentContext) *models.AgentResponse {
	if partial.RequestID == "" {
		partial.RequestID = uuid.NewString()
	}
	if partial.SessionID == "" {
		partial.SessionID = uuid.NewString()
	}
	if partial.Timestamp.IsZero() {
		partial.Timestamp = r.now()
	}
	return r.ExecuteAgentRequest(ctx, &models.AgentRequest{AgentID: agentID, Input: input, Context: partial})
}

// ExecuteAgentRequest runs one request through the pipeline. Under the
// sanitize policy req.Input is rewritten in place.
func (r *Registry) ExecuteAgentRequest(ctx context.Context, req *models.AgentRequest) *models.AgentResponse {
	start := r.now()
	if req.Input == nil {
		req.Input = map[string]any{}
	}
	if req.Context.RequestID == "" {
		req.Context.RequestID = uuid.NewString()
	}
	if req.Context.Timestamp.IsZero() {
		req.Context.Timestamp = start
	}
	if req.Context.UserRole == "" {
		req.Context.UserRole = models.RoleAnonymous
	}
	ctx, span := r.tracer.Start(ctx, "agent.execute",
		trace.WithAttributes(
			attribute.String("agent.id", req.AgentID),
			attribute.String("user.role", string(req.Context.UserRole)),
			attribute.String("request.id", req.Context.RequestID),
		),
	)
	defer span.End()

	spec, out, err := r.run(ctx, req)
	// Taken after validation so a sanitized input is hashed in redacted form.
	inputHash := analytics.Fingerprint(req.Input)

	resp := &models.AgentResponse{
		Metadata: models.ResponseMetadata{AgentID: req.AgentID},
		Analytics: models.ResponseAnalytics{
			RequestID: req.Context.RequestID,
			Timestamp: req.Context.Timestamp,
			InputHash: inputHash,
		},
	}

	if err == nil {
		resp.Success = true
		resp.Result = &models.AgentResult{Content: out.Content, Raw: out}
		resp.Metadata.Model = out.Model
		resp.Metadata.Provider = out.Provider
		if out.Usage != nil {
			resp.Result.Usage = &models.TokenUsage{
				InputTokens:  out.Usage.InputTokens,
				OutputTokens: out.Usage.OutputTokens,
				TotalTokens:  out.Usage.TotalTokens,
			}
			resp.Metadata.TokensUsed = out.Usage.TotalTokens
		}
	} else {
		resp.Error = asAgentError(err)
		if text, ok := r.fallback(req.AgentID); ok {
			resp.Result = &models.AgentResult{Content: text, IsFallback: true}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(resp.Error.Code))
	}

	resp.Analytics.Successful = resp.Success
	resp.Metadata.ExecutionTime = r.now().Sub(start).Milliseconds()
	span.SetAttributes(
		attribute.Bool("agent.success", resp.Success),
		attribute.Int64("agent.execution_ms", resp.Metadata.ExecutionTime),
	)

	if r.sink != nil {
		r.sink.Record(resp, req, spec)
	}
	logOutcome(resp, req)
	return resp
}

// run executes the pipeline steps in order. A panic in any step becomes an
// EXECUTION_FAILED error.
func (r *Registry) run(ctx context.Context, req *models.AgentRequest) (spec *models.AgentSpecification, out *llm.CompletionResponse, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("agent", req.AgentID).Msg("Agent execution panicked")
			out = nil
			err = models.NewAgentError(models.ErrExecutionFailed, "Agent execution failed: internal error")
		}
	}()

	spec, ok := r.Get(req.AgentID)
	if !ok {
		return nil, nil, models.NewAgentError(models.ErrAgentNotFound, "Agent %s not found", req.AgentID)
	}

	role := req.Context.UserRole
	if r.limiter != nil {
		identity := req.Context.UserID
		if identity == "" {
			identity = string(models.RoleAnonymous)
		}
		rl, lerr := r.limiter.Check(ctx, identity, role, spec.ID)
		switch {
		case lerr != nil:
			log.Warn().Err(lerr).Str("agent", spec.ID).Msg("Rate limiter unavailable, admitting request")
		case !rl.Allowed:
			return spec, nil, models.NewAgentError(models.ErrRateLimited,
				"Rate limit exceeded for agent %s. Try again in %d seconds", spec.ID, rl.RetryAfter).
				WithDetail("retry_after", rl.RetryAfter).
				WithDetail("remaining", rl.Remaining).
				WithDetail("limit", rl.Limit).
				WithDetail("reset_time", rl.ResetTime)
		}
	}

	if err := validation.ValidateRequest(req, spec); err != nil {
		return spec, nil, err
	}

	if !spec.Targets(role) {
		return spec, nil, models.NewAgentError(models.ErrPermissionDenied,
			"Role %s is not permitted to use agent %s", role, spec.ID).
			WithDetail("target_users", spec.TargetUsers)
	}

	var resolved map[models.ContextKey]any
	if r.fetcher != nil {
		if resolved, err = r.fetcher.Resolve(ctx, spec, &req.Context); err != nil {
			return spec, nil, err
		}
	}

	if r.executor == nil {
		return spec, nil, errors.New("no executor configured")
	}
	out, err = r.executor.Execute(ctx, req, spec, resolved)
	if err != nil {
		return spec, nil, err
	}
	return spec, out, nil
}

// asAgentError classifies err by type. Anything that is not already an
// AgentError is an execution failure.
func asAgentError(err error) *models.AgentError {
	var ae *models.AgentError
	if errors.As(err, &ae) {
		return ae
	}
	return models.WrapAgentError(models.ErrExecutionFailed, err, "Agent execution failed")
}

func logOutcome(resp *models.AgentResponse, req *models.AgentRequest) {
	if resp.Success {
		log.Debug().
			Str("agent", req.AgentID).
			Str("request_id", req.Context.RequestID).
			Int64("ms", resp.Metadata.ExecutionTime).
			Int64("tokens", resp.Metadata.TokensUsed).
			Msg("Agent executed")
		return
	}

	event := log.Debug()
	switch resp.Error.Code {
	case models.ErrExecutionFailed, models.ErrContext:
		event = log.Warn()
	}
	event.
		Str("agent", req.AgentID).
		Str("request_id", req.Context.RequestID).
		Str("role", string(req.Context.UserRole)).
		Str("code", string(resp.Error.Code)).
		Str("error", resp.Error.Message).
		Bool("retryable", resp.Error.Code.Retryable()).
		Bool("fallback", resp.Result != nil).
		Msg("Agent execution failed")
}
