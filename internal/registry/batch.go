package registry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/strumhub/strumhub/agent-plane/internal/analytics"
	"github.com/strumhub/strumhub/agent-plane/pkg/models"
)

// ExecuteBatch runs every request through ExecuteAgentRequest with bounded
// concurrency. Items are independent: one failure never aborts its
// siblings. An item that cannot start (cancelled context) or that panics
// is reported as BATCH_EXECUTION_FAILED. Responses keep request order.
func (r *Registry) ExecuteBatch(ctx context.Context, reqs []models.AgentRequest) []*models.AgentResponse {
	out := make([]*models.AgentResponse, len(reqs))

	var g errgroup.Group
	g.SetLimit(r.batchLimit)
	for i := range reqs {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					out[i] = r.batchFailure(&reqs[i], fmt.Errorf("panic: %v", p))
				}
			}()
			if err := ctx.Err(); err != nil {
				out[i] = r.batchFailure(&reqs[i], err)
				return nil
			}
			out[i] = r.ExecuteAgentRequest(ctx, &reqs[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Registry) batchFailure(req *models.AgentRequest, cause error) *models.AgentResponse {
	if req.Context.RequestID == "" {
		req.Context.RequestID = uuid.NewString()
	}
	ae := models.WrapAgentError(models.ErrBatchExecutionFailed, cause, "Batch item failed")
	resp := &models.AgentResponse{
		Error:    ae,
		Metadata: models.ResponseMetadata{AgentID: req.AgentID},
		Analytics: models.ResponseAnalytics{
			RequestID: req.Context.RequestID,
			Timestamp: r.now(),
			InputHash: analytics.Fingerprint(req.Input),
		},
	}
	if r.sink != nil {
		spec, _ := r.Get(req.AgentID)
		r.sink.Record(resp, req, spec)
	}
	return resp
}
