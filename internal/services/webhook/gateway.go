package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/scrutor/internal/interfaces"
	"github.com/ternarybob/scrutor/internal/models"
	"github.com/ternarybob/scrutor/internal/queue"
)

// Gateway receives scrape result deliveries from the provider. A delivery
// passes five gates in order: credential check, job-id presence, job lookup,
// payload normalization, then persistence plus analysis hand-off. A failed
// gate leaves the job untouched.
type Gateway struct {
	jobs      interfaces.JobStorage
	taskQueue interfaces.TaskQueue
	secret    string
	logger    arbor.ILogger
}

// NewGateway creates a webhook gateway guarded by the shared secret
func NewGateway(jobs interfaces.JobStorage, taskQueue interfaces.TaskQueue, secret string, logger arbor.ILogger) *Gateway {
	return &Gateway{
		jobs:      jobs,
		taskQueue: taskQueue,
		secret:    secret,
		logger:    logger,
	}
}

// Handle processes one webhook delivery. authHeader is the raw Authorization
// header value; jobID comes from the job-id query parameter.
func (g *Gateway) Handle(ctx context.Context, authHeader, jobID string, body []byte) error {
	if !g.authorized(authHeader) {
		g.logger.Error().Str("job_id", jobID).Msg("Unauthorized webhook delivery")
		return models.ErrUnauthorized
	}

	if jobID == "" {
		g.logger.Error().Msg("Webhook delivery without job id")
		return fmt.Errorf("%w: missing job-id parameter", models.ErrInvalidArgument)
	}

	job, err := g.jobs.GetJob(ctx, jobID)
	if err != nil {
		g.logger.Error().Err(err).Str("job_id", jobID).Msg("Webhook delivery for unknown job")
		return err
	}

	data, err := normalizePayload(body)
	if err != nil {
		g.logger.Error().Err(err).Str("job_id", jobID).Msg("Malformed webhook payload")
		return err
	}

	if err := g.jobs.SaveRawData(ctx, jobID, data); err != nil {
		return err
	}

	if _, err := g.taskQueue.Enqueue(ctx, queue.TaskAnalyzeJob, map[string]string{"job_id": jobID}); err != nil {
		return err
	}

	g.logger.Info().
		Str("job_id", jobID).
		Str("tracking_id", job.TrackingID).
		Int("result_count", len(data)).
		Msg("Webhook results stored, analysis enqueued")
	return nil
}

// authorized compares the bearer token against the configured secret in
// constant time. An unconfigured secret rejects everything.
func (g *Gateway) authorized(authHeader string) bool {
	if g.secret == "" {
		return false
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(g.secret)) == 1
}

// normalizePayload decodes the delivery body. The provider sends either a
// JSON array of result objects or a single object; a single object is
// wrapped so storage always holds a list. A body that cannot be normalized
// is a schema failure on the provider's side, not bad caller input.
func normalizePayload(body []byte) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, models.NewSchemaValidationError("webhook payload", errors.New("empty body"))
	}

	if strings.HasPrefix(trimmed, "[") {
		var list []map[string]interface{}
		if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
			return nil, models.NewSchemaValidationError("webhook payload", err)
		}
		if len(list) == 0 {
			return nil, models.NewSchemaValidationError("webhook payload", errors.New("empty result list"))
		}
		return list, nil
	}

	var single map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &single); err != nil {
		return nil, models.NewSchemaValidationError("webhook payload", err)
	}
	return []map[string]interface{}{single}, nil
}
