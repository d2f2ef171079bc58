package circleci

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/NEAR-Edu/contract-registry/pkg/domain"
)

// TriggerPipeline starts a pipeline on branch with the given pipeline parameters.
func (c *Client) TriggerPipeline(ctx context.Context, branch string, params map[string]any) (domain.PipelineRef, error) {
	payload := map[string]any{"parameters": params}
	if branch != "" {
		payload["branch"] = branch
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return domain.PipelineRef{}, fmt.Errorf("marshal pipeline request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/api/v2/project/%s/pipeline", c.baseURL, c.slug)
	body, err := c.do(ctx, http.MethodPost, endpoint, b, "pipeline", "")
	if err != nil {
		return domain.PipelineRef{}, err
	}
	var ref domain.PipelineRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return domain.PipelineRef{}, schemaError("pipeline", "decode pipeline: %v", err)
	}
	if ref.ID == "" {
		return domain.PipelineRef{}, schemaError("pipeline", "pipeline response has no id")
	}
	return ref, nil
}
