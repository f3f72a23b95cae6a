// Package mattergen adapts the MatterGen inorganic material generation
// service to the tool contract.
package mattergen

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/scisolve/scigateway/internal/backend"
	"github.com/scisolve/scigateway/internal/tool"
)

const modelName = "mattergen_base"

var validate = validator.New()

type Adapter struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, client *http.Client) *Adapter {
	return &Adapter{baseURL: baseURL, client: client}
}

func (a *Adapter) Name() string { return "matterGen_tool" }

func (a *Adapter) Description() string {
	return "Generates crystal material structures given a batch size and number of batches. " +
		"Optional properties_to_condition_on constrains generation, e.g. {\"dft_mag_density\": 0.15}."
}

type args struct {
	BatchSize   *int                   `json:"batch_size" validate:"omitempty,gte=1"`
	NumBatches  *int                   `json:"num_batches" validate:"omitempty,gte=1"`
	ConditionOn map[string]interface{} `json:"properties_to_condition_on,omitempty"`
}

var parameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "batch_size": {"type": "integer", "description": "Number of samples generated per batch, default 16"},
    "num_batches": {"type": "integer", "description": "Number of batches to generate, default 1"},
    "properties_to_condition_on": {"type": "object", "description": "Conditional properties, e.g. {\"dft_mag_density\": 0.15}"}
  }
}`)

func (a *Adapter) Parameters() json.RawMessage { return parameters }

func (a *Adapter) Invoke(ctx context.Context, raw json.RawMessage) (string, error) {
	var in args
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", &tool.ValidationError{Tool: a.Name(), Err: err}
	}
	if err := validate.Struct(&in); err != nil {
		return "", &tool.ValidationError{Tool: a.Name(), Err: err}
	}

	p := map[string]interface{}{
		"model_name":  modelName,
		"batch_size":  16,
		"num_batches": 1,
	}
	if in.BatchSize != nil {
		p["batch_size"] = *in.BatchSize
	}
	if in.NumBatches != nil {
		p["num_batches"] = *in.NumBatches
	}
	if len(in.ConditionOn) > 0 {
		p["properties_to_condition_on"] = in.ConditionOn
	}

	body, err := backend.PostJSON(ctx, a.client, a.baseURL+"/generate", p)
	if err != nil {
		return "", fmt.Errorf("mattergen: %w", err)
	}

	// generation_time is noise for the agent model; strip it.
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("mattergen: decode response: %w", err)
	}
	if data, ok := result["data"].(map[string]interface{}); ok {
		delete(data, "generation_time")
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("mattergen: encode result: %w", err)
	}

	return string(out), nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	return backend.Ping(ctx, a.client, a.baseURL)
}
