// Package alphafold adapts the AlphaFold2 multimer structure-prediction
// service to the tool contract.
package alphafold

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/scisolve/scigateway/internal/backend"
	"github.com/scisolve/scigateway/internal/tool"
)

var validate = validator.New()

type Adapter struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, client *http.Client) *Adapter {
	return &Adapter{baseURL: baseURL, client: client}
}

func (a *Adapter) Name() string { return "alphafold2_structure_prediction" }

func (a *Adapter) Description() string {
	return "Predicts the 3D structure of protein complexes using AlphaFold2."
}

type args struct {
	Sequences              []string `json:"sequences" validate:"required,min=1,dive,required"`
	Algorithm              string   `json:"algorithm" validate:"required"`
	SkipTemplateSearch     bool     `json:"skip_template_search"`
	BitScore               float64  `json:"bit_score"`
	Databases              []string `json:"databases" validate:"required,min=1"`
	EValue                 float64  `json:"e_value"`
	Iterations             int      `json:"iterations" validate:"gte=1"`
	NumPredictionsPerModel int      `json:"num_predictions_per_model" validate:"gte=1"`
	RelaxPrediction        bool     `json:"relax_prediction"`
}

var parameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "sequences": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Protein sequences of the complex to predict, e.g. MPTTIEREFEELDTQRRWQPLYLEIRNESHDNTCCHFWLMVWQQKTKAVVMLNRIVGWTLFFQQNAL"
    },
    "algorithm": {"type": "string", "description": "Algorithm to use for structure prediction"},
    "skip_template_search": {"type": "boolean", "description": "Whether to skip template search during prediction"},
    "bit_score": {"type": "number", "description": "Bit score threshold for alignment filtering"},
    "databases": {"type": "array", "items": {"type": "string"}, "description": "Databases to search against during prediction"},
    "e_value": {"type": "number", "description": "E-value threshold for alignment significance"},
    "iterations": {"type": "integer", "description": "Number of prediction iterations to perform"},
    "num_predictions_per_model": {"type": "integer", "description": "Number of predictions to generate per model"},
    "relax_prediction": {"type": "boolean", "description": "Whether to apply structure relaxation to predictions"}
  },
  "required": ["sequences", "algorithm", "skip_template_search", "bit_score", "databases", "e_value", "iterations", "num_predictions_per_model", "relax_prediction"]
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

	url := a.baseURL + "/alphaFold2/multimer/predict-structure-from-sequences"
	result, err := backend.PostJSON(ctx, a.client, url, in)
	if err != nil {
		return "", fmt.Errorf("alphafold2: %w", err)
	}

	return string(result), nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	return backend.Ping(ctx, a.client, a.baseURL)
}
