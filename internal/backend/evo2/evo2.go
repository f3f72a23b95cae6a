// Package evo2 adapts the Evo2 DNA sequence generation service to the tool
// contract.
package evo2

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

func (a *Adapter) Name() string { return "dna_predict" }

func (a *Adapter) Description() string {
	return "Predicts the next segment of a DNA sequence based on the input sequence."
}

type args struct {
	Sequence    string   `json:"sequence" validate:"required,min=1,max=500"`
	NumTokens   *int     `json:"num_tokens" validate:"omitempty,gte=1,lte=300"`
	Temperature *float64 `json:"temperature" validate:"omitempty,gt=0.01,lte=1.3"`
	TopK        *int     `json:"top_k" validate:"omitempty,gt=0,lte=6"`
	TopP        *float64 `json:"top_p" validate:"omitempty,gt=0,lte=1.0"`
}

var parameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "sequence": {"type": "string", "description": "DNA sequence (1-500 bases), e.g. TCCATCTGAGGTACCGGGTTCATCTCACTAGGGAGTGCCAGACAGTGGG"},
    "num_tokens": {"type": "integer", "description": "Length of the DNA sequence to predict (1-300), default 100"},
    "temperature": {"type": "number", "description": "Randomness control during sampling, 0.01-1.3, default 0.7"},
    "top_k": {"type": "integer", "description": "Number of highest probability tokens to consider (1-6), default 3"},
    "top_p": {"type": "number", "description": "Nucleus sampling threshold (0-1], default 1.0"}
  },
  "required": ["sequence"]
}`)

func (a *Adapter) Parameters() json.RawMessage { return parameters }

type payload struct {
	Sequence          string  `json:"sequence"`
	NumTokens         int     `json:"num_tokens"`
	Temperature       float64 `json:"temperature"`
	TopK              int     `json:"top_k"`
	TopP              float64 `json:"top_p"`
	EnableLogits      bool    `json:"enable_logits"`
	EnableSampledProb bool    `json:"enable_sampled_probs"`
}

func (a *Adapter) Invoke(ctx context.Context, raw json.RawMessage) (string, error) {
	var in args
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", &tool.ValidationError{Tool: a.Name(), Err: err}
	}
	if err := validate.Struct(&in); err != nil {
		return "", &tool.ValidationError{Tool: a.Name(), Err: err}
	}

	p := payload{
		Sequence:          in.Sequence,
		NumTokens:         100,
		Temperature:       0.7,
		TopK:              3,
		TopP:              1.0,
		EnableLogits:      false,
		EnableSampledProb: true,
	}
	if in.NumTokens != nil {
		p.NumTokens = *in.NumTokens
	}
	if in.Temperature != nil {
		p.Temperature = *in.Temperature
	}
	if in.TopK != nil {
		p.TopK = *in.TopK
	}
	if in.TopP != nil {
		p.TopP = *in.TopP
	}

	body, err := backend.PostJSON(ctx, a.client, a.baseURL+"/biology/arc/evo2/generate", p)
	if err != nil {
		return "", fmt.Errorf("evo2: %w", err)
	}

	// Echo the input sequence into the result so the model can relate the
	// generated segment back to its prompt.
	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("evo2: decode response: %w", err)
	}
	result["input_sequence"] = in.Sequence

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("evo2: encode result: %w", err)
	}

	return string(out), nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	return backend.Ping(ctx, a.client, a.baseURL)
}
