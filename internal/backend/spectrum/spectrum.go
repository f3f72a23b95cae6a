// Package spectrum adapts the spectral-analysis service to the tool
// contract. The service itself speaks the OpenAI chat-completions shape.
package spectrum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/scisolve/scigateway/internal/backend"
	"github.com/scisolve/scigateway/internal/domain"
	"github.com/scisolve/scigateway/internal/tool"
)

const systemPrompt = "You are a professional chemist specialized in spectral analysis. " +
	"Given spectral data descriptions, analyze the data to identify functional groups and " +
	"deduce the corresponding chemical compound. Respond with the SMILES notation strictly " +
	"formatted as ##SMILES: followed by the SMILES string."

const smilesMarker = "##SMILES:"

var validate = validator.New()

type Adapter struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, client *http.Client) *Adapter {
	return &Adapter{baseURL: baseURL, client: client}
}

func (a *Adapter) Name() string { return "spectrum_predict" }

func (a *Adapter) Description() string {
	return `Predicts chemical structures based on spectral data provided in the user's prompt. Example usage:
"Given multiple spectra, predict which compound the spectra correspond to and give the SMILES of that compound. Please answer strictly in the format ##SMILES:"
"Given the crystal diffraction spectrum, predict which crystal system does this spectrum represent. Please answer strictly in the format ##Crystal System:"`
}

type args struct {
	Query string `json:"query" validate:"required"`
}

var parameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "User query for spectrum analysis, e.g. \"Given multiple spectra, predict which compound the spectra correspond to and give the SMILES of that compound. Please answer strictly in the format ##SMILES:\""}
  },
  "required": ["query"]
}`)

func (a *Adapter) Parameters() json.RawMessage { return parameters }

type result struct {
	Content string `json:"content"`
	SMILES  string `json:"smiles"`
}

func (a *Adapter) Invoke(ctx context.Context, raw json.RawMessage) (string, error) {
	var in args
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", &tool.ValidationError{Tool: a.Name(), Err: err}
	}
	if err := validate.Struct(&in); err != nil {
		return "", &tool.ValidationError{Tool: a.Name(), Err: err}
	}

	payload := domain.ChatRequest{
		Model: "test",
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: systemPrompt},
			{Role: domain.RoleUser, Content: in.Query},
		},
	}

	body, err := backend.PostJSON(ctx, a.client, a.baseURL+"/v1/chat/completions", payload)
	if err != nil {
		return "", fmt.Errorf("spectrum: %w", err)
	}

	var resp domain.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("spectrum: decode response: %w", err)
	}

	res := result{}
	if len(resp.Choices) > 0 {
		res.Content = resp.Choices[0].Message.Content
	}
	if i := strings.Index(res.Content, smilesMarker); i >= 0 {
		res.SMILES = strings.TrimSpace(res.Content[i+len(smilesMarker):])
	}

	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("spectrum: encode result: %w", err)
	}

	return string(out), nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	return backend.Ping(ctx, a.client, a.baseURL)
}
