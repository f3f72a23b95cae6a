// Package field adapts the aerodynamics simulation service to the tool
// contract. The caller supplies a URL to a point-cloud geometry file; the
// adapter downloads it, packs the coordinates into the binary layout the
// service expects, and posts a multipart prediction request.
package field

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

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

func (a *Adapter) Name() string { return "field_predict" }

func (a *Adapter) Description() string {
	return "Performs aerodynamics calculations based on provided 3D geometry, velocity vector, and wind vector. " +
		"Returns aerodynamic coefficients and pressure field visualization for high-speed trains."
}

type vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type args struct {
	MatrixURL string `json:"matrix_url" validate:"required,url"`
	Velocity  vector `json:"velocity"`
	Wind      vector `json:"wind"`
}

var parameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "matrix_url": {"type": "string", "description": "URL of the 3D geometry file describing the spatial distribution of physical points"},
    "velocity": {
      "type": "object",
      "properties": {"x": {"type": "number"}, "y": {"type": "number"}, "z": {"type": "number"}},
      "description": "Velocity vector of the object in 3D space (m/s), e.g. {\"x\": 75, \"y\": 0, \"z\": 0}"
    },
    "wind": {
      "type": "object",
      "properties": {"x": {"type": "number"}, "y": {"type": "number"}, "z": {"type": "number"}},
      "description": "Environmental wind velocity vector in 3D space (m/s), e.g. {\"x\": 0, \"y\": 0, \"z\": 0}"
    }
  },
  "required": ["matrix_url", "velocity", "wind"]
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

	geometry, points, err := a.fetchGeometry(ctx, in.MatrixURL)
	if err != nil {
		return "", fmt.Errorf("field: geometry: %w", err)
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	fields := map[string]float64{
		"train_speed":  in.Velocity.X,
		"wind_speed_y": in.Wind.Y,
		"wind_speed_z": in.Wind.Z,
	}
	for name, v := range fields {
		if err := form.WriteField(name, strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
			return "", fmt.Errorf("field: write form field: %w", err)
		}
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="geometry"; filename="geometry.txt"`)
	header.Set("Content-Type", "text/plain")
	part, err := form.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("field: create form part: %w", err)
	}
	if _, err := part.Write([]byte(geometry)); err != nil {
		return "", fmt.Errorf("field: write geometry: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("field: close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/predict", body)
	if err != nil {
		return "", fmt.Errorf("field: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("field: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("field: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("field: status=%d body=%s points=%d", resp.StatusCode, string(respBody), points)
	}

	return string(respBody), nil
}

// fetchGeometry downloads the point cloud and encodes the first three
// columns of each row as base64 over little-endian float32 triples. It
// returns the encoded matrix and the number of points.
func (a *Adapter) fetchGeometry(ctx context.Context, url string) (string, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", 0, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("fetch: status=%d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read: %w", err)
	}

	return EncodeGeometry(string(content))
}

// EncodeGeometry parses space-separated rows of coordinates, keeping the
// first three columns of each row, and base64-encodes the resulting binary
// float32 matrix.
func EncodeGeometry(content string) (string, int, error) {
	buf := &bytes.Buffer{}
	rows := 0

	for _, line := range strings.Split(content, "\n") {
		cols := strings.Fields(line)
		if len(cols) == 0 {
			continue
		}
		if len(cols) < 3 {
			return "", 0, fmt.Errorf("row %d has %d columns, want at least 3", rows, len(cols))
		}
		for _, col := range cols[:3] {
			v, err := strconv.ParseFloat(col, 32)
			if err != nil {
				return "", 0, fmt.Errorf("row %d: parse %q: %w", rows, col, err)
			}
			if err := binary.Write(buf, binary.LittleEndian, float32(v)); err != nil {
				return "", 0, err
			}
		}
		rows++
	}

	if rows == 0 {
		return "", 0, fmt.Errorf("geometry file contains no points")
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), rows, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) error {
	return backend.Ping(ctx, a.client, a.baseURL)
}
