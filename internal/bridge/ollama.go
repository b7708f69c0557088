package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/foremanhq/foreman/internal/common/config"
	apperrors "github.com/foremanhq/foreman/internal/common/errors"
	"github.com/foremanhq/foreman/internal/common/logger"
	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

const healthTimeout = 5 * time.Second

// Ollama is the synchronous HTTP bridge to a local inference service.
type Ollama struct {
	baseURL      string
	defaultModel string
	client       *http.Client
	log          *logger.Logger
}

// NewOllama creates the bridge from configuration.
func NewOllama(cfg config.OllamaConfig, log *logger.Logger) *Ollama {
	if log == nil {
		log = logger.Default()
	}
	return &Ollama{
		baseURL:      cfg.URL,
		defaultModel: cfg.DefaultModel,
		client:       &http.Client{Timeout: cfg.TimeoutDuration()},
		log:          log,
	}
}

// Name implements Bridge.
func (o *Ollama) Name() string { return "ollama" }

// GenerateRequest is one raw inference call.
type GenerateRequest struct {
	Model        string
	Prompt       string
	SystemPrompt string
	Temperature  *float64
}

type generatePayload struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
	System  string         `json:"system,omitempty"`
}

type generateResponse struct {
	Response     string `json:"response"`
	EvalCount    int64  `json:"eval_count"`
	EvalDuration int64  `json:"eval_duration"`
}

// Generate performs one inference call and returns the generated text.
// The DebateEngine and the second-opinion classifier use this directly.
func (o *Ollama) Generate(ctx context.Context, req GenerateRequest) (string, *Metrics, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}
	temperature := 0.7
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	payload := generatePayload{
		Model:  model,
		Prompt: req.Prompt,
		Stream: false,
		Options: map[string]any{
			"num_ctx":     8192,
			"temperature": temperature,
			"top_k":       40,
			"top_p":       0.9,
			"num_predict": 2048,
		},
		System: req.SystemPrompt,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, apperrors.BridgeProtocol("ollama", "failed to encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", nil, apperrors.BridgeUnavailable("ollama", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", nil, apperrors.BridgeTimeout("ollama")
		}
		return "", nil, apperrors.BridgeUnavailable("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, apperrors.BridgeProtocol("ollama", fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", nil, apperrors.BridgeProtocol("ollama", "bad response payload: "+err.Error())
	}

	return out.Response, &Metrics{EvalCount: out.EvalCount, EvalDuration: out.EvalDuration}, nil
}

// Execute implements Bridge: it blocks until the model responds.
func (o *Ollama) Execute(ctx context.Context, task *v1.Task, opts Options) (*Result, error) {
	model := opts.Model
	if model == "" {
		model = o.defaultModel
	}
	prompt := fmt.Sprintf("# Task: %s\n\n%s", task.Title, task.Description)

	o.log.Info("executing via ollama",
		zap.String("task_id", task.ID),
		zap.String("model", model))

	response, metrics, err := o.Generate(ctx, GenerateRequest{
		Model:        model,
		Prompt:       prompt,
		SystemPrompt: opts.SystemPrompt,
		Temperature:  opts.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Success:  true,
		Mode:     ModeSync,
		Model:    model,
		Response: response,
		Metrics:  metrics,
	}, nil
}

// CheckResult implements Bridge; the ollama path is synchronous so there is
// never a pending result.
func (o *Ollama) CheckResult(_ *v1.Task) (*Result, error) {
	return nil, nil
}

// Health probes the inference service: GET /api/tags, 200 means online.
func (o *Ollama) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the locally available model names.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, apperrors.BridgeUnavailable("ollama", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, apperrors.BridgeUnavailable("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.BridgeProtocol("ollama", fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.BridgeProtocol("ollama", "bad response payload: "+err.Error())
	}

	names := make([]string, 0, len(body.Models))
	for _, m := range body.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
