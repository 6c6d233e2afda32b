package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nl2sql-tool/internal/utils"
)

// CompletionClient is the language model as seen by the rest of the service.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	IsReachable(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	Model() string
}

type OllamaConfig struct {
	BaseURL      string
	Model        string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	Temperature  float64
	TopP         float64
}

// OllamaClient talks to a local Ollama server over its REST API. One client
// (and one pooled http.Client) is shared by all requests.
type OllamaClient struct {
	baseURL      string
	model        string
	temperature  float64
	topP         float64
	probeTimeout time.Duration
	client       *http.Client
}

func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "llama2"
	}
	return &OllamaClient{
		baseURL:      strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		model:        model,
		temperature:  cfg.Temperature,
		topP:         cfg.TopP,
		probeTimeout: probeTimeout,
		client:       &http.Client{Timeout: timeout},
	}
}

func (c *OllamaClient) Model() string {
	return c.model
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Complete sends one non-streaming generate call and returns the raw text.
// Transport failures, timeouts and non-2xx answers are SERVICE_UNAVAILABLE.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: c.temperature,
			TopP:        c.topP,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", utils.NewServiceUnavailableError("language model service is unreachable", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", utils.NewServiceUnavailableError("failed to read language model response", err)
	}
	if resp.StatusCode >= 300 {
		return "", utils.NewServiceUnavailableError(
			"language model service returned an error",
			fmt.Errorf("generate failed status=%d body=%s", resp.StatusCode, utils.Truncate(string(rawRespBody), 512)),
		)
	}

	var parsed generateResponse
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", utils.NewServiceUnavailableError("language model returned malformed JSON", err)
	}
	if parsed.Error != "" {
		return "", utils.NewServiceUnavailableError("language model returned an error", fmt.Errorf("%s", parsed.Error))
	}

	return strings.TrimSpace(parsed.Response), nil
}

// IsReachable probes /api/tags with the short probe timeout. It is evaluated
// on every call.
func (c *OllamaClient) IsReachable(ctx context.Context) bool {
	_, err := c.tags(ctx)
	return err == nil
}

// ListModels returns the names of the installed models.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	tags, err := c.tags(ctx)
	if err != nil {
		return nil, utils.NewServiceUnavailableError("language model service is unreachable", err)
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

func (c *OllamaClient) tags(ctx context.Context) (*tagsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tags failed status=%d", resp.StatusCode)
	}

	var parsed tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	return &parsed, nil
}
