package backend

import (
	"context"
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/secpipe-io/secpipe/pkg/shared/config"
	"github.com/secpipe-io/secpipe/pkg/shared/httpclient"
)

// Client is an OpenAI-compatible chat completions backend.
type Client struct {
	http   *resty.Client
	cfg    config.Backend
	apiKey string
	logger hclog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float32       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat any           `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient builds a backend client from the global configuration.
// The API key is read from the configured environment variable.
func NewClient(cfg *config.Config, logger hclog.Logger) *Client {
	return &Client{
		http:   httpclient.NewRestyClient(logger, cfg),
		cfg:    cfg.Backend,
		apiKey: os.Getenv(cfg.Backend.APIKeyEnv),
		logger: logger,
	}
}

// Respond performs one chat completion for a stage and decodes the
// reply envelope. Transport failures and empty completions are fatal;
// a completion that is not valid envelope JSON degrades to free text.
func (c *Client) Respond(ctx context.Context, req Request) (Reply, error) {
	stageCtx := ctx
	if c.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, c.cfg.StageTimeout)
		defer cancel()
	}

	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.Instructions + "\n\n" + envelopeInstructions},
			{Role: "user", Content: req.Context},
		},
		Temperature:    0.2,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: map[string]string{"type": "json_object"},
	}

	var parsed chatResponse
	resp, err := c.http.R().
		SetContext(stageCtx).
		SetAuthToken(c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&parsed).
		SetError(&parsed).
		Post(c.cfg.BaseURL + "/chat/completions")
	if err != nil {
		return Reply{}, fmt.Errorf("backend request for stage %q failed: %w", req.Stage, err)
	}

	if resp.IsError() {
		msg := resp.Status()
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return Reply{}, fmt.Errorf("backend returned an error for stage %q: %s", req.Stage, msg)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return Reply{}, fmt.Errorf("backend returned no output for stage %q", req.Stage)
	}

	content := parsed.Choices[0].Message.Content
	reply := DecodeEnvelope(content)
	if len(reply.Narration) == 0 && len(reply.Structured) == 0 {
		return Reply{}, fmt.Errorf("backend returned no usable output for stage %q", req.Stage)
	}
	return reply, nil
}
