package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nilansh-07/FintelAI/internal/common"
	"github.com/nilansh-07/FintelAI/internal/llm"
)

func (c *Client) Name() string  { return "groq" }
func (c *Client) Model() string { return c.cfg.Model }

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete implements llm.Backend using the OpenAI-compatible chat/completions
// endpoint with the page attached as an image_url content part.
func (c *Client) Complete(ctx context.Context, req llm.BackendRequest) (llm.BackendResponse, error) {
	start := time.Now()

	temp := c.cfg.Temperature
	if req.Temperature != 0 {
		temp = req.Temperature
	}
	body := map[string]any{
		"model":       c.cfg.Model,
		"temperature": temp,
		"max_tokens":  c.cfg.MaxTokens,
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": req.Prompt},
				{"type": "image_url", "image_url": map[string]any{"url": llm.DataURL(req.MIMEType, req.Image)}},
			}},
		},
	}
	if req.ResponseFormat != "" {
		body["response_format"] = map[string]any{"type": req.ResponseFormat}
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	raw, statusCode, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		cerr := classify(ctx, statusCode, raw, err)
		c.logger.Warn("groq.complete.error",
			"status", statusCode,
			"code", common.ErrorCode(cerr),
			"error", cerr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.BackendResponse{}, cerr
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return llm.BackendResponse{}, common.MalformedResponsef("decode groq response: %v", err)
	}
	if len(cc.Choices) == 0 {
		return llm.BackendResponse{}, common.MalformedResponsef("no choices in groq response")
	}

	c.logger.Debug("groq.complete.ok",
		"model", c.cfg.Model,
		"finish_reason", cc.Choices[0].FinishReason,
		"prompt_tokens", cc.Usage.PromptTokens,
		"completion_tokens", cc.Usage.CompletionTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return llm.BackendResponse{
		Content:          strings.TrimSpace(cc.Choices[0].Message.Content),
		PromptTokens:     cc.Usage.PromptTokens,
		CompletionTokens: cc.Usage.CompletionTokens,
	}, nil
}

// classify maps transport and HTTP failures onto the error taxonomy.
func classify(ctx context.Context, statusCode int, raw []byte, err error) error {
	if statusCode == 0 || errors.Is(err, llm.ErrReadResponse) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return common.TransientBackend("groq request failed", err)
	}
	msg := fmt.Sprintf("groq status %d: %s", statusCode, providerMessage(raw))
	switch {
	case statusCode == http.StatusUnauthorized, statusCode == http.StatusForbidden:
		return common.Authentication(msg, err)
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		return common.TransientBackend(msg, err)
	default:
		return common.ExtractionFailure(msg, err)
	}
}

func providerMessage(raw []byte) string {
	var cc chatResponse
	if json.Unmarshal(raw, &cc) == nil && cc.Error != nil && cc.Error.Message != "" {
		return cc.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 256 {
		s = s[:256] + "...(truncated)"
	}
	return s
}
