// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	gopenai "github.com/sashabaranov/go-openai"

	"github.com/pdiddy/dossier/internal/provider"
)

func buildChatRequest(req provider.Request) (gopenai.ChatCompletionRequest, error) {
	if len(req.Tools) > 0 {
		return gopenai.ChatCompletionRequest{}, fmt.Errorf("%w: legacy dialect cannot attach tools", provider.ErrCapability)
	}
	cr := gopenai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []gopenai.ChatCompletionMessage{
			{Role: gopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
		ResponseFormat: &gopenai.ChatCompletionResponseFormat{
			Type: gopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &gopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
			},
		},
		ReasoningEffort: req.ReasoningEffort,
	}
	if req.Temperature != nil {
		cr.Temperature = float32(*req.Temperature)
		// go-openai omits a zero temperature, which the API reads as 1.
		if cr.Temperature == 0 {
			cr.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if req.MaxOutputTokens != nil {
		cr.MaxTokens = *req.MaxOutputTokens
	}
	return cr, nil
}

func (c *Client) completeChat(ctx context.Context, req provider.Request) (provider.Response, error) {
	cr, err := buildChatRequest(req)
	if err != nil {
		return provider.Response{}, err
	}
	resp, err := c.chat.CreateChatCompletion(ctx, cr)
	if err != nil {
		return provider.Response{}, fmt.Errorf("calling chat completions API: %w", err)
	}
	if len(resp.Choices) == 0 {
		return provider.Response{}, fmt.Errorf("%w: chat completion returned no choices", provider.ErrProvider)
	}

	msg := resp.Choices[0].Message
	text := msg.Content
	if text == "" {
		text = msg.Refusal
	}
	out := provider.Response{Text: text}
	trimmed := strings.TrimSpace(msg.Content)
	if resp.Choices[0].FinishReason != gopenai.FinishReasonLength &&
		strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		out.Parsed = json.RawMessage(trimmed)
	}
	return out, nil
}
