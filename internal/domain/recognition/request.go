package recognition

import (
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// buildRequest assembles the chat completion body for one image.
func (c *Client) buildRequest(payload, model string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: c.cfg.SystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: fmt.Sprintf("data:image/jpeg;base64,%s", payload),
						},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: c.cfg.UserPrompt,
					},
				},
			},
		},
		Temperature: c.cfg.Temperature,
	}
}

// firstContent returns choices[0].message.content, "" when absent.
func firstContent(resp *openai.ChatCompletionResponse) string {
	if resp == nil || len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}
