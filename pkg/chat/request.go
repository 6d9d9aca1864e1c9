package chat

import (
	configpkg "github.com/minhyannv/io-chat-go/pkg/config"
	"github.com/minhyannv/io-chat-go/pkg/conversation"
)

// ChatRequest is the JSON body posted to the chat endpoint.
type ChatRequest struct {
	Model    string                 `json:"model"`
	Messages []conversation.Message `json:"messages"`
}

// Usage is the token accounting reported with a completion.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int                  `json:"index"`
	Message      conversation.Message `json:"message"`
	FinishReason string               `json:"finish_reason"`
}

// CompletionResponse is the 200 body of the chat endpoint.
type CompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Usage   Usage    `json:"usage"`
	Choices []Choice `json:"choices"`
}

// UsageResponse is the 200 body of the billing usage endpoint. TotalUsage is in cents.
type UsageResponse struct {
	TotalUsage *float64 `json:"total_usage"`
}

// Reply is the part of a completion the caller folds into the session.
type Reply struct {
	Content      string
	TotalTokens  int64
	FinishReason string
	Model        string
}

// BuildChatRequest returns the request for the given history.
// The whole history is sent on every turn; nothing is trimmed or reordered.
func BuildChatRequest(cfg configpkg.Config, history conversation.History) ChatRequest {
	messages := make([]conversation.Message, len(history))
	copy(messages, history)
	return ChatRequest{
		Model:    cfg.Model,
		Messages: messages,
	}
}
