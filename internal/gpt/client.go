// Package gpt はOpenAI APIへの問い合わせと埋め込み生成を提供します。
package gpt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ResponseFormat は応答形式の指定です。
type ResponseFormat string

const (
	FormatJSON ResponseFormat = "json_object"
	FormatText ResponseFormat = "text"
)

// Client はモデル・埋め込み・キャッシュをまとめた問い合わせ窓口です。
type Client struct {
	api            *openai.Client
	model          string
	embeddingModel string
	cache          *Cache
}

// NewClient は Client を作成します。cache は nil でも構いません。
func NewClient(apiKey, model, embeddingModel string, cache *Cache) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if model == "" {
		return nil, errors.New("gpt model is required")
	}
	return &Client{
		api:            openai.NewClient(apiKey),
		model:          model,
		embeddingModel: embeddingModel,
		cache:          cache,
	}, nil
}

// Model は使用中のGPTモデル名を返します。
func (c *Client) Model() string {
	return c.model
}

// Query は instructions タグ付きプロンプトを送信し、応答本文を返します。
// runOnFullText は system プロンプト内のテキストの呼び方だけを変えます。
func (c *Client) Query(ctx context.Context, prompt string, format ResponseFormat, runOnFullText bool) (string, error) {
	textLabel := "collection of text excerpts"
	if runOnFullText {
		textLabel = "document"
	}
	system := fmt.Sprintf(
		"Use the provided %s delimited by triple quotes to respond to instructions delimited with XML tags. "+
			"Be precise and base every answer strictly on the provided text.", textLabel)

	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if format == FormatJSON {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	// o系の推論モデルは temperature 指定を受け付けない
	if !strings.HasPrefix(c.model, "o") {
		request.Temperature = 0
	}

	response, err := c.api.CreateChatCompletion(ctx, request)
	if err != nil {
		return "", fmt.Errorf("gpt query failed: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("gpt returned no choices")
	}
	return response.Choices[0].Message.Content, nil
}
