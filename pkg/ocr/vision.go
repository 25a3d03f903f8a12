package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/sashabaranov/go-openai"
)

const receiptPrompt = "Transcribe every line of text on this shopping receipt, top to bottom. " +
	"Return plain text only, one receipt line per output line, without commentary."

// Vision extracts text from an image.
type Vision interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// VisionConfig configures the OpenAI-compatible vision client
type VisionConfig struct {
	APIKey    string
	Model     string // default: gpt-4o-mini
	BaseURL   string // optional, for compatible gateways
	Timeout   time.Duration
	MaxTokens int // default: 1500
}

// OpenAIVision calls a chat completion model with an image attachment
type OpenAIVision struct {
	client    *openai.Client
	model     string
	timeout   time.Duration
	maxTokens int
	log       logger.Logger
}

// NewOpenAIVision creates a vision client
func NewOpenAIVision(cfg VisionConfig, log logger.Logger) *OpenAIVision {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1500
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIVision{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		log:       log.With("component", "vision"),
	}
}

// ExtractText sends the image inline as a data URL and returns the model's
// transcription
func (v *OpenAIVision) ExtractText(ctx context.Context, image []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	req := openai.ChatCompletionRequest{
		Model:     v.model,
		MaxTokens: v.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: receiptPrompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	}

	start := time.Now()
	resp, err := v.client.CreateChatCompletion(ctx, req)
	if err != nil {
		v.log.Error("vision request failed", "model", v.model, "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from vision model")
	}

	v.log.Debug("vision request completed", "model", v.model, "tokens", resp.Usage.TotalTokens, "duration", time.Since(start))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
