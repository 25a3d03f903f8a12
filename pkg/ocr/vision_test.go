package ocr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatCompletionResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "  MILK 2.99\nBREAD 1.50\n"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 900, "completion_tokens": 12, "total_tokens": 912}
}`

func TestOpenAIVision_ExtractText(t *testing.T) {
	var gotBody string
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionResponse))
	}))
	defer srv.Close()

	v := NewOpenAIVision(VisionConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, logger.Nop())
	text, err := v.ExtractText(context.Background(), pngImage, "image/png")
	require.NoError(t, err)

	assert.Equal(t, "MILK 2.99\nBREAD 1.50", text)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Contains(t, gotBody, `"image_url"`)
	assert.Contains(t, gotBody, "data:image/png;base64,")
	assert.Contains(t, gotBody, `"model":"gpt-4o-mini"`)
}

func TestOpenAIVision_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	v := NewOpenAIVision(VisionConfig{APIKey: "bad", BaseURL: srv.URL + "/v1"}, logger.Nop())
	_, err := v.ExtractText(context.Background(), pngImage, "image/png")
	assert.ErrorContains(t, err, "Incorrect API key")
}
