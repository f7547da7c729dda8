package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const ocrPrompt = "Transcribe all text in this scanned document page exactly as written. " +
	"Preserve line breaks. Output only the transcription, nothing else."

// VisionOCR performs OCR by sending page images to a vision-capable
// chat model.
type VisionOCR struct {
	client openai.Client
	model  string
}

// NewVisionOCR creates an OCR client. baseURL may be empty for the
// default endpoint.
func NewVisionOCR(apiKey, baseURL, model string) *VisionOCR {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &VisionOCR{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// RecognizeImage transcribes one page image.
func (v *VisionOCR) RecognizeImage(ctx context.Context, data []byte, mime string) (string, error) {
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))

	resp, err := v.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(v.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(ocrPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision OCR request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("vision OCR: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
