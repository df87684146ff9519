package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Veraticus/pantry/internal/common"
)

// geminiClient implements the Client interface on the Gemini SDK.
type geminiClient struct {
	options     []option.ClientOption
	model       string
	temperature float32
	maxTokens   int32
}

func newGeminiClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.1
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	options := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithEndpoint(strings.TrimRight(cfg.BaseURL, "/")))
	}

	return &geminiClient{
		options:     options,
		model:       model,
		temperature: float32(temperature),
		maxTokens:   int32(maxTokens),
	}, nil
}

// Complete sends one generate request. The SDK client lives for the call.
func (c *geminiClient) Complete(ctx context.Context, r Request) (string, error) {
	client, err := genai.NewClient(ctx, c.options...)
	if err != nil {
		return "", transportError("gemini", err)
	}
	defer func() { _ = client.Close() }()

	model := client.GenerativeModel(c.model)
	model.SetTemperature(c.temperature)
	maxTokens := c.maxTokens
	if r.MaxTokens > 0 {
		maxTokens = int32(r.MaxTokens)
	}
	model.SetMaxOutputTokens(maxTokens)
	if r.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(r.System)}}
	}

	parts := []genai.Part{genai.Text(r.Prompt)}
	if len(r.Image) > 0 {
		parts = append(parts, genai.Blob{MIMEType: r.MimeType, Data: r.Image})
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	return geminiText(resp)
}

// classifyGeminiError maps SDK status codes onto the retry taxonomy the
// HTTP providers use.
func classifyGeminiError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return transportError("gemini", err)
	}

	switch st.Code() {
	case codes.ResourceExhausted:
		return fmt.Errorf("gemini API error (%s): %w", st.Message(), common.ErrRateLimit)
	case codes.Unavailable, codes.Internal, codes.DeadlineExceeded, codes.Unknown:
		return &common.RetryableError{
			Err:       fmt.Errorf("gemini API error (%s): %s: %w", st.Code(), st.Message(), common.ErrOracleUnavailable),
			Retryable: true,
		}
	default:
		return &common.RetryableError{
			Err:       fmt.Errorf("gemini API error (%s): %s", st.Code(), st.Message()),
			Retryable: false,
		}
	}
}

// geminiText joins the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: gemini returned no candidates", common.ErrMalformedResponse)
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: gemini candidate has no text (finish reason %s)",
			common.ErrMalformedResponse, resp.Candidates[0].FinishReason)
	}
	return b.String(), nil
}
