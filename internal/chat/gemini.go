package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	DefaultGeminiModel = "gemini-2.5-flash"

	geminiTemperature = 0.8
	geminiTopP        = 0.95
	geminiTimeout     = 30 * time.Second
)

var errMissingAPIKey = errors.New("chat: gemini api key is required")

// GeminiConfig selects the model and, for tests or proxies, the API base URL.
// An empty Endpoint keeps the SDK default.
type GeminiConfig struct {
	APIKey     string
	Model      string
	Endpoint   string
	HTTPClient *http.Client
}

// GeminiCompleter generates replies through the Gemini API.
type GeminiCompleter struct {
	client *genai.Client
	model  string
}

var _ Completer = (*GeminiCompleter)(nil)

func NewGeminiCompleter(ctx context.Context, cfg GeminiConfig) (*GeminiCompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: geminiTimeout}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.Endpoint},
	})
	if err != nil {
		return nil, fmt.Errorf("chat: gemini client: %w", err)
	}
	return &GeminiCompleter{client: client, model: model}, nil
}

func (g *GeminiCompleter) Complete(ctx context.Context, systemInstruction string, history []Message, message string) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, entry := range history {
		contents = append(contents, textContent(string(entry.Role), entry.Text))
	}
	contents = append(contents, textContent(string(RoleUser), message))

	generation := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](geminiTemperature),
		TopP:        genai.Ptr[float32](geminiTopP),
	}
	if strings.TrimSpace(systemInstruction) != "" {
		generation.SystemInstruction = textContent("", systemInstruction)
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, generation)
	if err != nil {
		return "", fmt.Errorf("chat: gemini generate content: %w", err)
	}
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", nil
	}
	var reply strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		reply.WriteString(part.Text)
	}
	return reply.String(), nil
}

func textContent(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []*genai.Part{{Text: text}}}
}

// UnconfiguredCompleter fails every call. It stands in when no API key is
// configured so visitors get the fallback reply.
type UnconfiguredCompleter struct{}

func (UnconfiguredCompleter) Complete(context.Context, string, []Message, string) (string, error) {
	return "", errMissingAPIKey
}
