package assistant

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/collabroom/collabroom-server/internal/config"
)

// Providers supported by the langchaingo generator.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// LLMGenerator wraps a langchaingo model as a Generator.
type LLMGenerator struct {
	llm       llms.Model
	modelName string
}

// NewLLMGenerator creates a generator for the configured provider.
func NewLLMGenerator(cfg config.Assistant) (*LLMGenerator, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported assistant provider: %s", cfg.Provider)
	}

	return &LLMGenerator{
		llm:       model,
		modelName: cfg.Model,
	}, nil
}

// Generate produces raw text for the prompt under the system instruction.
func (g *LLMGenerator) Generate(ctx context.Context, prompt, instruction string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, instruction),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	response, err := g.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return response.Choices[0].Content, nil
}

// Model returns the configured model name.
func (g *LLMGenerator) Model() string {
	return g.modelName
}
