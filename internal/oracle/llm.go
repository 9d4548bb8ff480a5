package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
	"github.com/vinayprograms/agentkit/llm"
)

// LLMConfig selects a chat-completion provider. Provider may be empty when
// it can be inferred from Model.
type LLMConfig struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// compatBaseURLs are the default endpoints of providers that speak the
// OpenAI chat-completions protocol. An empty entry requires BaseURL.
var compatBaseURLs = map[string]string{
	"groq":          llm.GroqBaseURL,
	"mistral":       llm.MistralBaseURL,
	"xai":           llm.XAIBaseURL,
	"openrouter":    llm.OpenRouterBaseURL,
	"ollama":        llm.OllamaLocalURL,
	"ollama-local":  llm.OllamaLocalURL,
	"lmstudio":      llm.LMStudioLocalURL,
	"openai-compat": "",
	"litellm":       "",
}

type chatFunc func(ctx context.Context, messages []llm.Message) (string, error)

// LLMTransport answers each request with exactly one chat-completion call.
// The provider clients are built with retries disabled; a failed call is
// returned to the caller as is.
type LLMTransport struct {
	chat chatFunc
}

// NewLLMTransport validates cfg with the agentkit provider rules and builds
// a client for the resolved provider.
func NewLLMTransport(cfg LLMConfig) (*LLMTransport, error) {
	pc := llm.ProviderConfig{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		MaxTokens: cfg.MaxTokens,
	}
	if pc.Provider == "" {
		pc.Provider = llm.InferProviderFromModel(pc.Model)
	}
	if pc.Provider == "" {
		return nil, errors.New("llm provider not configured")
	}
	if err := pc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s provider config: %w", pc.Provider, err)
	}

	switch pc.Provider {
	case "openai":
		return newLLMTransport(openAIChat(pc, true)), nil
	case "anthropic":
		return newLLMTransport(anthropicChat(pc)), nil
	}
	base, ok := compatBaseURLs[pc.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported llm provider: %s", pc.Provider)
	}
	if pc.BaseURL == "" {
		pc.BaseURL = base
	}
	if pc.BaseURL == "" {
		return nil, fmt.Errorf("base_url is required for provider %s", pc.Provider)
	}
	return newLLMTransport(openAIChat(pc, false)), nil
}

func newLLMTransport(chat chatFunc) *LLMTransport {
	return &LLMTransport{chat: chat}
}

func (t *LLMTransport) Complete(ctx context.Context, req Request) (string, error) {
	return t.chat(ctx, []llm.Message{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.User},
	})
}

// openAIChat talks to OpenAI or an OpenAI-compatible endpoint. Only OpenAI
// itself understands max_completion_tokens.
func openAIChat(pc llm.ProviderConfig, completionTokens bool) chatFunc {
	opts := []openaiopt.RequestOption{openaiopt.WithMaxRetries(0)}
	if pc.APIKey != "" {
		opts = append(opts, openaiopt.WithAPIKey(pc.APIKey))
	}
	if pc.BaseURL != "" {
		opts = append(opts, openaiopt.WithBaseURL(pc.BaseURL))
	}
	client := openai.NewClient(opts...)

	return func(ctx context.Context, messages []llm.Message) (string, error) {
		params := openai.ChatCompletionNewParams{Model: pc.Model}
		for _, m := range messages {
			switch m.Role {
			case "system":
				params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
			default:
				params.Messages = append(params.Messages, openai.UserMessage(m.Content))
			}
		}
		if completionTokens {
			params.MaxCompletionTokens = openai.Int(int64(pc.MaxTokens))
		} else {
			params.MaxTokens = openai.Int(int64(pc.MaxTokens))
		}

		resp, err := client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("%s chat completion: %w", pc.Provider, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%s chat completion returned no choices", pc.Provider)
		}
		return resp.Choices[0].Message.Content, nil
	}
}

func anthropicChat(pc llm.ProviderConfig) chatFunc {
	opts := []anthropicopt.RequestOption{
		anthropicopt.WithMaxRetries(0),
		anthropicopt.WithAPIKey(pc.APIKey),
	}
	if pc.BaseURL != "" {
		opts = append(opts, anthropicopt.WithBaseURL(pc.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return func(ctx context.Context, messages []llm.Message) (string, error) {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(pc.Model),
			MaxTokens: int64(pc.MaxTokens),
		}
		for _, m := range messages {
			switch m.Role {
			case "system":
				params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
			default:
				params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}

		resp, err := client.Messages.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("anthropic messages: %w", err)
		}
		var b strings.Builder
		for _, block := range resp.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return b.String(), nil
	}
}

// DefaultAPIKeyEnv returns the conventional API key variable for provider.
func DefaultAPIKeyEnv(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	case "mistral":
		return "MISTRAL_API_KEY"
	case "groq":
		return "GROQ_API_KEY"
	case "xai":
		return "XAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}
