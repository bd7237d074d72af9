package llm

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mimcmahon20/Shelly/internal/domain"
)

// OpenAIConfig — настройки OpenAI-совместимого провайдера.
type OpenAIConfig struct {
	// Name — имя, под которым провайдер регистрируется.
	Name string

	// BaseURL — endpoint API; пустой — официальный OpenAI.
	BaseURL string

	// DefaultModel — модель для узлов без явной модели.
	DefaultModel string

	// HTTPClient — транспорт; nil — http.DefaultClient.
	HTTPClient *http.Client
}

// OpenAIProvider — провайдер поверх Chat Completions API со стримингом.
type OpenAIProvider struct {
	cfg OpenAIConfig
}

// NewOpenAIProvider создаёт провайдер.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Name == "" {
		cfg.Name = ProviderOpenAI
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o"
	}
	return &OpenAIProvider{cfg: cfg}
}

// Name реализует Provider.
func (p *OpenAIProvider) Name() string {
	return p.cfg.Name
}

// DefaultModel реализует Provider.
func (p *OpenAIProvider) DefaultModel() string {
	return p.cfg.DefaultModel
}

// client создаёт клиента под ключ запроса. Ключ приходит на каждый ход,
// поэтому клиент не кэшируется.
func (p *OpenAIProvider) client(apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if p.cfg.BaseURL != "" {
		config.BaseURL = p.cfg.BaseURL
	}
	if p.cfg.HTTPClient != nil {
		config.HTTPClient = p.cfg.HTTPClient
	}
	return openai.NewClientWithConfig(config)
}

// Turn реализует Provider.
func (p *OpenAIProvider) Turn(ctx context.Context, req TurnRequest) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		stream, err := p.client(req.APIKey).CreateChatCompletionStream(ctx, p.buildRequest(req))
		if err != nil {
			yield(Chunk{}, err)
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Chunk{}, err)
				return
			}

			if resp.Usage != nil {
				usage := domain.TokenUsage{
					Input:  resp.Usage.PromptTokens,
					Output: resp.Usage.CompletionTokens,
					Total:  resp.Usage.TotalTokens,
				}
				if !yield(Chunk{Type: ChunkUsage, Usage: &usage}, nil) {
					return
				}
			}

			for _, choice := range resp.Choices {
				if choice.Delta.Content != "" {
					if !yield(Chunk{Type: ChunkText, Text: choice.Delta.Content}, nil) {
						return
					}
				}
				for i, tc := range choice.Delta.ToolCalls {
					index := i
					if tc.Index != nil {
						index = *tc.Index
					}
					delta := &ToolCallDelta{
						Index:     index,
						ID:        tc.ID,
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					}
					if !yield(Chunk{Type: ChunkToolCall, ToolCall: delta}, nil) {
						return
					}
				}
				if choice.FinishReason != "" {
					if !yield(Chunk{Type: ChunkFinish, FinishReason: string(choice.FinishReason)}, nil) {
						return
					}
				}
			}
		}
	}
}

// buildRequest переводит TurnRequest в запрос Chat Completions.
func (p *OpenAIProvider) buildRequest(req TurnRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	out := openai.ChatCompletionRequest{
		Model:         model,
		Messages:      make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	if req.ForceTool != "" {
		out.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.ForceTool},
		}
	}
	return out
}
