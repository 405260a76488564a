// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API, either against api.openai.com or an Azure OpenAI
// deployment. It adapts secboard's normalized Request/Response structures into
// the SDK's message format and back, including url_citation annotations.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/secboard/core"
	"github.com/hupe1980/secboard/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	// Provider is reported by Info; "openai" unless built by NewAzureModel.
	Provider string
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client. Client
// options (API key, base URL) are read from the environment unless given.
func NewModel(clientOpts []option.RequestOption, optFns ...func(o *Options)) *Model {
	client := openai.NewClient(clientOpts...)
	return NewModelFromClient(&client, optFns...)
}

// NewAzureModel creates a model bound to an Azure OpenAI deployment. The
// deployment name is used as model id.
func NewAzureModel(endpoint, apiVersion, apiKey, deployment string, optFns ...func(o *Options)) *Model {
	client := openai.NewClient(
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	)
	fns := append([]func(o *Options){func(o *Options) {
		o.Model = deployment
		o.Provider = "azure-openai"
	}}, optFns...)
	return NewModelFromClient(&client, fns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client.
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 4096,
		Provider:            "openai",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		params := openai.ChatCompletionNewParams{
			Messages:            buildMessages(req),
			Model:               m.opts.Model,
			Temperature:         openai.Float(m.opts.Temperature),
			MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
		}
		if req.Stream {
			m.handleStreaming(ctx, params, out, errCh)
			return
		}
		m.handleNonStreaming(ctx, params, out, errCh)
	}()
	return out, errCh
}

// buildMessages converts the instruction plus normalized contents into OpenAI
// chat messages.
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Contents)+1)
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, c := range req.Contents {
		text := c.Text()
		if text == "" {
			continue
		}
		switch c.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(text))
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(text))
		default:
			messages = append(messages, openai.UserMessage(text))
		}
	}
	return messages
}

// handleStreaming forwards text deltas as partial responses and finishes with
// the aggregated text plus any url_citation annotations seen in the deltas.
func (m *Model) handleStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := m.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		textBuilder  strings.Builder
		finishReason string
		usage        *model.TokenUsage
		id           string
		citations    []core.Part
	)
	for stream.Next() {
		ck := stream.Current()
		id = ck.ID
		if ck.Usage.TotalTokens > 0 {
			usage = convertUsage(ck.Usage)
		}
		for _, ch := range ck.Choices {
			citations = append(citations, deltaCitations(ch.Delta.RawJSON())...)
			if ch.Delta.Content != "" {
				textBuilder.WriteString(ch.Delta.Content)
				if !send(ctx, out, model.Response{
					ID:      ck.ID,
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, ch.Delta.Content),
				}) {
					errCh <- ctx.Err()
					return
				}
			}
			if ch.FinishReason != "" {
				finishReason = ch.FinishReason
			}
		}
	}
	if err := stream.Err(); err != nil {
		errCh <- fmt.Errorf("openai streaming error: %w", err)
		return
	}
	parts := make([]core.Part, 0, len(citations)+1)
	parts = append(parts, core.TextPart{Text: textBuilder.String()})
	parts = append(parts, citations...)
	if !send(ctx, out, model.Response{
		ID:           id,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finishReason,
		Usage:        usage,
	}) {
		errCh <- ctx.Err()
	}
}

// deltaCitations reads url_citation annotations from a raw stream delta.
func deltaCitations(raw string) []core.Part {
	if !strings.Contains(raw, `"annotations"`) {
		return nil
	}

	var delta struct {
		Annotations []struct {
			URLCitation struct {
				StartIndex int    `json:"start_index"`
				EndIndex   int    `json:"end_index"`
				URL        string `json:"url"`
				Title      string `json:"title"`
			} `json:"url_citation"`
		} `json:"annotations"`
	}
	if err := json.Unmarshal([]byte(raw), &delta); err != nil {
		return nil
	}

	var parts []core.Part
	for _, a := range delta.Annotations {
		if a.URLCitation.URL == "" {
			continue
		}
		parts = append(parts, core.URLCitationPart{
			StartIndex: a.URLCitation.StartIndex,
			EndIndex:   a.URLCitation.EndIndex,
			URL:        a.URLCitation.URL,
			Title:      a.URLCitation.Title,
		})
	}
	return parts
}

// handleNonStreaming processes a normal (non-streaming) completion.
func (m *Model) handleNonStreaming(
	ctx context.Context,
	params openai.ChatCompletionNewParams,
	out chan<- model.Response,
	errCh chan<- error,
) {
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		errCh <- fmt.Errorf("openai api error: %w", err)
		return
	}
	if len(resp.Choices) == 0 {
		errCh <- fmt.Errorf("no choices returned")
		return
	}
	ch0 := resp.Choices[0]
	parts := make([]core.Part, 0, len(ch0.Message.Annotations)+1)
	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}
	for _, a := range ch0.Message.Annotations {
		if a.URLCitation.URL == "" {
			continue
		}
		parts = append(parts, core.URLCitationPart{
			StartIndex: int(a.URLCitation.StartIndex),
			EndIndex:   int(a.URLCitation.EndIndex),
			URL:        a.URLCitation.URL,
			Title:      a.URLCitation.Title,
		})
	}
	if !send(ctx, out, model.Response{
		ID:           resp.ID,
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: ch0.FinishReason,
		Usage:        convertUsage(resp.Usage),
	}) {
		errCh <- ctx.Err()
	}
}

func convertUsage(u openai.CompletionUsage) *model.TokenUsage {
	return &model.TokenUsage{
		PromptTokens:     int(u.PromptTokens),
		CompletionTokens: int(u.CompletionTokens),
		TotalTokens:      int(u.TotalTokens),
	}
}

func send(ctx context.Context, out chan<- model.Response, r model.Response) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- r:
		return true
	}
}

// Info returns metadata describing this model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.opts.Model,
		Provider: m.opts.Provider,
	}
}
