package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Completer produces a single text completion for a system and user prompt.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

const classificationPrompt = `You classify messages sent to an online store's chat assistant.
Known intents: %s.
Reply with a single JSON object and nothing else:
{"intents":[{"intent":"<intent>","confidence":<0..1>}],"params":{"brand":"","category":"","sort":"price_asc|price_desc","order_id":""}}
List every plausible intent, most likely first. Omit params you cannot infer.`

var knownIntents = []string{
	domain.IntentSearchProduct,
	domain.IntentRecommendProduct,
	domain.IntentTrackOrder,
	domain.IntentPlaceOrder,
	domain.IntentAddToCart,
	domain.IntentHumanAssistance,
}

// LLM classifies by prompting a language model for a JSON verdict.
type LLM struct {
	completer Completer
	system    string
}

var _ Classifier = (*LLM)(nil)

// NewLLM creates an LLM classifier backed by completer.
func NewLLM(completer Completer) *LLM {
	return &LLM{
		completer: completer,
		system:    fmt.Sprintf(classificationPrompt, strings.Join(knownIntents, ", ")),
	}
}

// Classify asks the model and parses the first JSON object in its reply.
func (c *LLM) Classify(ctx context.Context, text string, cctx Context) (Result, error) {
	prompt := text
	if n := len(cctx.History); n > 0 {
		recent := cctx.History[max(0, n-4):]
		prompt = "Recent conversation:\n" + strings.Join(recent, "\n") + "\n\nMessage to classify:\n" + text
	}

	reply, err := c.completer.Complete(ctx, c.system, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("llm classify: %w", err)
	}

	block := extractJSONBlock(reply)
	if block == "" {
		return Result{}, fmt.Errorf("llm classify: no JSON object in reply")
	}

	var res Result
	if err := json.Unmarshal([]byte(block), &res); err != nil {
		return Result{}, fmt.Errorf("llm classify: decode reply: %w", err)
	}
	res.Params = dropEmpty(res.Params)
	if len(res.Intents) == 0 {
		return Result{}, ErrEmptyResult
	}
	return normalize(res), nil
}

// extractJSONBlock returns the first balanced {...} block in s, ignoring
// braces inside string literals.
func extractJSONBlock(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func dropEmpty(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		if v == nil {
			continue
		}
		out[k] = v
	}
	return out
}

// AnthropicCompleter completes prompts with the Anthropic Messages API.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicCompleter creates a completer for model.
func NewAnthropicCompleter(apiKey, model string) *AnthropicCompleter {
	if model == "" {
		model = "claude-3-5-haiku-latest"
	}
	return &AnthropicCompleter{
		client:    anthropic.NewClient(anthropicoption.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: 512,
	}
}

// Complete sends one user message and concatenates the text blocks of the reply.
func (a *AnthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var out strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return out.String(), nil
}

// OpenAICompleter completes prompts with the OpenAI Responses API.
type OpenAICompleter struct {
	client    *openai.Client
	model     string
	maxTokens int64
}

// NewOpenAICompleter creates a completer for model. baseURL may point at any
// compatible endpoint.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAICompleter{client: &client, model: model, maxTokens: 512}
}

// Complete sends system and user messages and returns the output text.
func (o *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	input := responses.ResponseInputParam{
		responses.ResponseInputItemParamOfMessage(system, responses.EasyInputMessageRoleSystem),
		responses.ResponseInputItemParamOfMessage(user, responses.EasyInputMessageRoleUser),
	}
	result, err := o.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: shared.ResponsesModel(o.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: input,
		},
		MaxOutputTokens: openai.Int(o.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	return result.OutputText(), nil
}
